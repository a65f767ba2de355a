package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"meraki-toolkit/internal/dashboard"
	apperrors "meraki-toolkit/internal/errors"
	"meraki-toolkit/internal/logging"
	"meraki-toolkit/internal/target"
	"meraki-toolkit/internal/throttle"
)

// Mode selects how remote calls are scheduled
type Mode string

const (
	// Sequential issues one remote call at a time
	Sequential Mode = "sequential"
	// Concurrent fans calls out, bounded by the concurrency setting
	Concurrent Mode = "concurrent"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Sequential, Concurrent:
		return Mode(s), nil
	case "":
		return Concurrent, nil
	default:
		return "", fmt.Errorf("invalid mode '%s': must be sequential or concurrent", s)
	}
}

// ParseConcurrency parses concurrency configuration from string
func ParseConcurrency(concurrencyStr string) (int, error) {
	if concurrencyStr == "" || concurrencyStr == "auto" {
		return 0, nil // 0 indicates auto mode
	}

	concurrency, err := strconv.Atoi(concurrencyStr)
	if err != nil {
		return 0, fmt.Errorf("invalid concurrency value '%s': must be a number or 'auto'", concurrencyStr)
	}
	if concurrency < 1 {
		return 0, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}
	if concurrency > 1000 {
		return 0, fmt.Errorf("concurrency too high: %d (maximum 1000)", concurrency)
	}

	return concurrency, nil
}

// CalculateConcurrency returns the effective fan-out for n units of work.
// Zero means auto: min(32, n).
func CalculateConcurrency(configured int, n int) int {
	if configured < 0 {
		return 1
	}
	if configured == 0 {
		switch {
		case n <= 0:
			return 1
		case n <= 32:
			return n
		default:
			return 32
		}
	}

	effective := min(configured, 1000)
	if n > 0 && effective > n {
		return n
	}
	return effective
}

// Status of one target after Apply
type Status string

const (
	StatusPlanned Status = "planned"
	StatusUpdated Status = "updated"
	StatusFailed  Status = "failed"
)

// Outcome is the per-target result of Apply
type Outcome struct {
	Target   target.Target `json:"target"`
	Status   Status        `json:"status"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Retries  int           `json:"retries"`
	Duration time.Duration `json:"duration"`
}

// Result aggregates the outcomes of one Apply call. Outcomes follow the
// order of the input targets.
type Result struct {
	Outcomes []Outcome     `json:"outcomes"`
	Changed  bool          `json:"changed"`
	DryRun   bool          `json:"dryRun"`
	Duration time.Duration `json:"duration"`
}

// Counts returns the number of updated and failed targets
func (r Result) Counts() (updated, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusUpdated:
			updated++
		case StatusFailed:
			failed++
		}
	}
	return updated, failed
}

// Config holds configuration parameters for the executor
type Config struct {
	Mode        Mode
	Concurrency int // 0 for auto
	Retrier     *throttle.Retrier
	Logger      *logging.Logger
	Errors      *apperrors.ErrorCollector

	// OnOutcome, if set, is called once per finished target. It may be
	// called from several goroutines at once.
	OnOutcome func(Outcome)
}

// Executor applies a passphrase to resolved targets
type Executor struct {
	dir    dashboard.Directory
	config Config
	logger *logging.Logger
}

// New creates an executor over dir
func New(dir dashboard.Directory, config Config) *Executor {
	if config.Mode == "" {
		config.Mode = Concurrent
	}
	if config.Errors == nil {
		config.Errors = apperrors.NewErrorCollector()
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if config.Retrier == nil {
		config.Retrier = throttle.New(logger, nil)
	}
	return &Executor{dir: dir, config: config, logger: logger}
}

// Apply sets passphrase on every target. A dry run performs no remote call,
// marks every target planned and always reports Changed. A live run reports
// Changed when at least one target was updated. Per-target API and
// confirmation failures are recorded in the outcomes; any other error aborts
// the run and is returned together with the outcomes gathered so far.
func (e *Executor) Apply(ctx context.Context, targets []target.Target, passphrase string, dryRun bool) (Result, error) {
	start := time.Now()
	result := Result{
		Outcomes: make([]Outcome, len(targets)),
		DryRun:   dryRun,
	}

	for _, t := range targets {
		if err := target.Validate(t); err != nil {
			return Result{DryRun: dryRun}, apperrors.NewUnexpectedError("invalid target", err)
		}
	}

	if dryRun {
		for i, t := range targets {
			result.Outcomes[i] = Outcome{Target: t, Status: StatusPlanned}
			e.notify(result.Outcomes[i])
		}
		result.Changed = true
		result.Duration = time.Since(start)
		return result, nil
	}

	concurrency := 1
	if e.config.Mode == Concurrent {
		concurrency = CalculateConcurrency(e.config.Concurrency, len(targets))
	}
	e.logger.LogExecutorStart(len(targets), concurrency, dryRun)

	var err error
	if concurrency == 1 {
		err = e.applySequential(ctx, targets, passphrase, result.Outcomes)
	} else {
		err = e.applyConcurrent(ctx, targets, passphrase, result.Outcomes, concurrency)
	}

	updated, failed := result.Counts()
	result.Changed = updated > 0
	result.Duration = time.Since(start)
	e.logger.LogExecutorComplete(len(targets), updated, failed, result.Duration)

	return result, err
}

func (e *Executor) applySequential(ctx context.Context, targets []target.Target, passphrase string, outcomes []Outcome) error {
	for i, t := range targets {
		outcome, err := e.update(ctx, t, passphrase)
		outcomes[i] = outcome
		if err != nil {
			return err
		}
		e.notify(outcome)
	}
	return nil
}

func (e *Executor) applyConcurrent(ctx context.Context, targets []target.Target, passphrase string, outcomes []Outcome, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, t := range targets {
		g.Go(func() error {
			outcome, err := e.update(gctx, t, passphrase)
			outcomes[i] = outcome
			if err != nil {
				return err
			}
			e.notify(outcome)
			return nil
		})
	}

	return g.Wait()
}

// update performs one PSK change. The returned error is non-nil only for
// failures that must abort the run.
func (e *Executor) update(ctx context.Context, t target.Target, passphrase string) (Outcome, error) {
	const operation = "updateNetworkWirelessSsid"

	start := time.Now()
	e.logger.LogCallStart(operation, "network", t.NetworkName, "ssid", t.SSIDName)

	ssid, retries, err := throttle.Call(ctx, e.config.Retrier, operation, func(ctx context.Context) (dashboard.SSID, error) {
		return e.dir.UpdateSSIDPSK(ctx, t.NetworkID, t.SSIDNumber, passphrase)
	})

	outcome := Outcome{Target: t, Retries: retries, Duration: time.Since(start)}
	e.logger.LogCallEnd(operation, outcome.Duration, "network", t.NetworkName, "ssid", t.SSIDName)

	if err == nil && ssid.PSK != passphrase {
		err = &apperrors.ConfirmationError{NetworkID: t.NetworkID, SSIDNumber: t.SSIDNumber}
	}

	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		outcome.Error = err.Error()
		e.config.Errors.Add(err)
		if apperrors.ClassifyError(err).IsFatal() {
			return outcome, fmt.Errorf("updating %s: %w", t, err)
		}
		e.logger.LogUpdateError(t, err)
		return outcome, nil
	}

	outcome.Status = StatusUpdated
	e.logger.LogUpdate(t, outcome.Duration, retries)
	return outcome, nil
}

func (e *Executor) notify(o Outcome) {
	if e.config.OnOutcome != nil {
		e.config.OnOutcome(o)
	}
}
