// Package rotation runs one PSK rotation end to end: it opens a dashboard
// session, resolves targets, applies the passphrase and records the outcome.
package rotation

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"meraki-toolkit/internal/dashboard"
	apperrors "meraki-toolkit/internal/errors"
	"meraki-toolkit/internal/executor"
	"meraki-toolkit/internal/filter"
	"meraki-toolkit/internal/logging"
	"meraki-toolkit/internal/output"
	"meraki-toolkit/internal/passphrase"
	"meraki-toolkit/internal/progress"
	"meraki-toolkit/internal/record"
	"meraki-toolkit/internal/resolver"
	"meraki-toolkit/internal/stats"
	"meraki-toolkit/internal/throttle"
)

// Opener opens the session a run works on
type Opener func(ctx context.Context) (dashboard.Session, error)

// Options configures one run
type Options struct {
	Criteria    filter.Criteria
	Passphrase  string
	DryRun      bool
	Mode        executor.Mode
	Concurrency int // 0 for auto

	Open     Opener
	Logger   *logging.Logger
	Errors   *apperrors.ErrorCollector
	Recorder *record.Recorder

	// Formatter renders outcomes. Nil disables output.
	Formatter output.Formatter
	// Stats, if set, counts every dashboard call of the run
	Stats *stats.StatsTracker
	// ProgressWriter, if set, receives a progress bar during live updates
	ProgressWriter io.Writer
}

// Run executes one rotation. It returns the finalized record, or nil when no
// target changed. Criteria and passphrase are validated before the session
// is opened; the session is always closed, and a close failure is joined to
// the returned error.
func Run(ctx context.Context, opts Options) (rec *record.OperationRecord, err error) {
	start := time.Now()

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	errs := opts.Errors
	if errs == nil {
		errs = apperrors.NewErrorCollector()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = record.NewRecorder()
	}

	if err := opts.Criteria.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError("invalid criteria", err)
	}
	if err := passphrase.Validate(opts.Passphrase); err != nil {
		return nil, err
	}
	if opts.Open == nil {
		return nil, apperrors.NewConfigurationError("no dashboard session configured", nil)
	}

	session, err := opts.Open(ctx)
	if err != nil {
		if apperrors.TypeOf(err) == apperrors.UnexpectedErrorType {
			err = apperrors.NewConfigurationError("opening dashboard session", err)
		}
		return nil, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("closing dashboard session: %w", closeErr))
		}
	}()

	var onRetry func(string, time.Duration)
	if opts.Stats != nil {
		session = opts.Stats.Instrument(session)
		onRetry = opts.Stats.RecordRetry
	}
	retrier := throttle.New(logger, onRetry)

	targets, err := resolver.New(session, resolver.Config{
		Mode:        opts.Mode,
		Concurrency: opts.Concurrency,
		Retrier:     retrier,
		Logger:      logger,
		Errors:      errs,
	}).Resolve(ctx, opts.Criteria)
	if err != nil {
		return nil, err
	}
	logger.Info("targets resolved", "count", len(targets), "ssid", opts.Criteria.SSID, "duration", time.Since(start))

	var tracker *progress.ProgressTracker
	if opts.ProgressWriter != nil && !opts.DryRun {
		tracker = progress.NewProgressTracker(len(targets), opts.ProgressWriter, true)
	}

	exec := executor.New(session, executor.Config{
		Mode:        opts.Mode,
		Concurrency: opts.Concurrency,
		Retrier:     retrier,
		Logger:      logger,
		Errors:      errs,
		OnOutcome: func(o executor.Outcome) {
			if tracker != nil {
				tracker.Observe(o)
			}
			if opts.Stats != nil {
				opts.Stats.RecordOutcome(o)
			}
			if opts.Formatter != nil {
				if err := opts.Formatter.Format(o); err != nil {
					logger.Error("writing output", "error", err)
				}
			}
		},
	})

	result, err := exec.Apply(ctx, targets, opts.Passphrase, opts.DryRun)
	if tracker != nil {
		tracker.Finish()
	}
	if err != nil {
		return nil, err
	}

	if opts.Formatter != nil {
		if err := opts.Formatter.Finalize(result, opts.Passphrase); err != nil {
			return nil, apperrors.NewUnexpectedError("writing output", err)
		}
	}

	rec = recorder.Record(start, opts.Criteria, targets, opts.Passphrase, result)
	if rec == nil {
		logger.Error("no target changed", "targets", len(targets), "errors", errs.Summary())
	}
	return rec, nil
}
