// Package stats tracks dashboard API usage and rotation results.
package stats

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"meraki-toolkit/internal/dashboard"
	apperrors "meraki-toolkit/internal/errors"
	"meraki-toolkit/internal/executor"
)

// Statistics holds run counters
type Statistics struct {
	StartTime    time.Time
	ListCalls    int
	UpdateCalls  int
	FailedCalls  int
	RateLimited  int
	RetryWait    time.Duration
	Planned      int
	Updated      int
	Failed       int
	TotalRetries int
	ActiveCalls  int
	PeakInFlight int
	mu           sync.RWMutex
}

// StatsTracker collects statistics and optionally displays them every second
type StatsTracker struct {
	stats   *Statistics
	writer  io.Writer
	enabled bool
	ticker  *time.Ticker
	done    chan bool
}

// NewStatsTracker creates a new statistics tracker
func NewStatsTracker(writer io.Writer, enabled bool) *StatsTracker {
	return &StatsTracker{
		stats:   &Statistics{StartTime: time.Now()},
		writer:  writer,
		enabled: enabled,
		done:    make(chan bool),
	}
}

// Start begins the live statistics line
func (st *StatsTracker) Start() {
	if !st.enabled {
		return
	}

	st.ticker = time.NewTicker(1 * time.Second)
	go func() {
		for {
			select {
			case <-st.ticker.C:
				st.displayStats()
			case <-st.done:
				return
			}
		}
	}()
}

// Stop ends the live line and prints the final summary when enabled
func (st *StatsTracker) Stop() {
	if st.ticker != nil {
		st.ticker.Stop()
		st.done <- true
		st.ticker = nil
	}

	if st.enabled {
		st.displayFinalStats()
	}
}

func (st *StatsTracker) callStarted(update bool) {
	st.stats.mu.Lock()
	defer st.stats.mu.Unlock()
	if update {
		st.stats.UpdateCalls++
	} else {
		st.stats.ListCalls++
	}
	st.stats.ActiveCalls++
	if st.stats.ActiveCalls > st.stats.PeakInFlight {
		st.stats.PeakInFlight = st.stats.ActiveCalls
	}
}

func (st *StatsTracker) callFinished(err error) {
	st.stats.mu.Lock()
	defer st.stats.mu.Unlock()
	st.stats.ActiveCalls--
	if err != nil && !apperrors.ClassifyError(err).IsRetryable() {
		st.stats.FailedCalls++
	}
}

// RecordRetry counts one rate-limited call. Its signature matches the
// throttle retry hook.
func (st *StatsTracker) RecordRetry(operation string, wait time.Duration) {
	st.stats.mu.Lock()
	defer st.stats.mu.Unlock()
	st.stats.RateLimited++
	st.stats.RetryWait += wait
}

// RecordOutcome counts one finished target
func (st *StatsTracker) RecordOutcome(o executor.Outcome) {
	st.stats.mu.Lock()
	defer st.stats.mu.Unlock()
	st.stats.TotalRetries += o.Retries
	switch o.Status {
	case executor.StatusPlanned:
		st.stats.Planned++
	case executor.StatusUpdated:
		st.stats.Updated++
	case executor.StatusFailed:
		st.stats.Failed++
	}
}

// Instrument wraps a session so every call is counted
func (st *StatsTracker) Instrument(session dashboard.Session) dashboard.Session {
	return &instrumented{inner: session, tracker: st}
}

func (st *StatsTracker) displayStats() {
	s := st.GetStatistics()
	elapsed := time.Since(s.StartTime)

	var callsPerSec float64
	if elapsed.Seconds() > 0 {
		callsPerSec = float64(s.ListCalls+s.UpdateCalls) / elapsed.Seconds()
	}

	fmt.Fprintf(st.writer, "\r\033[K")
	fmt.Fprintf(st.writer, "API calls: %d list, %d update (~%d active) | Rate: %.1f c/s | 429s: %d | Targets: ✓%d ✗%d | %v",
		s.ListCalls, s.UpdateCalls, s.ActiveCalls, callsPerSec, s.RateLimited,
		s.Updated, s.Failed, elapsed.Round(time.Second))
}

func (st *StatsTracker) displayFinalStats() {
	s := st.GetStatistics()
	elapsed := time.Since(s.StartTime)

	fmt.Fprintf(st.writer, "\r\033[K")
	fmt.Fprintf(st.writer, "\n")
	fmt.Fprintf(st.writer, "Final Statistics:\n")
	fmt.Fprintf(st.writer, "   List Calls: %d\n", s.ListCalls)
	fmt.Fprintf(st.writer, "   Update Calls: %d\n", s.UpdateCalls)
	fmt.Fprintf(st.writer, "   Failed Calls: %d\n", s.FailedCalls)
	fmt.Fprintf(st.writer, "   Peak Concurrency: %d\n", s.PeakInFlight)
	fmt.Fprintf(st.writer, "   Rate Limited: %d (waited %v)\n", s.RateLimited, s.RetryWait.Round(time.Millisecond))
	if s.Planned > 0 {
		fmt.Fprintf(st.writer, "   Planned: %d\n", s.Planned)
	}
	fmt.Fprintf(st.writer, "   Updated: %d\n", s.Updated)
	fmt.Fprintf(st.writer, "   Failed: %d\n", s.Failed)
	fmt.Fprintf(st.writer, "   Execution Time: %v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(st.writer, "\n")
}

// GetStatistics returns a copy of current statistics
func (st *StatsTracker) GetStatistics() Statistics {
	st.stats.mu.RLock()
	defer st.stats.mu.RUnlock()

	// Return a copy without the mutex to avoid copylocks issue
	return Statistics{
		StartTime:    st.stats.StartTime,
		ListCalls:    st.stats.ListCalls,
		UpdateCalls:  st.stats.UpdateCalls,
		FailedCalls:  st.stats.FailedCalls,
		RateLimited:  st.stats.RateLimited,
		RetryWait:    st.stats.RetryWait,
		Planned:      st.stats.Planned,
		Updated:      st.stats.Updated,
		Failed:       st.stats.Failed,
		TotalRetries: st.stats.TotalRetries,
		ActiveCalls:  st.stats.ActiveCalls,
		PeakInFlight: st.stats.PeakInFlight,
	}
}

type instrumented struct {
	inner   dashboard.Session
	tracker *StatsTracker
}

func (i *instrumented) ListOrganizations(ctx context.Context) ([]dashboard.Organization, error) {
	i.tracker.callStarted(false)
	orgs, err := i.inner.ListOrganizations(ctx)
	i.tracker.callFinished(err)
	return orgs, err
}

func (i *instrumented) ListNetworks(ctx context.Context, organizationID string) ([]dashboard.Network, error) {
	i.tracker.callStarted(false)
	networks, err := i.inner.ListNetworks(ctx, organizationID)
	i.tracker.callFinished(err)
	return networks, err
}

func (i *instrumented) ListSSIDs(ctx context.Context, networkID string) ([]dashboard.SSID, error) {
	i.tracker.callStarted(false)
	ssids, err := i.inner.ListSSIDs(ctx, networkID)
	i.tracker.callFinished(err)
	return ssids, err
}

func (i *instrumented) UpdateSSIDPSK(ctx context.Context, networkID string, number int, psk string) (dashboard.SSID, error) {
	i.tracker.callStarted(true)
	ssid, err := i.inner.UpdateSSIDPSK(ctx, networkID, number, psk)
	i.tracker.callFinished(err)
	return ssid, err
}

func (i *instrumented) Close() error {
	return i.inner.Close()
}
