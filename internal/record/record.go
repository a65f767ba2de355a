// Package record keeps the audit record of a PSK rotation.
package record

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"meraki-toolkit/internal/executor"
	"meraki-toolkit/internal/filter"
	"meraki-toolkit/internal/target"
)

// OperationRecord describes one finalized rotation
type OperationRecord struct {
	ID         string             `json:"id"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Criteria   filter.Criteria    `json:"criteria"`
	Targets    []target.Target    `json:"targets"`
	Passphrase string             `json:"-"`
	DryRun     bool               `json:"dryRun"`
	Success    bool               `json:"success"`
	Outcomes   []executor.Outcome `json:"outcomes"`
}

// SSID returns the SSID name the record was created for
func (r *OperationRecord) SSID() string {
	return r.Criteria.SSID
}

// Recorder builds records and remembers the last finalized one
type Recorder struct {
	now func() time.Time

	mu   sync.Mutex
	last *OperationRecord
}

// NewRecorder returns a Recorder using the wall clock
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record finalizes a run. It returns nil when the result changed nothing;
// the discarded record does not replace Last.
func (r *Recorder) Record(startedAt time.Time, criteria filter.Criteria, targets []target.Target, passphrase string, result executor.Result) *OperationRecord {
	if !result.Changed {
		return nil
	}

	rec := &OperationRecord{
		ID:         uuid.NewString(),
		StartedAt:  startedAt,
		FinishedAt: r.now(),
		Criteria:   criteria.Clone(),
		Targets:    slices.Clone(targets),
		Passphrase: passphrase,
		DryRun:     result.DryRun,
		Success:    true,
		Outcomes:   slices.Clone(result.Outcomes),
	}

	r.mu.Lock()
	r.last = rec
	r.mu.Unlock()
	return rec
}

// Last returns the most recent finalized record, or nil
func (r *Recorder) Last() *OperationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// CanNotify reports whether a notification may be sent for rec: it must
// exist and be successful
func CanNotify(rec *OperationRecord) bool {
	return rec != nil && rec.Success
}
