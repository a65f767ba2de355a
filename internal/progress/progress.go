// Package progress draws a progress bar while PSK updates complete.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"meraki-toolkit/internal/executor"
)

// ProgressTracker tracks and displays update progress
type ProgressTracker struct {
	total     int
	completed int
	failed    int
	startTime time.Time
	mu        sync.RWMutex
	writer    io.Writer
	enabled   bool
	lastDraw  time.Time
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int, writer io.Writer, enabled bool) *ProgressTracker {
	return &ProgressTracker{
		total:     total,
		startTime: time.Now(),
		writer:    writer,
		enabled:   enabled,
	}
}

// IsTerminal reports whether w is an interactive terminal. A bar written
// anywhere else would only add carriage-return noise.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Observe records one finished target. Safe for concurrent use; its
// signature matches the executor outcome hook.
func (p *ProgressTracker) Observe(o executor.Outcome) {
	p.Update(o.Status != executor.StatusFailed)
}

// Update increments the progress counters
func (p *ProgressTracker) Update(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if success {
		p.completed++
	} else {
		p.failed++
	}

	if p.enabled {
		p.draw()
	}
}

// Finish completes the progress tracking and shows the summary line
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled {
		p.drawFinal()
	}
}

func (p *ProgressTracker) draw() {
	now := time.Now()
	if now.Sub(p.lastDraw) < 100*time.Millisecond && p.completed+p.failed < p.total {
		return
	}
	p.lastDraw = now

	done := p.completed + p.failed
	if p.total == 0 {
		return
	}

	percentage := float64(done) / float64(p.total) * 100
	elapsed := now.Sub(p.startTime)

	const barWidth = 40
	filled := int(float64(barWidth) * percentage / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	// [████████████░░░░░░░░] 75.0% (15/20) ✓12 ✗3 [2s]
	fmt.Fprintf(p.writer, "\r[%s] %.1f%% (%d/%d) ✓%d ✗%d [%v]",
		bar, percentage, done, p.total, p.completed, p.failed,
		elapsed.Round(time.Second))
}

func (p *ProgressTracker) drawFinal() {
	elapsed := time.Since(p.startTime)

	fmt.Fprintf(p.writer, "\r\033[K")
	if p.failed == 0 {
		fmt.Fprintf(p.writer, "✓ Updated %d/%d networks in %v\n",
			p.completed, p.total, elapsed.Round(time.Millisecond))
	} else {
		fmt.Fprintf(p.writer, "⚠ Processed %d/%d networks (%d updated, %d failed) in %v\n",
			p.completed+p.failed, p.total, p.completed, p.failed, elapsed.Round(time.Millisecond))
	}
}

// GetStats returns current progress statistics
func (p *ProgressTracker) GetStats() (completed, failed, total int, elapsed time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.completed, p.failed, p.total, time.Since(p.startTime)
}
