package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"meraki-toolkit/internal/executor"
)

// OutputMode defines the available output formatting modes
type OutputMode string

const (
	// TableMode prints the fixed-width preview of a dry run
	TableMode OutputMode = "table"

	// JSONMode emits NDJSON objects, one per target, then a summary object
	JSONMode OutputMode = "json"
)

const separatorWidth = 110

// ParseMode validates an output mode name; empty selects the table
func ParseMode(s string) (OutputMode, error) {
	switch OutputMode(s) {
	case "":
		return TableMode, nil
	case TableMode, JSONMode:
		return OutputMode(s), nil
	default:
		return "", fmt.Errorf("invalid output mode '%s': must be table or json", s)
	}
}

// Formatter renders rotation outcomes
type Formatter interface {
	// Format processes a single finished target. Safe for concurrent use.
	Format(outcome executor.Outcome) error

	// Finalize writes whatever belongs after the last target
	Finalize(result executor.Result, passphrase string) error
}

// DefaultFormatter implements Formatter for both output modes
type DefaultFormatter struct {
	mode   OutputMode
	writer io.Writer
	banner lipgloss.Style
	mu     sync.Mutex
}

// NewFormatter creates a new formatter with the specified mode and writer
func NewFormatter(mode OutputMode, writer io.Writer) Formatter {
	if writer == nil {
		writer = os.Stdout
	}

	return &DefaultFormatter{
		mode:   mode,
		writer: writer,
		banner: lipgloss.NewRenderer(writer).NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// Format emits one NDJSON line in JSON mode. The table is only drawn by
// Finalize so that rows follow target order.
func (f *DefaultFormatter) Format(outcome executor.Outcome) error {
	if f.mode != JSONMode {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeJSON(newTargetOutput(outcome))
}

// Finalize prints the dry-run table in table mode and the summary object
// in JSON mode. A live table-mode run prints nothing here: its results go
// to the log.
func (f *DefaultFormatter) Finalize(result executor.Result, passphrase string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.mode {
	case JSONMode:
		return f.writeJSON(newSummaryOutput(result))
	case TableMode:
		if result.DryRun {
			return f.writeTable(result, passphrase)
		}
		return nil
	default:
		return fmt.Errorf("unknown output mode: %s", f.mode)
	}
}

func (f *DefaultFormatter) writeTable(result executor.Result, passphrase string) error {
	separator := strings.Repeat("-", separatorWidth)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(f.banner.Render("DRYRUN Enabled: Changes below will not be applied"))
	b.WriteString("\n")
	b.WriteString(separator + "\n")
	b.WriteString(row("Organization:", "Network:", "SSID:", "PSK:"))
	for _, o := range result.Outcomes {
		b.WriteString(separator + "\n")
		b.WriteString(row(o.Target.OrganizationName, o.Target.NetworkName, o.Target.SSIDName, passphrase))
	}

	if _, err := io.WriteString(f.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

func row(organization, network, ssid, psk string) string {
	line := fmt.Sprintf("%-25s %-45s %-20s %-20s", organization, network, ssid, psk)
	return strings.TrimRight(line, " ") + "\n"
}

// TargetOutput is the NDJSON line for one target. The passphrase is never
// part of it.
type TargetOutput struct {
	Organization string `json:"organization"`
	NetworkID    string `json:"network_id"`
	Network      string `json:"network"`
	SSIDNumber   int    `json:"ssid_number"`
	SSID         string `json:"ssid"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"duration_ms"`
	Retries      int    `json:"retries"`
	Error        string `json:"error,omitempty"`
}

func newTargetOutput(o executor.Outcome) TargetOutput {
	return TargetOutput{
		Organization: o.Target.OrganizationName,
		NetworkID:    o.Target.NetworkID,
		Network:      o.Target.NetworkName,
		SSIDNumber:   o.Target.SSIDNumber,
		SSID:         o.Target.SSIDName,
		Status:       string(o.Status),
		DurationMs:   o.Duration.Milliseconds(),
		Retries:      o.Retries,
		Error:        o.Error,
	}
}

// SummaryOutput is the last NDJSON line of a run
type SummaryOutput struct {
	Summary struct {
		Targets    int   `json:"targets"`
		Planned    int   `json:"planned"`
		Updated    int   `json:"updated"`
		Failed     int   `json:"failed"`
		Changed    bool  `json:"changed"`
		DryRun     bool  `json:"dry_run"`
		DurationMs int64 `json:"duration_ms"`
	} `json:"summary"`
}

func newSummaryOutput(result executor.Result) SummaryOutput {
	var out SummaryOutput
	updated, failed := result.Counts()
	out.Summary.Targets = len(result.Outcomes)
	out.Summary.Updated = updated
	out.Summary.Failed = failed
	for _, o := range result.Outcomes {
		if o.Status == executor.StatusPlanned {
			out.Summary.Planned++
		}
	}
	out.Summary.Changed = result.Changed
	out.Summary.DryRun = result.DryRun
	out.Summary.DurationMs = result.Duration.Milliseconds()
	return out
}

func (f *DefaultFormatter) writeJSON(v any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := fmt.Fprintf(f.writer, "%s\n", jsonBytes); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
