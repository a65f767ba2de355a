package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"meraki-toolkit/internal/executor"
	"meraki-toolkit/internal/target"
)

func planned(org, network, ssid string) executor.Outcome {
	return executor.Outcome{
		Target: target.Target{OrganizationName: org, NetworkID: "N_" + network, NetworkName: network, SSIDName: ssid},
		Status: executor.StatusPlanned,
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputMode
		wantErr bool
	}{
		{"", TableMode, false},
		{"table", TableMode, false},
		{"json", JSONMode, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestDryRunTable(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(TableMode, &buf)
	result := executor.Result{
		DryRun:   true,
		Changed:  true,
		Outcomes: []executor.Outcome{planned("Org1", "HQ", "Guest"), planned("Org1", "Branch", "Guest")},
	}

	for _, o := range result.Outcomes {
		if err := f.Format(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Finalize(result, "Sunshine#4x"); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 8 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "DRYRUN Enabled: Changes below will not be applied") {
		t.Errorf("banner = %q", lines[1])
	}
	if lines[2] != strings.Repeat("-", 110) {
		t.Errorf("separator = %q", lines[2])
	}

	header := lines[3]
	if strings.Index(header, "Network:") != 26 || strings.Index(header, "SSID:") != 72 || strings.Index(header, "PSK:") != 93 {
		t.Errorf("header columns misaligned: %q", header)
	}
	if !strings.HasPrefix(lines[5], "Org1") || !strings.Contains(lines[5], "HQ") || !strings.HasSuffix(lines[5], "Sunshine#4x") {
		t.Errorf("row = %q", lines[5])
	}
	if !strings.Contains(lines[7], "Branch") {
		t.Errorf("row = %q", lines[7])
	}
}

func TestLiveTableIsSilent(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(TableMode, &buf)
	o := planned("Org1", "HQ", "Guest")
	o.Status = executor.StatusUpdated

	f.Format(o)
	if err := f.Finalize(executor.Result{Changed: true, Outcomes: []executor.Outcome{o}}, "secret-psk"); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("live table output = %q", buf.String())
	}
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(JSONMode, &buf)

	ok := planned("Org1", "HQ", "Guest")
	ok.Status = executor.StatusUpdated
	ok.Duration = 1500 * time.Millisecond
	ok.Retries = 2
	failed := planned("Org1", "Branch", "Guest")
	failed.Status = executor.StatusFailed
	failed.Err = errors.New("boom")
	failed.Error = "boom"

	f.Format(ok)
	f.Format(failed)
	result := executor.Result{Changed: true, Outcomes: []executor.Outcome{ok, failed}}
	if err := f.Finalize(result, "secret-psk"); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(buf.String(), "secret-psk") {
		t.Fatal("passphrase leaked into JSON output")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}

	var first TargetOutput
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Network != "HQ" || first.Status != "updated" || first.DurationMs != 1500 || first.Retries != 2 {
		t.Errorf("first = %+v", first)
	}

	var second TargetOutput
	json.Unmarshal([]byte(lines[1]), &second)
	if second.Error != "boom" {
		t.Errorf("second = %+v", second)
	}

	var summary SummaryOutput
	if err := json.Unmarshal([]byte(lines[2]), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Summary.Targets != 2 || summary.Summary.Updated != 1 || summary.Summary.Failed != 1 || !summary.Summary.Changed {
		t.Errorf("summary = %+v", summary.Summary)
	}
}
