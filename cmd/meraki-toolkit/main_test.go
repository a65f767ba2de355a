package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meraki-toolkit/internal/dashboard"
	"meraki-toolkit/internal/inventory"
	"meraki-toolkit/internal/logging"
	"meraki-toolkit/internal/rotation"
)

const snapshotYAML = `
organizations:
  - id: O_1
    name: Org1
    networks:
      - id: N_1
        name: HQ
        ssids:
          - {number: 0, name: Corp, psk: corpsecret}
          - {number: 1, name: Guest, psk: oldguestpsk}
      - id: N_2
        name: Branch
        ssids:
          - {number: 0, name: Guest, psk: oldguestpsk}
`

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return executeApp(t, nil, args...)
}

// executeApp runs the command tree; customize, if set, adjusts the app
// before the command runs
func executeApp(t *testing.T, customize func(*app), args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("MERAKITK_PSK", "")
	t.Setenv("MERAKITK_SMTP", "")
	t.Setenv("MERAKI_DASHBOARD_API_KEY", "")

	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	if customize != nil {
		customize(a)
	}
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeSnapshot(t *testing.T) string {
	t.Helper()
	return writeSnapshotContent(t, snapshotYAML)
}

func writeSnapshotContent(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type failingClose struct {
	dashboard.Session
}

func (failingClose) Close() error { return errors.New("write-back failed") }

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"execution", &ExecutionError{Message: "nothing changed"}, 1},
		{"setup", &SetupError{Message: "bad flag"}, 2},
		{"unknown", errors.New("boom"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNoCommandShowsHelp(t *testing.T) {
	stdout, _, err := execute(t)
	if getExitCode(err) != 1 {
		t.Errorf("exit = %d, want 1", getExitCode(err))
	}
	if !strings.Contains(stdout, "psktemplategen") {
		t.Errorf("help not shown:\n%s", stdout)
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "meraki-toolkit dev") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestPSKShortPassphraseIsSetupError(t *testing.T) {
	_, _, err := execute(t, "psk", "-o", "Org1", "-n", "ALL", "-s", "Guest", "-p", "short",
		"--inventory", writeSnapshot(t))
	if getExitCode(err) != 2 {
		t.Errorf("err = %v, exit = %d", err, getExitCode(err))
	}
}

func TestPSKMissingSSIDIsSetupError(t *testing.T) {
	_, _, err := execute(t, "psk", "-o", "Org1", "-n", "ALL", "-p", "Rotated#Key9",
		"--inventory", writeSnapshot(t))
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Errorf("err = %v, want setup error", err)
	}
}

func TestPSKDryRunPrintsTable(t *testing.T) {
	path := writeSnapshot(t)
	stdout, _, err := execute(t, "psk", "-o", "Org1", "-n", "ALL", "-s", "Guest", "-p", "Rotated#Key9",
		"--dryrun", "--inventory", path, "--inventory-write")
	if err != nil {
		t.Fatalf("psk: %v", err)
	}

	if !strings.Contains(stdout, "DRYRUN Enabled") {
		t.Errorf("missing dry run banner:\n%s", stdout)
	}
	for _, network := range []string{"HQ", "Branch"} {
		if !strings.Contains(stdout, network) {
			t.Errorf("table missing %s:\n%s", network, stdout)
		}
	}

	dir, err := inventory.Load(path, false)
	if err != nil {
		t.Fatal(err)
	}
	ssids, err := dir.ListSSIDs(t.Context(), "N_1")
	if err != nil {
		t.Fatal(err)
	}
	if ssids[1].PSK != "oldguestpsk" {
		t.Errorf("dry run changed the snapshot: %q", ssids[1].PSK)
	}
}

func TestPSKLiveWritesInventory(t *testing.T) {
	path := writeSnapshot(t)
	stdout, _, err := execute(t, "psk", "-o", "Org1", "-n", "HQ", "-s", "Guest", "-p", "Rotated#Key9",
		"--output", "json", "--inventory", path, "--inventory-write")
	if err != nil {
		t.Fatalf("psk: %v", err)
	}
	if strings.Contains(stdout, "Rotated#Key9") {
		t.Error("passphrase leaked to JSON output")
	}

	dir, err := inventory.Load(path, false)
	if err != nil {
		t.Fatal(err)
	}
	ssids, err := dir.ListSSIDs(t.Context(), "N_1")
	if err != nil {
		t.Fatal(err)
	}
	if ssids[1].PSK != "Rotated#Key9" {
		t.Errorf("N_1 Guest psk = %q", ssids[1].PSK)
	}
	branch, err := dir.ListSSIDs(t.Context(), "N_2")
	if err != nil {
		t.Fatal(err)
	}
	if branch[0].PSK != "oldguestpsk" {
		t.Errorf("unselected network changed: %q", branch[0].PSK)
	}
}

func TestPSKNoMatchIsExecutionError(t *testing.T) {
	_, _, err := execute(t, "psk", "-o", "Org1", "-n", "ALL", "-s", "Lobby", "-p", "Rotated#Key9",
		"--inventory", writeSnapshot(t))
	if getExitCode(err) != 1 {
		t.Errorf("err = %v, exit = %d", err, getExitCode(err))
	}
}

func TestPSKEmailWithoutServerIsSetupError(t *testing.T) {
	_, _, err := execute(t, "psk", "-o", "Org1", "-n", "ALL", "-s", "Guest", "-p", "Rotated#Key9",
		"-e", "ops@example.com", "--inventory", writeSnapshot(t))
	if getExitCode(err) != 2 {
		t.Errorf("err = %v, exit = %d", err, getExitCode(err))
	}
}

func TestPSKTemplateGen(t *testing.T) {
	t.Chdir(t.TempDir())

	stdout, _, err := execute(t, "psktemplategen")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("templates", "psk", "default")
	if !strings.Contains(stdout, want) {
		t.Errorf("stdout = %q, want %s", stdout, want)
	}
	if _, err := os.Stat(filepath.Join(want, "templatehtml.tmpl")); err != nil {
		t.Error(err)
	}
}

func TestPSKCloseFailureStillNotifies(t *testing.T) {
	path := writeSnapshot(t)
	useFailingClose := func(a *app) {
		a.openSession = func(*logging.Logger) rotation.Opener {
			return func(context.Context) (dashboard.Session, error) {
				dir, err := inventory.Load(path, false)
				if err != nil {
					return nil, err
				}
				return failingClose{dir}, nil
			}
		}
	}

	// Nothing listens on port 1, so delivery fails fast after composing
	_, stderr, err := executeApp(t, useFailingClose, "psk", "-o", "Org1", "-n", "HQ", "-s", "Guest",
		"-p", "Rotated#Key9", "-e", "ops@example.com",
		"--smtp-server", "127.0.0.1", "--smtp-port", "1", "--smtp-mode", "SMTP")

	if err == nil || !strings.Contains(err.Error(), "write-back failed") {
		t.Fatalf("err = %v, want the close failure", err)
	}
	if getExitCode(err) != 2 {
		t.Errorf("exit = %d, want 2", getExitCode(err))
	}
	if !strings.Contains(stderr, "notification failed") {
		t.Errorf("notification was not attempted:\n%s", stderr)
	}
}

func TestPSKPartialFailureWarns(t *testing.T) {
	path := writeSnapshotContent(t, snapshotYAML+`      - id: N_9
        name: Cameras
        productTypes: [camera]
`)
	_, stderr, err := execute(t, "psk", "-o", "Org1", "-n", "ALL", "-s", "Guest", "-p", "Rotated#Key9",
		"--inventory", path)
	if err != nil {
		t.Fatalf("psk: %v", err)
	}
	if !strings.Contains(stderr, "Warning: completed with errors") || !strings.Contains(stderr, "api:") {
		t.Errorf("per-network errors not reported:\n%s", stderr)
	}
}
