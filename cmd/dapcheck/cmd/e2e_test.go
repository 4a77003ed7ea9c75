package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/dapcheck/pkg/transport"
)

// resetFlags returns every flag to its default between executions of the
// shared root command.
func resetFlags() {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				sv.Replace(nil)
			} else {
				f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
}

// execute runs the CLI with args and returns stdout, stderr and the exit code.
func execute(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	resetFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), exitCode(err)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunE2E(t *testing.T) {
	t.Setenv("DAPCHECK_SUITE", "")
	t.Setenv("DAPCHECK_ADAPTER", "")

	custom := writeFile(t, "custom.dapv", `
suite custom "Local checks" {
  "FW version":     <00 04> => <00 05> "1.00" <00>;
  "Wrong LED ack":  <01 00 01> => <01 01>;
  "Disconnect":     <03> => <03 00>;
}
`)
	badFirmware := writeFile(t, "sim.toml", `
adapter = "sim"
[sim]
firmware = "2.00"
`)

	tests := []struct {
		name        string
		args        []string
		wantCode    int
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:     "smoke on simulator",
			args:     []string{"run", "--adapter", "sim"},
			wantCode: ExitPass,
			wantContain: []string{
				"Suite smoke: 3 vectors",
				"============== FW version",
				"IDCODE 0x4BA00477",
				"PASS: suite smoke, 3/3 executed, 3 passed, 0 failed",
			},
		},
		{
			name:        "full on simulator",
			args:        []string{"run", "--adapter", "sim", "--suite", "full", "--failures-only"},
			wantCode:    ExitPass,
			wantContain: []string{"PASS: suite full"},
			wantAbsent:  []string{"==============", "FAIL"},
		},
		{
			name:        "selected vectors",
			args:        []string{"run", "-a", "sim", "--only", "FW version"},
			wantCode:    ExitPass,
			wantContain: []string{"Suite smoke: 1 vectors", "1/1 executed"},
			wantAbsent:  []string{"DAP_SWJ_Clock"},
		},
		{
			name:     "custom suite with a failure",
			args:     []string{"run", "-a", "sim", "--vectors", custom, "--suite", "custom"},
			wantCode: ExitFail,
			wantContain: []string{
				"Got:0x00/0x01!!",
				"FAIL (1 byte mismatches)",
				"FAIL: suite custom, 3/3 executed, 2 passed, 1 failed",
			},
		},
		{
			name:        "config file selects simulator",
			args:        []string{"--config", badFirmware, "run", "--only", "FW version"},
			wantCode:    ExitFail,
			wantContain: []string{"FAIL: suite smoke"},
		},
		{
			name:     "unknown suite",
			args:     []string{"run", "-a", "sim", "--suite", "nope"},
			wantCode: ExitSetup,
		},
		{
			name:     "unknown vector",
			args:     []string{"run", "-a", "sim", "--only", "nope"},
			wantCode: ExitSetup,
		},
		{
			name:     "bad adapter",
			args:     []string{"run", "-a", "ftdi"},
			wantCode: ExitSetup,
		},
		{
			name:     "bad log level",
			args:     []string{"--log-level", "loud", "run", "-a", "sim"},
			wantCode: ExitSetup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, code := execute(t, tt.args...)

			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d\nstdout:\n%s\nstderr:\n%s", code, tt.wantCode, stdout, stderr)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(stdout, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, stdout)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(stdout, absent) {
					t.Errorf("Output contains unexpected string: %q\nGot:\n%s", absent, stdout)
				}
			}
		})
	}
}

func TestRunVerboseLogsToStderr(t *testing.T) {
	stdout, stderr, code := execute(t, "-v", "--no-color", "run", "-a", "sim", "--only", "FW version")
	if code != ExitPass {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stderr, "vector=") {
		t.Errorf("debug log missing vector field:\n%s", stderr)
	}
	if strings.Contains(stdout, "vector=") {
		t.Errorf("log lines leaked into the report:\n%s", stdout)
	}
}

func TestListE2E(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantCode    int
		wantContain []string
	}{
		{
			name:        "suites",
			args:        []string{"list"},
			wantContain: []string{"SUITE", "smoke", "Development run set", "full", "Full regression"},
		},
		{
			name:        "vectors of smoke",
			args:        []string{"list", "smoke"},
			wantContain: []string{"Suite smoke: 3 vectors", "FW version", "DAP_Info", "00 04", "[23]"},
		},
		{
			name:     "unknown suite",
			args:     []string{"list", "nope"},
			wantCode: ExitSetup,
		},
		{
			name:     "too many arguments",
			args:     []string{"list", "smoke", "full"},
			wantCode: ExitSetup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, code := execute(t, tt.args...)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d\n%s", code, tt.wantCode, stdout)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(stdout, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, stdout)
				}
			}
		})
	}
}

func TestInfoE2E(t *testing.T) {
	stdout, stderr, code := execute(t, "info", "--adapter", "sim", "--devices", "2")
	if code != ExitPass {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}
	for _, want := range []string{
		"Firmware:      1.00",
		"Capabilities:  0x01 SWD",
		"Packets:       64 x 64 bytes",
		"SWO buffer:    1000 bytes",
		"Connected:     SWD",
		"Device 0:      0x44332211",
		"Device 1:      0x44332211",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Output missing expected string: %q\nGot:\n%s", want, stdout)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitPass},
		{"explicit", withCode(ExitFail, errors.New("2 of 9 vectors failed")), ExitFail},
		{"transport", fmt.Errorf("vector %q: %w", "x", transport.NewError(transport.ReadTimeout, nil)), ExitFault},
		{"other", errors.New("unknown flag: --frob"), ExitSetup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
	if withCode(ExitFail, nil) != nil {
		t.Errorf("withCode(nil) should be nil")
	}
}
