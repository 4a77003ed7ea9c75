package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/dapcheck/internal/config"
	"github.com/OpenTraceLab/dapcheck/internal/logging"
	"github.com/OpenTraceLab/dapcheck/pkg/transport"
)

// Process exit codes
const (
	ExitPass  = 0 // every vector passed
	ExitFail  = 1 // at least one vector failed
	ExitFault = 2 // transport fault, run incomplete
	ExitSetup = 3 // configuration, catalog or adapter setup error
)

var (
	// Global flags
	configPath string
	verbose    bool
	logLevel   string
	noColor    bool

	cfg    config.Config
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "dapcheck",
	Short: "CMSIS-DAP probe firmware conformance tester",
	Long: `Send catalogs of raw CMSIS-DAP command vectors to a probe over USB bulk
and compare every response byte-for-byte with the expected reply.

Examples:
  dapcheck run                                  # Run the smoke suite on the first Orbtrace
  dapcheck run --suite full --adapter sim       # Run the full suite on the simulator
  dapcheck run --suite full --serial 12AB -v    # Pick a probe by serial, trace every exchange
  dapcheck list full                            # Show the vectors of a suite
  dapcheck probes                               # List connected probes`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to the process exit code. Errors without an
// explicit code are transport faults when they carry a transport.Error and
// setup errors otherwise.
func exitCode(err error) int {
	if err == nil {
		return ExitPass
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if _, ok := transport.AsError(err); ok {
		return ExitFault
	}
	return ExitSetup
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

// setup loads the configuration and builds the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return withCode(ExitSetup, err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		if _, ok := logging.ParseLevel(logLevel); !ok {
			return withCode(ExitSetup, fmt.Errorf("unknown log level %q", logLevel))
		}
		loaded.Log.Level = logLevel
	} else if verbose {
		loaded.Log.Level = "debug"
	}
	if flags.Changed("no-color") {
		loaded.Log.NoColor = noColor
	}

	cfg = loaded
	logger = logging.Init(cmd.ErrOrStderr(), cfg.Log)
	logger.Debug().Str("config", configPath).Str("suite", cfg.Suite).Str("adapter", cfg.Adapter).Msg("configuration loaded")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured log output")
}
