package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/dapcheck/internal/config"
	"github.com/OpenTraceLab/dapcheck/pkg/compare"
	"github.com/OpenTraceLab/dapcheck/pkg/runner"
	"github.com/OpenTraceLab/dapcheck/pkg/vector"
)

var (
	suiteName    string
	adapterType  string
	timeout      time.Duration
	probeSerial  string
	vectorFiles  []string
	onlyVectors  []string
	lenient      bool
	failuresOnly bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a conformance suite against a probe",
	Long: `Send every vector of a suite to the probe in order and compare each
response with its expected bytes. Mismatches are reported and the run
continues; a transport fault (timeout, failed transfer, empty response)
stops the run and the remaining vectors are not executed.

Exit status is 0 when every vector passed, 1 when any failed, 2 on a
transport fault and 3 on a setup error.

Examples:
  # Smoke test the first Orbtrace found
  dapcheck run

  # Full suite against the simulator, failures only
  dapcheck run --suite full --adapter sim --failures-only

  # Two vectors from a custom catalog
  dapcheck run --vectors my.dapv --suite mine --only "Info FW" --only "SWJ Clock"`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&suiteName, "suite", "s", "", "suite to run (default from config, else smoke)")
	runCmd.Flags().StringVarP(&adapterType, "adapter", "a", "", "adapter type (usb, sim)")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "receive timeout per vector (e.g. 500ms)")
	runCmd.Flags().StringVar(&probeSerial, "serial", "", "probe serial number (substring match)")
	runCmd.Flags().StringSliceVar(&vectorFiles, "vectors", nil, "additional vector notation files")
	runCmd.Flags().StringArrayVar(&onlyVectors, "only", nil, "run only the named vector (repeatable)")
	runCmd.Flags().BoolVar(&lenient, "lenient", false, "compare only the overlapping bytes when lengths differ")
	runCmd.Flags().BoolVar(&failuresOnly, "failures-only", false, "print only failing vectors and the summary")
}

// applyRunFlags overlays the flags the user set on the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c config.Config) (config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("suite") {
		c.Suite = suiteName
	}
	if flags.Changed("adapter") {
		c.Adapter = strings.ToLower(adapterType)
	}
	if flags.Changed("timeout") {
		c.Timeout = timeout
	}
	if flags.Changed("serial") {
		c.USB.Serial = probeSerial
	}
	if flags.Changed("vectors") {
		c.Vectors = append(c.Vectors, vectorFiles...)
	}
	if flags.Changed("lenient") {
		c.AllowLengthMismatch = lenient
	}
	return c, c.Validate()
}

// selectVectors keeps the named vectors in suite order. Every name must exist.
func selectVectors(s *vector.Suite, names []string) ([]vector.Vector, error) {
	if len(names) == 0 {
		return s.Vectors(), nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := s.Vector(name); !ok {
			return nil, fmt.Errorf("suite %s has no vector %q", s.Name, name)
		}
		want[name] = true
	}

	var out []vector.Vector
	for _, v := range s.Vectors() {
		if want[v.Name()] {
			out = append(out, v)
		}
	}
	return out, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	c, err := applyRunFlags(cmd, cfg)
	if err != nil {
		return withCode(ExitSetup, err)
	}

	cat, err := loadCatalog(c.Vectors)
	if err != nil {
		return withCode(ExitSetup, err)
	}
	suite, err := cat.Suite(c.Suite)
	if err != nil {
		return withCode(ExitSetup, err)
	}
	vectors, err := selectVectors(suite, onlyVectors)
	if err != nil {
		return withCode(ExitSetup, err)
	}

	t, err := openTransport(c)
	if err != nil {
		return withCode(ExitSetup, err)
	}
	defer t.Close()

	reporter := compare.NewTextReporter(cmd.OutOrStdout())
	reporter.FailuresOnly = failuresOnly

	r := runner.New(t,
		runner.WithLogger(logger),
		runner.WithReporter(reporter),
		runner.WithTimeout(c.Timeout),
		runner.WithMaxResponse(c.MaxResponse),
		runner.WithCompareOptions(compare.Options{AllowLengthMismatch: c.AllowLengthMismatch}),
		runner.WithSuite(suite.Name),
	)

	res, err := r.Run(cmd.Context(), vectors)
	if err != nil {
		return withCode(ExitFault, err)
	}
	if !res.OK() {
		return withCode(ExitFail, fmt.Errorf("%d of %d vectors failed", res.Failed(), res.Total))
	}
	return nil
}
