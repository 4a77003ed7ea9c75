package compare

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/OpenTraceLab/dapcheck/pkg/dap"
	"github.com/OpenTraceLab/dapcheck/pkg/vector"
)

// Summary totals a run for the final report line.
type Summary struct {
	Suite    string
	Total    int // vectors selected
	Executed int
	Passed   int
	Failed   int
	Complete bool
	Fault    error
	Elapsed  time.Duration
}

// Reporter receives run progress. Implementations must not abort the run on
// a failed verdict.
type Reporter interface {
	Begin(suite string, total int)
	Report(v vector.Vector, actual []byte, verdict Verdict)
	Fault(v vector.Vector, err error)
	End(s Summary)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Begin(string, int)                    {}
func (NopReporter) Report(vector.Vector, []byte, Verdict) {}
func (NopReporter) Fault(vector.Vector, error)           {}
func (NopReporter) End(Summary)                          {}

// TextReporter writes the human-readable per-vector trace and summary.
type TextReporter struct {
	w io.Writer

	// FailuresOnly suppresses the trace of passing vectors.
	FailuresOnly bool
}

// NewTextReporter returns a reporter writing to w.
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

func (r *TextReporter) Begin(suite string, total int) {
	fmt.Fprintf(r.w, "Suite %s: %d vectors\n\n", suite, total)
}

func (r *TextReporter) Report(v vector.Vector, actual []byte, verdict Verdict) {
	if verdict.Pass && r.FailuresOnly {
		return
	}

	fmt.Fprintf(r.w, "============== %s\n", v.Name())
	fmt.Fprintf(r.w, ">>> %s [%d]\n", hexBytes(v.Input()), len(v.Input()))
	fmt.Fprintf(r.w, "<<< %s [%d]\n", FormatDiff(actual, v.Expected()), len(actual))

	if verdict.LengthMismatch {
		fmt.Fprintf(r.w, "    length: got %d bytes, expected %d\n", verdict.ActualLen, verdict.ExpectedLen)
		if verdict.ActualLen > verdict.ExpectedLen {
			fmt.Fprintf(r.w, "    unchecked: %s\n", hexBytes(actual[verdict.ExpectedLen:]))
		}
	}
	for _, line := range annotate(v, actual) {
		fmt.Fprintf(r.w, "    %s\n", line)
	}

	if verdict.Pass {
		fmt.Fprintln(r.w, "PASS")
	} else {
		fmt.Fprintf(r.w, "FAIL (%d byte mismatches)\n", len(verdict.Mismatches))
	}
}

func (r *TextReporter) Fault(v vector.Vector, err error) {
	fmt.Fprintf(r.w, "============== %s\n", v.Name())
	fmt.Fprintf(r.w, ">>> %s [%d]\n", hexBytes(v.Input()), len(v.Input()))
	fmt.Fprintf(r.w, "*** transport fault: %v\n", err)
}

func (r *TextReporter) End(s Summary) {
	fmt.Fprintln(r.w)
	status := "PASS"
	switch {
	case !s.Complete:
		status = "INCOMPLETE"
	case s.Failed > 0:
		status = "FAIL"
	}
	fmt.Fprintf(r.w, "%s: suite %s, %d/%d executed, %d passed, %d failed",
		status, s.Suite, s.Executed, s.Total, s.Passed, s.Failed)
	if s.Elapsed > 0 {
		fmt.Fprintf(r.w, " in %v", s.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(r.w)
	if !s.Complete {
		fmt.Fprintf(r.w, "Run aborted after %d vectors: %v\n", s.Executed, s.Fault)
	}
}

// FormatDiff renders actual as hex, marking each byte that differs from
// expected as Got:0xAA/0xBB!! (actual/expected).
func FormatDiff(actual, expected []byte) string {
	parts := make([]string, len(actual))
	for i, b := range actual {
		if i < len(expected) && b != expected[i] {
			parts[i] = fmt.Sprintf("Got:0x%02x/0x%02x!!", b, expected[i])
			continue
		}
		parts[i] = fmt.Sprintf("0x%02x", b)
	}
	return strings.Join(parts, " ")
}

func hexBytes(b []byte) string {
	return fmt.Sprintf("% x", b)
}

// annotate decodes the TDO captures of a successful JTAG sequence response.
func annotate(v vector.Vector, actual []byte) []string {
	ds, ok := v.Descriptors()
	if !ok {
		return nil
	}
	caps, err := dap.DecodeSequenceResponse(actual, ds)
	if err != nil {
		return nil
	}

	var lines []string
	for i, c := range caps {
		lines = append(lines, fmt.Sprintf("capture %d: %s", i, hexBytes(c)))
		if len(c) >= 4 {
			for _, id := range dap.IDCodesFromCapture(c) {
				lines = append(lines, "  IDCODE "+id.String())
			}
		}
	}
	return lines
}
