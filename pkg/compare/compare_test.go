package compare

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/OpenTraceLab/dapcheck/pkg/vector"
	"github.com/google/go-cmp/cmp"
)

func TestCompareIdentical(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		x := make([]byte, r.Intn(64))
		r.Read(x)
		v := Compare(x, append([]byte(nil), x...))
		if !v.Pass || len(v.Mismatches) != 0 || v.LengthMismatch {
			t.Fatalf("Compare(x, x) = %+v for x=% X", v, x)
		}
	}
}

func TestCompareFirstDifference(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		n := 1 + r.Intn(64)
		x := make([]byte, n)
		r.Read(x)
		y := append([]byte(nil), x...)
		k := r.Intn(n)
		y[k] ^= 0xFF

		v := Compare(x, y)
		if v.Pass {
			t.Fatalf("differing sequences passed")
		}
		if v.Mismatches[0].Index != k || v.FirstMismatch() != k {
			t.Fatalf("first mismatch at %d, want %d", v.Mismatches[0].Index, k)
		}
		if v.Mismatches[0].Actual != x[k] || v.Mismatches[0].Expected != y[k] {
			t.Fatalf("mismatch bytes = %+v", v.Mismatches[0])
		}
	}
}

func TestCompareLength(t *testing.T) {
	tests := []struct {
		name     string
		actual   []byte
		expected []byte
		opts     Options
		want     Verdict
	}{
		{
			name:     "longer actual strict",
			actual:   []byte{0x14, 0x00, 0x80, 0x00},
			expected: []byte{0x14, 0x00, 0x80},
			want:     Verdict{Pass: false, ActualLen: 4, ExpectedLen: 3, LengthMismatch: true},
		},
		{
			name:     "shorter actual strict",
			actual:   []byte{0xFF},
			expected: []byte{0xFF, 0x00},
			want:     Verdict{Pass: false, ActualLen: 1, ExpectedLen: 2, LengthMismatch: true},
		},
		{
			name:     "overlap mode passes",
			actual:   []byte{0x14, 0x00, 0x80, 0x00},
			expected: []byte{0x14, 0x00, 0x80},
			opts:     Options{AllowLengthMismatch: true},
			want:     Verdict{Pass: true, ActualLen: 4, ExpectedLen: 3, LengthMismatch: true},
		},
		{
			name:     "overlap mode still fails on bytes",
			actual:   []byte{0x14, 0x01},
			expected: []byte{0x14, 0x00, 0x80},
			opts:     Options{AllowLengthMismatch: true},
			want: Verdict{
				Mismatches:     []Mismatch{{Index: 1, Actual: 0x01, Expected: 0x00}},
				ActualLen:      2,
				ExpectedLen:    3,
				LengthMismatch: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.Compare(tt.actual, tt.expected)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Compare() (-want +got):\n%s", diff)
			}
		})
	}

	v := Compare([]byte{1, 2, 3}, []byte{1, 2})
	if v.FirstMismatch() != 2 {
		t.Errorf("FirstMismatch() = %d, want 2", v.FirstMismatch())
	}
}

func TestFormatDiff(t *testing.T) {
	got := FormatDiff([]byte{0x14, 0x01, 0x80, 0x99}, []byte{0x14, 0x00, 0x80})
	want := "0x14 Got:0x01/0x00!! 0x80 0x99"
	if got != want {
		t.Errorf("FormatDiff() = %q, want %q", got, want)
	}
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf)

	walk := vector.MustNew("walk",
		[]byte{0x14, 0x01, 0xA0, 0, 0, 0, 0},
		[]byte{0x14, 0x00, 0x77, 0x04, 0xA0, 0x4B})
	actual := []byte{0x14, 0x00, 0x77, 0x04, 0xA0, 0x4B}

	r.Begin("smoke", 2)
	r.Report(walk, actual, Compare(actual, walk.Expected()))

	fw := vector.MustNew("FW version", []byte{0x00, 0x04}, []byte{0x00, 0x05})
	r.Report(fw, []byte{0x00, 0x06, 0x00}, Compare([]byte{0x00, 0x06, 0x00}, fw.Expected()))
	r.End(Summary{Suite: "smoke", Total: 2, Executed: 2, Passed: 1, Failed: 1, Complete: true})

	out := buf.String()
	for _, want := range []string{
		"============== walk",
		"capture 0: 77 04 a0 4b",
		"IDCODE 0x4BA00477",
		"PASS\n",
		"Got:0x06/0x05!!",
		"length: got 3 bytes, expected 2",
		"FAIL (1 byte mismatches)",
		"FAIL: suite smoke, 2/2 executed, 1 passed, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestTextReporterIncomplete(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextReporter(&buf)
	r.FailuresOnly = true

	v := vector.MustNew("Disconnect", []byte{0x03}, []byte{0x03, 0x00})
	r.Report(v, []byte{0x03, 0x00}, Compare([]byte{0x03, 0x00}, v.Expected()))
	if buf.Len() != 0 {
		t.Errorf("passing vector printed with FailuresOnly:\n%s", buf.String())
	}

	fault := errors.New("read timeout")
	r.Fault(v, fault)
	r.End(Summary{Suite: "full", Total: 10, Executed: 3, Passed: 3, Fault: fault})

	out := buf.String()
	for _, want := range []string{"transport fault: read timeout", "INCOMPLETE: suite full, 3/10 executed", "Run aborted after 3 vectors"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
