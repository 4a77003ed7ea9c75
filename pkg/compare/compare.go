// Package compare checks probe responses against expected encodings and
// reports the outcome.
package compare

// Mismatch is one differing byte position.
type Mismatch struct {
	Index    int
	Actual   byte
	Expected byte
}

// Verdict is the outcome of comparing one response.
type Verdict struct {
	Pass       bool
	Mismatches []Mismatch

	ActualLen   int
	ExpectedLen int

	// LengthMismatch is set whenever the lengths differ, even when Options
	// allowed the verdict to pass.
	LengthMismatch bool
}

// FirstMismatch returns the lowest differing index, or -1. A length
// difference without byte mismatches reports the end of the shorter side.
func (v Verdict) FirstMismatch() int {
	if len(v.Mismatches) > 0 {
		return v.Mismatches[0].Index
	}
	if v.LengthMismatch {
		return min(v.ActualLen, v.ExpectedLen)
	}
	return -1
}

// Options adjusts how verdicts are reached.
type Options struct {
	// AllowLengthMismatch passes responses whose overlapping bytes match even
	// when the lengths differ. The length difference is still recorded.
	AllowLengthMismatch bool
}

// Compare checks actual against expected position by position over the
// shorter of the two. The verdict passes only with no byte mismatches and
// equal lengths.
func Compare(actual, expected []byte) Verdict {
	return Options{}.Compare(actual, expected)
}

// Compare checks actual against expected under o.
func (o Options) Compare(actual, expected []byte) Verdict {
	v := Verdict{
		ActualLen:      len(actual),
		ExpectedLen:    len(expected),
		LengthMismatch: len(actual) != len(expected),
	}

	n := min(len(actual), len(expected))
	for i := 0; i < n; i++ {
		if actual[i] != expected[i] {
			v.Mismatches = append(v.Mismatches, Mismatch{Index: i, Actual: actual[i], Expected: expected[i]})
		}
	}

	v.Pass = len(v.Mismatches) == 0 && (!v.LengthMismatch || o.AllowLengthMismatch)
	return v
}
