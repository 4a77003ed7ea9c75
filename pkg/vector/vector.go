// Package vector holds the conformance test vectors: named command encodings
// paired with the exact response a compliant probe returns.
package vector

import (
	"fmt"

	"github.com/OpenTraceLab/dapcheck/pkg/dap"
)

// Vector is one request/response pair. It is immutable; accessors return
// copies.
type Vector struct {
	name     string
	input    []byte
	expected []byte
}

// New builds a vector, copying input and expected.
func New(name string, input, expected []byte) (Vector, error) {
	v := Vector{
		name:     name,
		input:    append([]byte(nil), input...),
		expected: append([]byte(nil), expected...),
	}
	if err := v.validate(); err != nil {
		return Vector{}, err
	}
	return v, nil
}

// MustNew is New for vectors known to be well formed.
func MustNew(name string, input, expected []byte) Vector {
	v, err := New(name, input, expected)
	if err != nil {
		panic(err)
	}
	return v
}

// Name identifies the vector within its suite.
func (v Vector) Name() string {
	return v.name
}

// Input returns a copy of the command encoding.
func (v Vector) Input() []byte {
	return append([]byte(nil), v.input...)
}

// Expected returns a copy of the expected response encoding.
func (v Vector) Expected() []byte {
	return append([]byte(nil), v.expected...)
}

// Family names the command the vector exercises.
func (v Vector) Family() string {
	if len(v.input) == 0 {
		return ""
	}
	return dap.CommandName(v.input[0])
}

// Descriptors decodes the descriptors of a DAP_JTAG_Sequence vector. It
// reports false for other commands and for deliberately malformed requests.
func (v Vector) Descriptors() ([]dap.Descriptor, bool) {
	if len(v.input) == 0 || v.input[0] != dap.CmdJTAGSequence {
		return nil, false
	}
	ds, err := dap.DecodeSequenceRequest(v.input)
	if err != nil {
		return nil, false
	}
	return ds, true
}

func (v Vector) String() string {
	return fmt.Sprintf("%s [% X] => [% X]", v.name, v.input, v.expected)
}

func (v Vector) validate() error {
	if v.name == "" {
		return fmt.Errorf("vector has no name")
	}
	if len(v.input) == 0 {
		return fmt.Errorf("empty input")
	}
	if len(v.expected) == 0 {
		return fmt.Errorf("empty expected response")
	}

	// A successful DAP_JTAG_Sequence returns exactly one payload chunk per
	// capturing descriptor.
	ds, ok := v.Descriptors()
	if ok && len(v.expected) >= 2 && v.expected[0] == dap.CmdJTAGSequence && v.expected[1] == dap.StatusOK {
		if want := 2 + dap.CapturedLen(ds); len(v.expected) != want {
			return fmt.Errorf("JTAG sequence captures %d bytes, expected response has %d",
				dap.CapturedLen(ds), len(v.expected)-2)
		}
	}
	return nil
}
