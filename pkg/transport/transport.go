package transport

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultTimeout bounds a single Receive.
	DefaultTimeout = 1000 * time.Millisecond

	// MaxResponseSize is the largest single response read the protocol allows.
	MaxResponseSize = 65535
)

// Transport exchanges opaque byte sequences with a device under test. It owns
// no protocol knowledge.
type Transport interface {
	// Send writes the whole buffer to the device's output channel.
	Send(data []byte) (int, error)

	// Receive waits up to timeout for a response of at most maxLen bytes.
	Receive(maxLen int, timeout time.Duration) ([]byte, error)

	// Close releases the device.
	Close() error
}

// ErrorKind classifies transport failures. Every kind is fatal to a run.
type ErrorKind int

const (
	WriteFailed ErrorKind = iota + 1
	ReadTimeout
	ReadFailed
	EmptyResponse
)

var kindNames = map[ErrorKind]string{
	WriteFailed:   "write failed",
	ReadTimeout:   "read timeout",
	ReadFailed:    "read failed",
	EmptyResponse: "empty response",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels usable with errors.Is against any *Error of the matching kind.
var (
	ErrWriteFailed   = &Error{Kind: WriteFailed}
	ErrReadTimeout   = &Error{Kind: ReadTimeout}
	ErrReadFailed    = &Error{Kind: ReadFailed}
	ErrEmptyResponse = &Error{Kind: EmptyResponse}
)

// Error is returned by Transport implementations for every I/O failure. Err
// carries the native error detail when there is one.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can test against the Err* sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError wraps err as a transport failure of the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// AsError reports whether err is (or wraps) a transport failure.
func AsError(err error) (*Error, bool) {
	var terr *Error
	if errors.As(err, &terr) {
		return terr, true
	}
	return nil, false
}
