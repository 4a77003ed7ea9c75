package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/gousb"
	"github.com/rs/zerolog"
)

func TestErrorKindMatching(t *testing.T) {
	native := errors.New("libusb: pipe error")
	err := fmt.Errorf("vector 3: %w", NewError(ReadFailed, native))

	if !errors.Is(err, ErrReadFailed) {
		t.Fatalf("errors.Is(err, ErrReadFailed) = false")
	}
	if errors.Is(err, ErrReadTimeout) {
		t.Fatalf("errors.Is(err, ErrReadTimeout) = true, want false")
	}
	if !errors.Is(err, native) {
		t.Fatalf("native error not reachable through Unwrap")
	}

	terr, ok := AsError(err)
	if !ok || terr.Kind != ReadFailed {
		t.Fatalf("AsError = %+v, %v; want ReadFailed", terr, ok)
	}
	if !strings.Contains(err.Error(), "read failed") {
		t.Errorf("message %q does not name the kind", err.Error())
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{WriteFailed, "write failed"},
		{ReadTimeout, "read timeout"},
		{ReadFailed, "read failed"},
		{EmptyResponse, "empty response"},
		{ErrorKind(42), "ErrorKind(42)"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"transfer timed out", gousb.TransferTimedOut, true},
		{"transfer cancelled", gousb.TransferCancelled, true},
		{"libusb timeout", gousb.ErrorTimeout, true},
		{"stall", gousb.TransferStall, false},
		{"io", gousb.ErrorIO, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTimeout(ctx, tt.err); got != tt.want {
				t.Errorf("isTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestProbeOrdering(t *testing.T) {
	a := ProbeInfo{Manufacturer: "Orbcode", Product: "Orbtrace", SerialNumber: "A1"}
	b := ProbeInfo{Manufacturer: "Orbcode", Product: "Orbtrace", SerialNumber: "B2"}
	c := ProbeInfo{Manufacturer: "Acme", Product: "Zeta", SerialNumber: "Z9"}

	if !probeLess(a, b) || probeLess(b, a) {
		t.Errorf("serial ordering wrong")
	}
	if !probeLess(c, a) {
		t.Errorf("manufacturer should order first")
	}
	if probeLess(a, a) {
		t.Errorf("probeLess(a, a) = true")
	}
}

func TestProbeLabel(t *testing.T) {
	p := ProbeInfo{VendorID: 0x1209, ProductID: 0x3443, Description: "Orbtrace CMSIS-DAP"}
	if got := p.Label(); got != "Orbtrace CMSIS-DAP" {
		t.Errorf("Label() = %q", got)
	}
	p.Manufacturer, p.Product, p.SerialNumber = "Orbcode", "Orbtrace", "1234"
	if got := p.Label(); got != "Orbcode Orbtrace [1234]" {
		t.Errorf("Label() = %q", got)
	}
}

func TestKnownProbes(t *testing.T) {
	if _, ok := lookupKnownProbe(VendorIDOrbtrace, ProductIDOrbtrace); !ok {
		t.Errorf("Orbtrace VID/PID not recognised")
	}
	if _, ok := lookupKnownProbe(0x2E8A, 0x000C); ok {
		t.Errorf("unexpected match for Raspberry Pi probe")
	}
}

type scriptedTransport struct {
	resp []byte
	err  error
}

func (s *scriptedTransport) Send(data []byte) (int, error) { return len(data), nil }
func (s *scriptedTransport) Receive(int, time.Duration) ([]byte, error) {
	return s.resp, s.err
}
func (s *scriptedTransport) Close() error { return nil }

func TestWithLoggingTraces(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	tr := WithLogging(&scriptedTransport{resp: []byte{0x00, 0x05}}, logger)
	if _, err := tr.Send([]byte{0x00, 0x04}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	resp, err := tr.Receive(64, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x00, 0x05}) {
		t.Fatalf("resp = % X", resp)
	}

	out := buf.String()
	for _, want := range []string{`"data":"0004"`, `"data":"0005"`, `">>>"`, `"<<<"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

// Integration test - only runs with real hardware
func TestUSBTransportIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tr, err := OpenUSB(DefaultUSBConfig())
	if err != nil {
		t.Skipf("No Orbtrace hardware found: %v", err)
	}
	defer tr.Close()

	if _, err := tr.Send([]byte{0x00, 0x04}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	resp, err := tr.Receive(MaxResponseSize, DefaultTimeout)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(resp) < 2 || resp[0] != 0x00 {
		t.Fatalf("unexpected firmware version response: % X", resp)
	}
	t.Logf("Firmware: %q", resp[2:])
}
