// Package dapsim provides an in-memory CMSIS-DAP probe that answers commands
// the way the Orbtrace test gateware does. It implements transport.Transport
// so conformance runs can execute without hardware.
package dapsim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OpenTraceLab/dapcheck/pkg/dap"
	"github.com/OpenTraceLab/dapcheck/pkg/transport"
)

// Fixed values reported by the gateware.
const (
	DefaultFirmware = "1.00"

	Capabilities  = 0x01
	SWOBufferSize = 1000
	PacketCount   = 64
	PacketSize    = 64

	PinsReadback = 0x99
	SWODataLimit = 0x64
	SWOFillByte  = 0x2A
	IDCodeStub   = 0x44332211
)

var (
	// Test domain timer as the gateware reports it, length byte included.
	testTimerResponse = []byte{dap.CmdInfo, 0x08, 0x00, 0xCA, 0x9A, 0x3B}

	swoTraceCount = []byte{0x44, 0x33, 0x22, 0x11}
	swoIndex      = []byte{0x88, 0x77, 0x66, 0x55}
	swoTimestamp  = []byte{0xCC, 0xBB, 0xAA, 0x99}
)

// Hook inspects a request before the default handler. Returning a nil slice
// and nil error falls through to the default; a non-nil slice (possibly
// empty) replaces the response; an error is returned from Receive.
type Hook func(req []byte) ([]byte, error)

// Option configures a Sim.
type Option func(*Sim)

// WithFirmware sets the DAP_Info firmware version string.
func WithFirmware(version string) Option {
	return func(s *Sim) { s.firmware = version }
}

// WithChain replaces the simulated scan chain.
func WithChain(devices []Device) Option {
	return func(s *Sim) { s.chainDevices = devices }
}

// WithHook installs a request hook.
func WithHook(h Hook) Option {
	return func(s *Sim) { s.OnCommand = h }
}

type pending struct {
	resp []byte
	err  error
}

// Sim is a simulated probe. Each Send queues exactly one response that the
// next Receive returns.
type Sim struct {
	OnCommand Hook

	firmware     string
	chainDevices []Device
	chain        *Chain

	mu        sync.Mutex
	queue     []pending
	requests  [][]byte
	reads     int
	failAfter int
	closed    bool
}

// New returns a simulated probe with the default firmware string and chain.
func New(opts ...Option) *Sim {
	s := &Sim{
		firmware:     DefaultFirmware,
		chainDevices: DefaultChain(),
		failAfter:    -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.chain = NewChain(s.chainDevices)
	return s
}

// FailReadsAfter makes every Receive after the first n time out. A negative n
// disables the fault.
func (s *Sim) FailReadsAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
}

// Requests returns copies of every request sent so far.
func (s *Sim) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests))
	for i, r := range s.requests {
		out[i] = append([]byte(nil), r...)
	}
	return out
}

// TAPState reports the state of the simulated TAP controllers.
func (s *Sim) TAPState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.State()
}

func (s *Sim) Send(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, transport.NewError(transport.WriteFailed, errors.New("simulator closed"))
	}

	req := append([]byte(nil), data...)
	s.requests = append(s.requests, req)

	if s.OnCommand != nil {
		resp, err := s.OnCommand(req)
		if resp != nil || err != nil {
			s.queue = append(s.queue, pending{resp: resp, err: err})
			return len(data), nil
		}
	}

	s.queue = append(s.queue, pending{resp: s.handle(req)})
	return len(data), nil
}

func (s *Sim) Receive(maxLen int, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, transport.NewError(transport.ReadFailed, errors.New("simulator closed"))
	}
	if s.failAfter >= 0 && s.reads >= s.failAfter {
		return nil, transport.NewError(transport.ReadTimeout, fmt.Errorf("no response within %v", timeout))
	}
	if len(s.queue) == 0 {
		return nil, transport.NewError(transport.ReadTimeout, fmt.Errorf("no response within %v", timeout))
	}

	p := s.queue[0]
	s.queue = s.queue[1:]
	s.reads++

	if p.err != nil {
		return nil, p.err
	}
	if len(p.resp) == 0 {
		return nil, transport.NewError(transport.EmptyResponse, nil)
	}
	resp := append([]byte(nil), p.resp...)
	if maxLen > 0 && len(resp) > maxLen {
		resp = resp[:maxLen]
	}
	return resp, nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.queue = nil
	return nil
}

// Handle returns the response the gateware gives to req without touching the
// Send/Receive queue. TAP state is shared with Send.
func (s *Sim) Handle(req []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle(req)
}

var reject = []byte{dap.Rejected}

// minLen is the shortest well-formed request for each fixed-layout command.
var minLen = map[byte]int{
	dap.CmdInfo:              2,
	dap.CmdHostStatus:        3,
	dap.CmdConnect:           2,
	dap.CmdDisconnect:        1,
	dap.CmdTransferConfigure: 6,
	dap.CmdTransfer:          4,
	dap.CmdWriteABORT:        6,
	dap.CmdDelay:             3,
	dap.CmdResetTarget:       1,
	dap.CmdSWJPins:           7,
	dap.CmdSWJClock:          5,
	dap.CmdSWJSequence:       2,
	dap.CmdSWDConfigure:      2,
	dap.CmdJTAGSequence:      2,
	dap.CmdJTAGConfigure:     2,
	dap.CmdJTAGIDCODE:        2,
	dap.CmdSWOTransport:      2,
	dap.CmdSWOMode:           2,
	dap.CmdSWOBaudrate:       5,
	dap.CmdSWOControl:        2,
	dap.CmdSWOStatus:         1,
	dap.CmdSWOData:           3,
	dap.CmdSWOExtendedStatus: 2,
}

func (s *Sim) handle(req []byte) []byte {
	if len(req) == 0 {
		return reject
	}
	cmd := req[0]
	need, ok := minLen[cmd]
	if !ok || len(req) < need {
		return reject
	}

	switch cmd {
	case dap.CmdInfo:
		return s.info(req[1])

	case dap.CmdHostStatus:
		if req[1] > 1 {
			return reject
		}
		return []byte{cmd, dap.StatusOK}

	case dap.CmdConnect:
		switch req[1] {
		case dap.PortDefault, dap.PortSWD:
			return []byte{cmd, dap.PortSWD}
		}
		return reject

	case dap.CmdResetTarget:
		return []byte{cmd, dap.StatusOK, 0x01}

	case dap.CmdSWJPins:
		return []byte{cmd, PinsReadback}

	case dap.CmdSWJSequence:
		bits := dap.SWJBits(req[1])
		if len(req) < 2+dap.PayloadLen(bits) {
			return reject
		}
		return []byte{cmd, dap.StatusOK}

	case dap.CmdSWOTransport, dap.CmdSWOMode:
		if req[1] > 2 {
			return []byte{cmd, dap.StatusError}
		}
		return []byte{cmd, dap.StatusOK}

	case dap.CmdSWOControl:
		if req[1] > 1 {
			return []byte{cmd, dap.StatusError}
		}
		return []byte{cmd, dap.StatusOK}

	case dap.CmdSWOBaudrate:
		return append([]byte(nil), req[:5]...)

	case dap.CmdSWOStatus:
		return append([]byte{cmd, dap.StatusOK}, swoTraceCount...)

	case dap.CmdSWOExtendedStatus:
		return swoExtendedStatus(req[1])

	case dap.CmdSWOData:
		return swoData(int(req[1]) | int(req[2])<<8)

	case dap.CmdJTAGSequence:
		return s.jtagSequence(req)

	case dap.CmdJTAGIDCODE:
		return append([]byte{cmd, dap.StatusOK}, dap.LE32(IDCodeStub)...)

	case dap.CmdTransfer:
		// Loopback: the transfer request byte is consumed, data is echoed.
		resp := append([]byte(nil), req[:3]...)
		return append(resp, req[4:]...)
	}

	// Disconnect, TransferConfigure, WriteABORT, Delay, SWJ_Clock,
	// SWD_Configure and JTAG_Configure only acknowledge.
	return []byte{cmd, dap.StatusOK}
}

func (s *Sim) info(id byte) []byte {
	switch id {
	case dap.InfoFirmwareVer:
		fw := append([]byte(s.firmware), 0)
		return append([]byte{dap.CmdInfo, byte(len(fw))}, fw...)
	case dap.InfoCapabilities:
		return []byte{dap.CmdInfo, 1, Capabilities}
	case dap.InfoTestTimer:
		return append([]byte(nil), testTimerResponse...)
	case dap.InfoSWOBufferSize:
		return append([]byte{dap.CmdInfo, 4}, dap.LE32(SWOBufferSize)...)
	case dap.InfoPacketCount:
		return []byte{dap.CmdInfo, 1, PacketCount}
	case dap.InfoPacketSize:
		return append([]byte{dap.CmdInfo, 2}, dap.LE16(PacketSize)...)
	}
	// Vendor, product, serial, target strings and unknown IDs are empty.
	return []byte{dap.CmdInfo, 0}
}

// swoExtendedStatus: control bit 0 selects trace status, bit 1 trace count,
// bit 2 index and timestamp.
func swoExtendedStatus(control byte) []byte {
	if control > 7 {
		return reject
	}
	resp := []byte{dap.CmdSWOExtendedStatus}
	if control&0x01 != 0 {
		resp = append(resp, dap.StatusOK)
	}
	if control&0x02 != 0 {
		resp = append(resp, swoTraceCount...)
	}
	if control&0x04 != 0 {
		resp = append(resp, swoIndex...)
		resp = append(resp, swoTimestamp...)
	}
	return resp
}

func swoData(n int) []byte {
	if n > SWODataLimit {
		n = SWODataLimit
	}
	resp := make([]byte, 0, 4+n)
	resp = append(resp, dap.CmdSWOData, dap.StatusOK)
	resp = append(resp, dap.LE16(uint16(n))...)
	for i := 0; i < n; i++ {
		resp = append(resp, SWOFillByte)
	}
	return resp
}

// jtagSequence clocks every descriptor through the chain. Bit 6 of the
// descriptor byte drives TMS. Outside the shift states TDO carries the
// gateware's marker: high on bit 7 of each byte and on the final clock.
func (s *Sim) jtagSequence(req []byte) []byte {
	raw, err := dap.DecodeSequenceRequest(req)
	if err != nil {
		return reject
	}

	resp := []byte{dap.CmdJTAGSequence, dap.StatusOK}
	pos := 2
	for _, d := range raw {
		tms := req[pos]&dap.SeqReserved != 0
		pos += 1 + len(d.TDI)

		tdo := make([]byte, dap.PayloadLen(d.Cycles))
		for i := 0; i < d.Cycles; i++ {
			tdi := d.TDI[i/8]&(1<<(i%8)) != 0
			marker := i%8 == 7 || i == d.Cycles-1
			if s.chain.Clock(tms, tdi, marker) {
				tdo[i/8] |= 1 << (i % 8)
			}
		}
		if d.Capture {
			resp = append(resp, tdo...)
		}
	}
	return resp
}
