package dapsim

import "fmt"

// State is one of the 16 IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR
)

var stateNames = map[State]string{
	StateTestLogicReset: "TestLogicReset",
	StateRunTestIdle:    "RunTestIdle",
	StateSelectDRScan:   "SelectDRScan",
	StateCaptureDR:      "CaptureDR",
	StateShiftDR:        "ShiftDR",
	StateExit1DR:        "Exit1DR",
	StatePauseDR:        "PauseDR",
	StateExit2DR:        "Exit2DR",
	StateUpdateDR:       "UpdateDR",
	StateSelectIRScan:   "SelectIRScan",
	StateCaptureIR:      "CaptureIR",
	StateShiftIR:        "ShiftIR",
	StateExit1IR:        "Exit1IR",
	StatePauseIR:        "PauseIR",
	StateExit2IR:        "Exit2IR",
	StateUpdateIR:       "UpdateIR",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

type stateTransitions struct {
	onZero State
	onOne  State
}

var transitions = [16]stateTransitions{
	StateTestLogicReset: {onZero: StateRunTestIdle, onOne: StateTestLogicReset},
	StateRunTestIdle:    {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
	StateSelectDRScan:   {onZero: StateCaptureDR, onOne: StateSelectIRScan},
	StateCaptureDR:      {onZero: StateShiftDR, onOne: StateExit1DR},
	StateShiftDR:        {onZero: StateShiftDR, onOne: StateExit1DR},
	StateExit1DR:        {onZero: StatePauseDR, onOne: StateUpdateDR},
	StatePauseDR:        {onZero: StatePauseDR, onOne: StateExit2DR},
	StateExit2DR:        {onZero: StateShiftDR, onOne: StateUpdateDR},
	StateUpdateDR:       {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
	StateSelectIRScan:   {onZero: StateCaptureIR, onOne: StateTestLogicReset},
	StateCaptureIR:      {onZero: StateShiftIR, onOne: StateExit1IR},
	StateShiftIR:        {onZero: StateShiftIR, onOne: StateExit1IR},
	StateExit1IR:        {onZero: StatePauseIR, onOne: StateUpdateIR},
	StatePauseIR:        {onZero: StatePauseIR, onOne: StateExit2IR},
	StateExit2IR:        {onZero: StateShiftIR, onOne: StateUpdateIR},
	StateUpdateIR:       {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
}

// NextState returns the TAP state after one TCK with the given TMS.
func NextState(current State, tms bool) State {
	if int(current) >= len(transitions) {
		panic(fmt.Sprintf("dapsim: unhandled TAP state %d", current))
	}
	if tms {
		return transitions[current].onOne
	}
	return transitions[current].onZero
}

// Device is one TAP on the simulated scan chain.
type Device struct {
	IDCode   uint32
	IRLength int
}

// DefaultChain is an ARM debug port followed by an STM32 boundary scan TAP,
// ordered from TDO towards TDI.
func DefaultChain() []Device {
	return []Device{
		{IDCode: 0x4BA00477, IRLength: 4},
		{IDCode: 0x06419041, IRLength: 5},
	}
}

// Chain models the TAP controllers of a scan chain sharing TMS and TCK.
// Registers are held as bit slices; index 0 is the bit nearest TDO.
type Chain struct {
	devices []Device
	state   State
	bypass  []bool // per device: current instruction is BYPASS
	ir      []bool
	dr      []bool
}

// NewChain returns a chain in Test-Logic-Reset.
func NewChain(devices []Device) *Chain {
	c := &Chain{devices: append([]Device(nil), devices...)}
	c.reset()
	return c
}

// State reports the current TAP controller state.
func (c *Chain) State() State {
	return c.state
}

func (c *Chain) reset() {
	c.state = StateTestLogicReset
	c.bypass = make([]bool, len(c.devices))
	c.ir = nil
	c.dr = nil
}

// Clock applies one TCK and returns the TDO level sampled before the edge.
// marker is the level driven outside the shift states.
func (c *Chain) Clock(tms, tdi, marker bool) bool {
	tdo := marker
	switch c.state {
	case StateShiftDR:
		tdo, c.dr = shift(c.dr, tdi)
	case StateShiftIR:
		tdo, c.ir = shift(c.ir, tdi)
	}

	c.state = NextState(c.state, tms)

	switch c.state {
	case StateTestLogicReset:
		c.reset()
	case StateCaptureDR:
		c.captureDR()
	case StateCaptureIR:
		c.captureIR()
	case StateUpdateIR:
		c.updateIR()
	}
	return tdo
}

func shift(reg []bool, tdi bool) (bool, []bool) {
	if len(reg) == 0 {
		// An empty chain passes TDI straight through.
		return tdi, reg
	}
	out := reg[0]
	copy(reg, reg[1:])
	reg[len(reg)-1] = tdi
	return out, reg
}

func (c *Chain) captureDR() {
	c.dr = c.dr[:0]
	for i, d := range c.devices {
		if c.bypass[i] {
			c.dr = append(c.dr, false)
			continue
		}
		for b := 0; b < 32; b++ {
			c.dr = append(c.dr, d.IDCode&(1<<b) != 0)
		}
	}
}

func (c *Chain) captureIR() {
	c.ir = c.ir[:0]
	for _, d := range c.devices {
		for b := 0; b < d.IRLength; b++ {
			c.ir = append(c.ir, b == 0)
		}
	}
}

func (c *Chain) updateIR() {
	pos := 0
	for i, d := range c.devices {
		ones := true
		for b := 0; b < d.IRLength && pos+b < len(c.ir); b++ {
			ones = ones && c.ir[pos+b]
		}
		c.bypass[i] = ones
		pos += d.IRLength
	}
}
