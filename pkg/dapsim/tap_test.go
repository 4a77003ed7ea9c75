package dapsim

import "testing"

func TestNextState(t *testing.T) {
	tests := []struct {
		from State
		tms  bool
		want State
	}{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateSelectDRScan, true, StateSelectIRScan},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateShiftDR, true, StateExit1DR},
		{StateExit2IR, false, StateShiftIR},
		{StateUpdateIR, true, StateSelectDRScan},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			if got := NextState(tt.from, tt.tms); got != tt.want {
				t.Errorf("NextState(%v, %v) = %v, want %v", tt.from, tt.tms, got, tt.want)
			}
		})
	}
}

func TestFiveOnesResets(t *testing.T) {
	for s := State(0); s < 16; s++ {
		cur := s
		for i := 0; i < 5; i++ {
			cur = NextState(cur, true)
		}
		if cur != StateTestLogicReset {
			t.Errorf("from %v: five TMS=1 reached %v", s, cur)
		}
	}
}

func clockAll(c *Chain, tms []bool, tdi bool) []bool {
	out := make([]bool, len(tms))
	for i, m := range tms {
		out[i] = c.Clock(m, tdi, false)
	}
	return out
}

func TestChainIDCodeScan(t *testing.T) {
	c := NewChain(DefaultChain())

	// RTI, SelectDR, CaptureDR, ShiftDR
	clockAll(c, []bool{false, true, false, false}, false)
	if c.State() != StateShiftDR {
		t.Fatalf("state = %v, want ShiftDR", c.State())
	}

	var got [2]uint32
	for i := 0; i < 64; i++ {
		if c.Clock(false, false, false) {
			got[i/32] |= 1 << (i % 32)
		}
	}
	if got[0] != 0x4BA00477 || got[1] != 0x06419041 {
		t.Errorf("IDCODEs = 0x%08X 0x%08X", got[0], got[1])
	}
}

func TestChainBypass(t *testing.T) {
	c := NewChain(DefaultChain())

	// RTI, SelectDR, SelectIR, CaptureIR, ShiftIR
	clockAll(c, []bool{false, true, true, false, false}, false)
	if c.State() != StateShiftIR {
		t.Fatalf("state = %v, want ShiftIR", c.State())
	}

	tms := make([]bool, 9)
	tms[8] = true
	out := clockAll(c, tms, true)
	want := []bool{true, false, false, false, true, false, false, false, false}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("IR capture bit %d = %v, want %v", i, out[i], want[i])
		}
	}

	// UpdateIR, SelectDR, CaptureDR, ShiftDR
	clockAll(c, []bool{true, true, false, false}, false)
	out = clockAll(c, []bool{false, false, false, false}, true)
	want = []bool{false, false, true, true}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("bypass bit %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestChainMarkerOutsideShift(t *testing.T) {
	c := NewChain(DefaultChain())
	if !c.Clock(false, false, true) {
		t.Errorf("marker not driven in Test-Logic-Reset")
	}
	if c.Clock(false, false, false) {
		t.Errorf("TDO high in Run-Test/Idle without marker")
	}
}
