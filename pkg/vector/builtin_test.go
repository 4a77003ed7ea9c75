package vector

import (
	"testing"

	"github.com/OpenTraceLab/dapcheck/pkg/dap"
	"github.com/google/go-cmp/cmp"
)

func TestBuiltinCatalog(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if diff := cmp.Diff([]string{"smoke", "full"}, c.Names()); diff != "" {
		t.Errorf("suite names (-want +got):\n%s", diff)
	}
	if _, err := c.Suite(DefaultSuite); err != nil {
		t.Errorf("default suite: %v", err)
	}

	smoke, _ := c.Suite("smoke")
	if smoke.Len() != 3 {
		t.Errorf("smoke has %d vectors, want 3", smoke.Len())
	}
	walk, ok := smoke.Vector("DAP_JTAG_Sequence (IDCODE walk)")
	if !ok {
		t.Fatalf("IDCODE walk missing")
	}
	ds, ok := walk.Descriptors()
	if !ok || len(ds) != 7 || dap.CapturedLen(ds) != 8 {
		t.Errorf("IDCODE walk descriptors = %+v", ds)
	}
}

func TestBuiltinFullCoversFamilies(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	full, err := c.Suite("full")
	if err != nil {
		t.Fatalf("Suite(full): %v", err)
	}

	have := make(map[string]bool)
	for _, f := range full.Families() {
		have[f] = true
	}
	for _, cmd := range []byte{
		dap.CmdInfo, dap.CmdHostStatus, dap.CmdConnect, dap.CmdDisconnect,
		dap.CmdWriteABORT, dap.CmdDelay, dap.CmdResetTarget,
		dap.CmdSWJPins, dap.CmdSWJClock, dap.CmdSWJSequence,
		dap.CmdSWOTransport, dap.CmdSWOMode, dap.CmdSWOBaudrate, dap.CmdSWOControl,
		dap.CmdSWOStatus, dap.CmdSWOExtendedStatus, dap.CmdSWOData,
		dap.CmdJTAGSequence, dap.CmdJTAGConfigure, dap.CmdJTAGIDCODE,
		dap.CmdTransferConfigure, dap.CmdTransfer,
	} {
		if !have[dap.CommandName(cmd)] {
			t.Errorf("full suite does not exercise %s", dap.CommandName(cmd))
		}
	}
}

func TestBuiltinReferenceVectors(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	full, _ := c.Suite("full")

	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{"FW version", []byte{0x00, 0x04}, []byte{0x00, 0x05, 0x31, 0x2E, 0x30, 0x30, 0x00}},
		{"Connect JTAG", []byte{0x02, 0x02}, []byte{0xFF}},
		{"DAP_JTAG_Sequence (W/2TDO2-R)",
			[]byte{0x14, 0x02, 0x8F, 0x91, 0x92, 0x88, 0x13},
			[]byte{0x14, 0x00, 0x80, 0x40, 0x80}},
		{"DAP_JTAG_Sequence (Long, 63)",
			[]byte{0x14, 0x01, 0xBF, 0, 0, 0, 0, 0, 0, 0, 0},
			[]byte{0x14, 0x00, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x40}},
		{"DAP_SWO_Data (Too Long)", []byte{0x1C, 0x65, 0x00}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := full.Vector(tt.name)
			if !ok {
				t.Fatalf("vector missing")
			}
			if diff := cmp.Diff(tt.input, v.Input()); diff != "" {
				t.Errorf("input (-want +got):\n%s", diff)
			}
			if tt.expected != nil {
				if diff := cmp.Diff(tt.expected, v.Expected()); diff != "" {
					t.Errorf("expected (-want +got):\n%s", diff)
				}
			}
		})
	}

	tooLong, _ := full.Vector("DAP_SWO_Data (Too Long)")
	if n := len(tooLong.Expected()); n != 4+100 {
		t.Errorf("clamped SWO data response is %d bytes, want 104", n)
	}
}

func TestBuiltinIsolated(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	smoke, _ := c.Suite("smoke")
	if err := smoke.Add(MustNew("Extra", []byte{0x03}, []byte{0x03, 0x00})); err != nil {
		t.Fatalf("Add: %v", err)
	}

	again, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	fresh, _ := again.Suite("smoke")
	if fresh.Len() != 3 {
		t.Errorf("smoke has %d vectors after a caller added one, want 3", fresh.Len())
	}
	if _, ok := fresh.Vector("Extra"); ok {
		t.Errorf("vector added by another caller is visible")
	}
}

