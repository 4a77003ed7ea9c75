package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/OpenTraceLab/dapcheck/pkg/transport"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dapcheck.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config differs from defaults (-want +got):\n%s", diff)
	}
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
suite = "full"
adapter = "SIM"
timeout = "250ms"
vectors = ["extra.dapv"]

[usb]
serial = " 12AB "
vendor_id = 0x1d50

[sim]
firmware = "2.01"
[[sim.chain]]
idcode = 0x2BA01477
ir_length = 4

[log]
level = "debug"
no_color = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.Suite = "full"
	want.Adapter = AdapterSim
	want.Timeout = 250 * time.Millisecond
	want.Vectors = []string{"extra.dapv"}
	want.USB.Serial = "12AB"
	want.USB.VendorID = 0x1d50
	want.Sim.Firmware = "2.01"
	want.Sim.Chain = []ChainDevice{{IDCode: 0x2BA01477, IRLength: 4}}
	want.Log.Level = "debug"
	want.Log.NoColor = true

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.USB.ProductID != transport.ProductIDOrbtrace {
		t.Errorf("undefined product_id should keep the default")
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", `colour = "blue"`},
		{"bad adapter", `adapter = "ftdi"`},
		{"bad timeout", `timeout = "soon"`},
		{"zero timeout", `timeout = "0s"`},
		{"vendor id range", "[usb]\nvendor_id = 70000"},
		{"log level", "[log]\nlevel = \"loud\""},
		{"ir length", "[[sim.chain]]\nidcode = 0x4BA00477\nir_length = 1"},
		{"idcode lsb", "[[sim.chain]]\nidcode = 0x4BA00476\nir_length = 4"},
		{"empty suite", `suite = " "`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Load error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v does not wrap os.ErrNotExist", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `suite = "full"`)
	t.Setenv(EnvSuite, "smoke")
	t.Setenv(EnvAdapter, "sim")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Suite != "smoke" || cfg.Adapter != AdapterSim {
		t.Errorf("env not applied: suite=%q adapter=%q", cfg.Suite, cfg.Adapter)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.USB.Serial = "X1"

	usb := cfg.USBTransportConfig()
	if usb.Serial != "X1" || usb.VendorID != transport.VendorIDOrbtrace || usb.WriteTimeout != transport.DefaultWriteTimeout {
		t.Errorf("USBTransportConfig = %+v", usb)
	}
	if n := len(cfg.SimOptions()); n != 2 {
		t.Errorf("SimOptions returned %d options, want 2", n)
	}
}
