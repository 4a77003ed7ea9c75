// Package config loads dapcheck settings from an optional TOML file and the
// environment, on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/OpenTraceLab/dapcheck/internal/logging"
	"github.com/OpenTraceLab/dapcheck/pkg/dapsim"
	"github.com/OpenTraceLab/dapcheck/pkg/transport"
	"github.com/OpenTraceLab/dapcheck/pkg/vector"
)

const (
	EnvSuite   = "DAPCHECK_SUITE"
	EnvAdapter = "DAPCHECK_ADAPTER"

	AdapterUSB = "usb"
	AdapterSim = "sim"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Suite               string
	Adapter             string
	Timeout             time.Duration
	MaxResponse         int
	AllowLengthMismatch bool

	// Vectors lists extra .dapv files merged over the built-in catalog.
	Vectors []string

	USB USBConfig
	Sim SimConfig
	Log logging.Options
}

type USBConfig struct {
	VendorID    uint16
	ProductID   uint16
	Interface   int
	Serial      string
	InEndpoint  int
	OutEndpoint int
}

type SimConfig struct {
	Firmware string
	Chain    []ChainDevice
}

type ChainDevice struct {
	IDCode   uint32
	IRLength int
}

// Default returns the configuration used when no file is given.
func Default() Config {
	usb := transport.DefaultUSBConfig()
	chain := dapsim.DefaultChain()

	cfg := Config{
		Suite:       vector.DefaultSuite,
		Adapter:     AdapterUSB,
		Timeout:     transport.DefaultTimeout,
		MaxResponse: transport.MaxResponseSize,
		USB: USBConfig{
			VendorID:    usb.VendorID,
			ProductID:   usb.ProductID,
			Interface:   usb.Interface,
			InEndpoint:  usb.EndpointIN,
			OutEndpoint: usb.EndpointOUT,
		},
		Sim: SimConfig{Firmware: dapsim.DefaultFirmware},
		Log: logging.DefaultOptions(),
	}
	for _, d := range chain {
		cfg.Sim.Chain = append(cfg.Sim.Chain, ChainDevice{IDCode: d.IDCode, IRLength: d.IRLength})
	}
	return cfg
}

type fileConfig struct {
	Suite               string   `toml:"suite"`
	Adapter             string   `toml:"adapter"`
	Timeout             string   `toml:"timeout"`
	MaxResponse         int      `toml:"max_response"`
	AllowLengthMismatch bool     `toml:"allow_length_mismatch"`
	Vectors             []string `toml:"vectors"`

	USB struct {
		VendorID    int64  `toml:"vendor_id"`
		ProductID   int64  `toml:"product_id"`
		Interface   int    `toml:"interface"`
		Serial      string `toml:"serial"`
		InEndpoint  int    `toml:"in_endpoint"`
		OutEndpoint int    `toml:"out_endpoint"`
	} `toml:"usb"`

	Sim struct {
		Firmware string `toml:"firmware"`
		Chain    []struct {
			IDCode   int64 `toml:"idcode"`
			IRLength int   `toml:"ir_length"`
		} `toml:"chain"`
	} `toml:"sim"`

	Log struct {
		Level     string `toml:"level"`
		NoColor   bool   `toml:"no_color"`
		Timestamp bool   `toml:"timestamp"`
	} `toml:"log"`
}

// Load reads path over the defaults, then applies environment overrides. An
// empty path skips the file. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.decodeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: %w: unknown key %q", ErrInvalid, undecoded[0].String())
	}

	if meta.IsDefined("suite") {
		c.Suite = strings.TrimSpace(raw.Suite)
	}
	if meta.IsDefined("adapter") {
		c.Adapter = strings.ToLower(strings.TrimSpace(raw.Adapter))
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return fmt.Errorf("load config: %w: timeout: %v", ErrInvalid, err)
		}
		c.Timeout = d
	}
	if meta.IsDefined("max_response") {
		c.MaxResponse = raw.MaxResponse
	}
	if meta.IsDefined("allow_length_mismatch") {
		c.AllowLengthMismatch = raw.AllowLengthMismatch
	}
	if meta.IsDefined("vectors") {
		c.Vectors = append([]string(nil), raw.Vectors...)
	}

	if meta.IsDefined("usb", "vendor_id") {
		id, err := usbID("usb.vendor_id", raw.USB.VendorID)
		if err != nil {
			return err
		}
		c.USB.VendorID = id
	}
	if meta.IsDefined("usb", "product_id") {
		id, err := usbID("usb.product_id", raw.USB.ProductID)
		if err != nil {
			return err
		}
		c.USB.ProductID = id
	}
	if meta.IsDefined("usb", "interface") {
		c.USB.Interface = raw.USB.Interface
	}
	if meta.IsDefined("usb", "serial") {
		c.USB.Serial = strings.TrimSpace(raw.USB.Serial)
	}
	if meta.IsDefined("usb", "in_endpoint") {
		c.USB.InEndpoint = raw.USB.InEndpoint
	}
	if meta.IsDefined("usb", "out_endpoint") {
		c.USB.OutEndpoint = raw.USB.OutEndpoint
	}

	if meta.IsDefined("sim", "firmware") {
		c.Sim.Firmware = raw.Sim.Firmware
	}
	if meta.IsDefined("sim", "chain") {
		c.Sim.Chain = c.Sim.Chain[:0:0]
		for i, d := range raw.Sim.Chain {
			if d.IDCode < 0 || d.IDCode > 0xFFFFFFFF {
				return fmt.Errorf("load config: %w: sim.chain[%d].idcode out of range", ErrInvalid, i)
			}
			c.Sim.Chain = append(c.Sim.Chain, ChainDevice{IDCode: uint32(d.IDCode), IRLength: d.IRLength})
		}
	}

	if meta.IsDefined("log", "level") {
		c.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "no_color") {
		c.Log.NoColor = raw.Log.NoColor
	}
	if meta.IsDefined("log", "timestamp") {
		c.Log.Timestamp = raw.Log.Timestamp
	}
	return nil
}

func usbID(key string, v int64) (uint16, error) {
	if v < 0 || v > 0xFFFF {
		return 0, fmt.Errorf("load config: %w: %s out of range: %d", ErrInvalid, key, v)
	}
	return uint16(v), nil
}

// ApplyEnv overlays DAPCHECK_SUITE, DAPCHECK_ADAPTER and the logging
// variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvSuite)); v != "" {
		c.Suite = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAdapter)); v != "" {
		c.Adapter = strings.ToLower(v)
	}
	c.Log.ApplyEnv()
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Suite == "" {
		return fmt.Errorf("%w: suite must not be empty", ErrInvalid)
	}
	switch c.Adapter {
	case AdapterUSB, AdapterSim:
	default:
		return fmt.Errorf("%w: adapter %q (want %s or %s)", ErrInvalid, c.Adapter, AdapterUSB, AdapterSim)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalid, c.Timeout)
	}
	if c.MaxResponse <= 0 {
		return fmt.Errorf("%w: max_response must be positive, got %d", ErrInvalid, c.MaxResponse)
	}
	if c.Log.Level != "" {
		if _, ok := logging.ParseLevel(c.Log.Level); !ok {
			return fmt.Errorf("%w: log level %q", ErrInvalid, c.Log.Level)
		}
	}
	for i, d := range c.Sim.Chain {
		if d.IRLength < 2 || d.IRLength > 32 {
			return fmt.Errorf("%w: sim chain device %d: ir_length %d not in 2..32", ErrInvalid, i, d.IRLength)
		}
		if d.IDCode&1 == 0 {
			return fmt.Errorf("%w: sim chain device %d: IDCODE 0x%08X lacks the mandatory LSB", ErrInvalid, i, d.IDCode)
		}
	}
	return nil
}

// USBTransportConfig converts the USB section for transport.OpenUSB.
func (c Config) USBTransportConfig() transport.USBConfig {
	out := transport.DefaultUSBConfig()
	out.VendorID = c.USB.VendorID
	out.ProductID = c.USB.ProductID
	out.Interface = c.USB.Interface
	out.Serial = c.USB.Serial
	out.EndpointIN = c.USB.InEndpoint
	out.EndpointOUT = c.USB.OutEndpoint
	return out
}

// SimOptions converts the Sim section for dapsim.New.
func (c Config) SimOptions() []dapsim.Option {
	chain := make([]dapsim.Device, 0, len(c.Sim.Chain))
	for _, d := range c.Sim.Chain {
		chain = append(chain, dapsim.Device{IDCode: d.IDCode, IRLength: d.IRLength})
	}
	return []dapsim.Option{
		dapsim.WithFirmware(c.Sim.Firmware),
		dapsim.WithChain(chain),
	}
}
