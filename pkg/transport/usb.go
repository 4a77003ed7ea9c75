package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/gousb"
)

const (
	// Orbtrace USB identifiers
	VendorIDOrbtrace  = 0x1209
	ProductIDOrbtrace = 0x3443

	// CMSIS-DAP v1 bulk pair on interface 0
	DefaultInterface   = 0
	DefaultEndpointIN  = 0x81
	DefaultEndpointOUT = 0x01

	DefaultWriteTimeout = time.Second
)

// USBConfig selects the device and bulk endpoints used by USBTransport.
type USBConfig struct {
	VendorID  uint16
	ProductID uint16

	// Serial, when set, must be a substring of the device serial number.
	Serial string

	Interface int

	// Endpoint addresses; zero means discover the first bulk endpoint of
	// the matching direction on the claimed interface.
	EndpointIN  int
	EndpointOUT int

	WriteTimeout time.Duration
}

// DefaultUSBConfig returns the Orbtrace defaults.
func DefaultUSBConfig() USBConfig {
	return USBConfig{
		VendorID:     VendorIDOrbtrace,
		ProductID:    ProductIDOrbtrace,
		Interface:    DefaultInterface,
		EndpointIN:   DefaultEndpointIN,
		EndpointOUT:  DefaultEndpointOUT,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// USBTransport exchanges raw bulk transfers with a probe. The device and
// interface claim are held from OpenUSB until Close.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	writeTimeout time.Duration
	serial       string
}

// OpenUSB finds, opens and claims the probe described by cfg.
func OpenUSB(cfg USBConfig) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, serial, err := openMatching(ctx, cfg)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	// Not supported on every platform.
	_ = dev.SetAutoDetach(true)

	t := &USBTransport{
		ctx:          ctx,
		dev:          dev,
		writeTimeout: cfg.WriteTimeout,
		serial:       serial,
	}
	if t.writeTimeout <= 0 {
		t.writeTimeout = DefaultWriteTimeout
	}

	if err := t.claimInterface(cfg); err != nil {
		t.Close()
		return nil, err
	}

	return t, nil
}

// openMatching opens the first device (in ListProbes order) that matches the
// VID/PID pair and serial filter, closing every other candidate.
func openMatching(ctx *gousb.Context, cfg USBConfig) (*gousb.Device, string, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == cfg.VendorID && uint16(desc.Product) == cfg.ProductID
	})
	// OpenDevices reports an error when any candidate failed to open; only
	// treat it as fatal when nothing usable was opened.
	if err != nil && len(devs) == 0 {
		return nil, "", fmt.Errorf("USB error: %w", err)
	}

	var chosen *gousb.Device
	var chosenInfo ProbeInfo
	for _, d := range devs {
		info := describeDevice(d)
		if cfg.Serial != "" && !strings.Contains(info.SerialNumber, cfg.Serial) {
			d.Close()
			continue
		}
		if chosen == nil || probeLess(info, chosenInfo) {
			if chosen != nil {
				chosen.Close()
			}
			chosen, chosenInfo = d, info
			continue
		}
		d.Close()
	}

	if chosen == nil {
		if cfg.Serial != "" {
			return nil, "", fmt.Errorf("device not found (VID:0x%04X PID:0x%04X serial~%q)",
				cfg.VendorID, cfg.ProductID, cfg.Serial)
		}
		return nil, "", fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", cfg.VendorID, cfg.ProductID)
	}
	return chosen, chosenInfo.SerialNumber, nil
}

// claimInterface claims the configured interface and resolves its bulk
// endpoints.
func (t *USBTransport) claimInterface(cfg USBConfig) error {
	cfgNum, err := t.dev.ActiveConfigNum()
	if err != nil {
		cfgNum = 1
	}

	c, err := t.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config %d: %w", cfgNum, err)
	}
	t.cfg = c

	intf, err := c.Interface(cfg.Interface, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", cfg.Interface, err)
	}
	t.intf = intf

	return t.findEndpoints(cfg)
}

// findEndpoints resolves the bulk IN and OUT endpoints on the claimed
// interface.
func (t *USBTransport) findEndpoints(cfg USBConfig) error {
	outNum, err := pickEndpoint(t.intf.Setting, gousb.EndpointDirectionOut, cfg.EndpointOUT)
	if err != nil {
		return err
	}
	inNum, err := pickEndpoint(t.intf.Setting, gousb.EndpointDirectionIn, cfg.EndpointIN)
	if err != nil {
		return err
	}

	epOut, err := t.intf.OutEndpoint(outNum)
	if err != nil {
		return fmt.Errorf("failed to open OUT endpoint %d: %w", outNum, err)
	}
	t.epOut = epOut

	epIn, err := t.intf.InEndpoint(inNum)
	if err != nil {
		return fmt.Errorf("failed to open IN endpoint %d: %w", inNum, err)
	}
	t.epIn = epIn

	return nil
}

// pickEndpoint returns the endpoint number to open. An explicit address must
// exist on the interface as a bulk endpoint; otherwise the first bulk endpoint
// in the requested direction is used.
func pickEndpoint(setting gousb.InterfaceSetting, dir gousb.EndpointDirection, addr int) (int, error) {
	found := -1
	for _, ep := range setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk || ep.Direction != dir {
			continue
		}
		if addr != 0 {
			if int(ep.Address) == addr {
				return ep.Number, nil
			}
			continue
		}
		if found == -1 || ep.Number < found {
			found = ep.Number
		}
	}

	name := "IN"
	if dir == gousb.EndpointDirectionOut {
		name = "OUT"
	}
	if addr != 0 {
		return 0, fmt.Errorf("bulk %s endpoint 0x%02X not found on interface %d", name, addr, setting.Number)
	}
	if found == -1 {
		return 0, fmt.Errorf("bulk %s endpoint not found on interface %d", name, setting.Number)
	}
	return found, nil
}

// Send writes data to the bulk OUT endpoint. The CMSIS-DAP v2 style bulk pipe
// takes the command unpadded.
func (t *USBTransport) Send(data []byte) (int, error) {
	if t.epOut == nil {
		return 0, NewError(WriteFailed, errors.New("transport closed"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
	defer cancel()

	n, err := t.epOut.WriteContext(ctx, data)
	if err != nil {
		return 0, NewError(WriteFailed, err)
	}
	if n != len(data) {
		return n, NewError(WriteFailed, fmt.Errorf("short write: %d of %d bytes", n, len(data)))
	}
	return n, nil
}

// Receive reads one response from the bulk IN endpoint.
func (t *USBTransport) Receive(maxLen int, timeout time.Duration) ([]byte, error) {
	if t.epIn == nil {
		return nil, NewError(ReadFailed, errors.New("transport closed"))
	}
	if maxLen <= 0 || maxLen > MaxResponseSize {
		maxLen = MaxResponseSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	buf := make([]byte, maxLen)
	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, NewError(ReadTimeout, err)
		}
		return nil, NewError(ReadFailed, err)
	}
	if n == 0 {
		return nil, NewError(EmptyResponse, nil)
	}
	return buf[:n], nil
}

func isTimeout(ctx context.Context, err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gousb.TransferTimedOut),
		errors.Is(err, gousb.TransferCancelled),
		errors.Is(err, gousb.ErrorTimeout):
		return true
	}
	return ctx.Err() != nil
}

// Serial returns the serial number of the opened probe.
func (t *USBTransport) Serial() string {
	return t.serial
}

// Close releases USB resources. It is safe to call more than once.
func (t *USBTransport) Close() error {
	t.epIn = nil
	t.epOut = nil
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	var err error
	if t.cfg != nil {
		err = t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		if cerr := t.dev.Close(); err == nil {
			err = cerr
		}
		t.dev = nil
	}
	if t.ctx != nil {
		if cerr := t.ctx.Close(); err == nil {
			err = cerr
		}
		t.ctx = nil
	}
	return err
}
