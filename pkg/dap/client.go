package dap

import (
	"fmt"
	"time"

	"github.com/OpenTraceLab/dapcheck/pkg/transport"
)

// ProbeInfo is what a probe reports about itself through DAP_Info.
type ProbeInfo struct {
	Vendor       string
	Product      string
	SerialNumber string
	Firmware     string
	TargetVendor string
	TargetName   string

	Capabilities  uint32
	PacketCount   uint32
	PacketSize    uint32
	SWOBufferSize uint32
}

// Supports reports whether a capabilities bit is set.
func (p ProbeInfo) Supports(capability uint32) bool {
	return p.Capabilities&capability != 0
}

// DAP_Info capabilities bits
const (
	CapSWD          = 1 << 0
	CapJTAG         = 1 << 1
	CapSWOUART      = 1 << 2
	CapSWOManch     = 1 << 3
	CapAtomic       = 1 << 4
	CapTestTimer    = 1 << 5
	CapSWOStreaming = 1 << 6
)

// Client issues decoded commands over a Transport. It is a convenience for
// tooling; conformance runs go through the runner with raw vectors.
type Client struct {
	t       transport.Transport
	timeout time.Duration
}

// NewClient returns a Client using the default receive timeout.
func NewClient(t transport.Transport) *Client {
	return &Client{t: t, timeout: transport.DefaultTimeout}
}

// SetTimeout changes the per-exchange receive timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Exchange sends one command and returns the probe's response.
func (c *Client) Exchange(cmd []byte) ([]byte, error) {
	if _, err := c.t.Send(cmd); err != nil {
		return nil, err
	}
	return c.t.Receive(transport.MaxResponseSize, c.timeout)
}

// Identify queries the identification strings and the fixed-width info
// values. Values the probe rejects are left empty; transport errors abort.
func (c *Client) Identify() (ProbeInfo, error) {
	var info ProbeInfo

	strs := []struct {
		id  byte
		dst *string
	}{
		{InfoVendorID, &info.Vendor},
		{InfoProductID, &info.Product},
		{InfoSerialNum, &info.SerialNumber},
		{InfoFirmwareVer, &info.Firmware},
		{InfoTargetVendor, &info.TargetVendor},
		{InfoTargetName, &info.TargetName},
	}
	for _, s := range strs {
		resp, err := c.Exchange(EncodeInfo(s.id))
		if err != nil {
			return info, fmt.Errorf("info 0x%02X: %w", s.id, err)
		}
		*s.dst, _ = DecodeInfo(resp)
	}

	vals := []struct {
		id  byte
		dst *uint32
	}{
		{InfoCapabilities, &info.Capabilities},
		{InfoPacketCount, &info.PacketCount},
		{InfoPacketSize, &info.PacketSize},
		{InfoSWOBufferSize, &info.SWOBufferSize},
	}
	for _, v := range vals {
		resp, err := c.Exchange(EncodeInfo(v.id))
		if err != nil {
			return info, fmt.Errorf("info 0x%02X: %w", v.id, err)
		}
		*v.dst, _ = DecodeInfoValue(resp)
	}

	return info, nil
}

// Connect selects a debug port and returns the port the probe accepted.
func (c *Client) Connect(port byte) (byte, error) {
	resp, err := c.Exchange(EncodeConnect(port))
	if err != nil {
		return 0, err
	}
	return DecodeConnect(resp)
}

// Disconnect releases the debug port.
func (c *Client) Disconnect() error {
	resp, err := c.Exchange([]byte{CmdDisconnect})
	if err != nil {
		return err
	}
	return DecodeStatus(CmdDisconnect, resp)
}

// SetClock sets the SWJ clock frequency.
func (c *Client) SetClock(hz uint32) error {
	resp, err := c.Exchange(EncodeSetClock(hz))
	if err != nil {
		return err
	}
	return DecodeStatus(CmdSWJClock, resp)
}

// Sequence runs a DAP_JTAG_Sequence and returns the TDO capture of each
// capturing descriptor.
func (c *Client) Sequence(ds []Descriptor) ([][]byte, error) {
	req, err := EncodeSequenceRequest(ds)
	if err != nil {
		return nil, err
	}
	resp, err := c.Exchange(req)
	if err != nil {
		return nil, err
	}
	return DecodeSequenceResponse(resp, ds)
}

// IDCode runs DAP_JTAG_IDCODE for the device at index on the configured
// scan chain.
func (c *Client) IDCode(index byte) (IDCode, error) {
	resp, err := c.Exchange(EncodeJTAGIDCODE(index))
	if err != nil {
		return IDCode{}, err
	}
	raw, err := DecodeJTAGIDCODE(resp)
	if err != nil {
		return IDCode{}, err
	}
	return ParseIDCode(raw), nil
}
