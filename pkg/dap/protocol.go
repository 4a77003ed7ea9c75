package dap

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP Command IDs
const (
	CmdInfo              = 0x00
	CmdHostStatus        = 0x01
	CmdConnect           = 0x02
	CmdDisconnect        = 0x03
	CmdTransferConfigure = 0x04
	CmdTransfer          = 0x05
	CmdTransferBlock     = 0x06
	CmdTransferAbort     = 0x07
	CmdWriteABORT        = 0x08
	CmdDelay             = 0x09
	CmdResetTarget       = 0x0A
	CmdSWJPins           = 0x10
	CmdSWJClock          = 0x11
	CmdSWJSequence       = 0x12
	CmdSWDConfigure      = 0x13
	CmdJTAGSequence      = 0x14
	CmdJTAGConfigure     = 0x15
	CmdJTAGIDCODE        = 0x16
	CmdSWOTransport      = 0x17
	CmdSWOMode           = 0x18
	CmdSWOBaudrate       = 0x19
	CmdSWOControl        = 0x1A
	CmdSWOStatus         = 0x1B
	CmdSWOData           = 0x1C
	CmdSWDSequence       = 0x1D
	CmdSWOExtendedStatus = 0x1E
)

// DAP_Info Info IDs
const (
	InfoVendorID      = 0x01
	InfoProductID     = 0x02
	InfoSerialNum     = 0x03
	InfoFirmwareVer   = 0x04
	InfoTargetVendor  = 0x05
	InfoTargetName    = 0x06
	InfoCapabilities  = 0xF0
	InfoTestTimer     = 0xF1
	InfoSWOBufferSize = 0xFD
	InfoPacketCount   = 0xFE
	InfoPacketSize    = 0xFF
)

// Connection ports
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// Status codes
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// Rejected is the single-byte response a probe sends instead of the command
// echo when it does not recognise a command or the command is malformed.
const Rejected = 0xFF

var commandNames = map[byte]string{
	CmdInfo:              "DAP_Info",
	CmdHostStatus:        "DAP_HostStatus",
	CmdConnect:           "DAP_Connect",
	CmdDisconnect:        "DAP_Disconnect",
	CmdTransferConfigure: "DAP_TransferConfigure",
	CmdTransfer:          "DAP_Transfer",
	CmdTransferBlock:     "DAP_TransferBlock",
	CmdTransferAbort:     "DAP_TransferAbort",
	CmdWriteABORT:        "DAP_WriteABORT",
	CmdDelay:             "DAP_Delay",
	CmdResetTarget:       "DAP_ResetTarget",
	CmdSWJPins:           "DAP_SWJ_Pins",
	CmdSWJClock:          "DAP_SWJ_Clock",
	CmdSWJSequence:       "DAP_SWJ_Sequence",
	CmdSWDConfigure:      "DAP_SWD_Configure",
	CmdJTAGSequence:      "DAP_JTAG_Sequence",
	CmdJTAGConfigure:     "DAP_JTAG_Configure",
	CmdJTAGIDCODE:        "DAP_JTAG_IDCODE",
	CmdSWOTransport:      "DAP_SWO_Transport",
	CmdSWOMode:           "DAP_SWO_Mode",
	CmdSWOBaudrate:       "DAP_SWO_Baudrate",
	CmdSWOControl:        "DAP_SWO_Control",
	CmdSWOStatus:         "DAP_SWO_Status",
	CmdSWOData:           "DAP_SWO_Data",
	CmdSWDSequence:       "DAP_SWD_Sequence",
	CmdSWOExtendedStatus: "DAP_SWO_ExtendedStatus",
}

// CommandName returns the protocol name of a command ID.
func CommandName(id byte) string {
	if name, ok := commandNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", id)
}

// IsRejected reports whether resp is the reject sentinel.
func IsRejected(resp []byte) bool {
	return len(resp) == 1 && resp[0] == Rejected
}

// EncodeInfo builds a DAP_Info command
func EncodeInfo(infoID byte) []byte {
	return []byte{CmdInfo, infoID}
}

// DecodeInfo parses a DAP_Info string response. The probe counts the
// terminating NUL in the length byte; it is stripped here.
func DecodeInfo(resp []byte) (string, error) {
	payload, err := infoPayload(resp)
	if err != nil {
		return "", err
	}
	for len(payload) > 0 && payload[len(payload)-1] == 0 {
		payload = payload[:len(payload)-1]
	}
	return string(payload), nil
}

// DecodeInfoValue parses a fixed-width little-endian DAP_Info response
// (capabilities, packet count, packet size, SWO buffer size).
func DecodeInfoValue(resp []byte) (uint32, error) {
	payload, err := infoPayload(resp)
	if err != nil {
		return 0, err
	}
	switch len(payload) {
	case 1:
		return uint32(payload[0]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(payload)), nil
	case 4:
		return binary.LittleEndian.Uint32(payload), nil
	default:
		return 0, fmt.Errorf("unexpected info value width %d", len(payload))
	}
}

func infoPayload(resp []byte) ([]byte, error) {
	if IsRejected(resp) {
		return nil, fmt.Errorf("info request rejected")
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("response too short")
	}
	if resp[0] != CmdInfo {
		return nil, fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}

	length := int(resp[1])
	if len(resp) < 2+length {
		return nil, fmt.Errorf("incomplete info payload")
	}
	return resp[2 : 2+length], nil
}

// EncodeConnect builds a DAP_Connect command
func EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect parses a DAP_Connect response
func DecodeConnect(resp []byte) (byte, error) {
	if IsRejected(resp) {
		return 0, fmt.Errorf("connect rejected")
	}
	if len(resp) < 2 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdConnect {
		return 0, fmt.Errorf("invalid command ID")
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("connection failed")
	}
	return resp[1], nil
}

// EncodeJTAGIDCODE builds a DAP_JTAG_IDCODE command
func EncodeJTAGIDCODE(deviceIndex byte) []byte {
	return []byte{CmdJTAGIDCODE, deviceIndex}
}

// DecodeJTAGIDCODE parses response and extracts IDCODE
func DecodeJTAGIDCODE(resp []byte) (uint32, error) {
	if err := DecodeStatus(CmdJTAGIDCODE, resp); err != nil {
		return 0, err
	}
	if len(resp) < 6 {
		return 0, fmt.Errorf("response too short")
	}
	return binary.LittleEndian.Uint32(resp[2:6]), nil
}

// EncodeSetClock builds a DAP_SWJ_Clock command
func EncodeSetClock(hz uint32) []byte {
	return append([]byte{CmdSWJClock}, LE32(hz)...)
}

// DecodeStatus checks the echo and status byte common to most responses.
func DecodeStatus(cmd byte, resp []byte) error {
	if IsRejected(resp) {
		return fmt.Errorf("%s rejected", CommandName(cmd))
	}
	if len(resp) < 2 {
		return fmt.Errorf("response too short")
	}
	if resp[0] != cmd {
		return fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("%s failed: status 0x%02X", CommandName(cmd), resp[1])
	}
	return nil
}

// LE16 encodes v as two little-endian bytes.
func LE16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// LE32 encodes v as four little-endian bytes.
func LE32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
