package dap

import "fmt"

// IDCode is a parsed IEEE 1149.1 JTAG IDCODE.
type IDCode struct {
	Raw              uint32 // full IDCODE
	Version          uint8  // [31:28]
	PartNumber       uint16 // [27:12]
	ManufacturerCode uint16 // [11:1] JEP106
	HasIDCode        bool   // bit 0 == 1
}

// ParseIDCode splits a raw 32-bit IDCODE into its fields.
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8((raw >> 28) & 0xF),
		PartNumber:       uint16((raw >> 12) & 0xFFFF),
		ManufacturerCode: uint16((raw >> 1) & 0x7FF),
		HasIDCode:        raw&0x1 == 0x1,
	}
}

// Manufacturer returns the JEP106 manufacturer name, or a placeholder naming
// the code when it is not in the table.
func (id IDCode) Manufacturer() string {
	if name, ok := LookupManufacturer(id.ManufacturerCode); ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%03X)", id.ManufacturerCode)
}

func (id IDCode) String() string {
	return fmt.Sprintf("0x%08X (Mfg: %s, Part: 0x%04X, Ver: %d)",
		id.Raw, id.Manufacturer(), id.PartNumber, id.Version)
}

// jep106 covers the manufacturers seen behind debug probes. Codes are the
// bank-encoded 11-bit field from the IDCODE.
var jep106 = map[uint16]string{
	0x001: "AMD",
	0x009: "Intel",
	0x00E: "Freescale (Motorola)",
	0x015: "Philips Semi. (Signetics)",
	0x017: "Texas Instruments",
	0x01F: "Atmel",
	0x020: "STMicroelectronics",
	0x025: "Analog Devices",
	0x02E: "Cypress",
	0x031: "Xilinx",
	0x03D: "Altera",
	0x041: "Lattice",
	0x049: "Infineon",
	0x06E: "Microchip",
	0x093: "ARM",
	0x0B7: "Espressif",
	0x13B: "Nordic Semiconductor",
	0x1F1: "Raspberry Pi",
	0x23B: "ARM Ltd",
}

// LookupManufacturer returns the name for a JEP106 code.
func LookupManufacturer(code uint16) (string, bool) {
	name, ok := jep106[code]
	return name, ok
}

// IDCodesFromCapture splits a little-endian TDO capture of a DR scan after
// Test-Logic-Reset into 32-bit IDCODEs, stopping at the first word without
// the mandatory bit 0.
func IDCodesFromCapture(capture []byte) []IDCode {
	var ids []IDCode
	for off := 0; off+4 <= len(capture); off += 4 {
		raw := uint32(capture[off]) | uint32(capture[off+1])<<8 |
			uint32(capture[off+2])<<16 | uint32(capture[off+3])<<24
		id := ParseIDCode(raw)
		if !id.HasIDCode || raw == 0xFFFFFFFF {
			break
		}
		ids = append(ids, id)
	}
	return ids
}
