package dap

import (
	"errors"
	"fmt"
)

// JTAG Sequence info byte
const (
	SeqCyclesMask = 0x3F // Bits [5:0] = TCK count (1-63, where 0 means 64)
	SeqReserved   = 0x40 // Bit [6] = TMS on the wire; written as zero, ignored on decode
	SeqCaptureTDO = 0x80 // Bit [7] = Capture TDO

	MaxCycles = 64
)

var (
	ErrInvalidCycleCount    = errors.New("dap: cycle count must be 1..64")
	ErrInvalidSequenceCount = errors.New("dap: sequence count must be 1..255")
	ErrPayloadLength        = errors.New("dap: TDI payload length does not match cycle count")
	ErrShortPayload         = errors.New("dap: data ends before the last descriptor")
	ErrTrailingData         = errors.New("dap: trailing bytes after the last descriptor")
)

// Descriptor is one JTAG shift: Cycles TCK clocks with TDI taken LSB-first
// from TDI, optionally capturing TDO.
type Descriptor struct {
	Cycles  int
	Capture bool
	TDI     []byte // PayloadLen(Cycles) bytes
}

// PayloadLen returns the number of bytes that carry cycles bits.
func PayloadLen(cycles int) int {
	return (cycles + 7) / 8
}

// Info returns the wire descriptor byte.
func (d Descriptor) Info() (byte, error) {
	if d.Cycles < 1 || d.Cycles > MaxCycles {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidCycleCount, d.Cycles)
	}
	info := byte(d.Cycles & SeqCyclesMask) // 64 wraps to 0
	if d.Capture {
		info |= SeqCaptureTDO
	}
	return info, nil
}

// ParseInfo decodes a wire descriptor byte. Bit 6 is ignored.
func ParseInfo(info byte) (cycles int, capture bool) {
	cycles = int(info & SeqCyclesMask)
	if cycles == 0 {
		cycles = MaxCycles
	}
	return cycles, info&SeqCaptureTDO != 0
}

// EncodeSequence packs descriptors into their wire form: for each, the info
// byte followed by its TDI bytes.
func EncodeSequence(ds []Descriptor) ([]byte, error) {
	infos := make([]byte, len(ds))
	size := 0
	for i, d := range ds {
		info, err := d.Info()
		if err != nil {
			return nil, fmt.Errorf("descriptor %d: %w", i, err)
		}
		infos[i] = info
		size += 1 + PayloadLen(d.Cycles)
	}

	out := make([]byte, 0, size)
	for i, d := range ds {
		info := infos[i]
		if len(d.TDI) != PayloadLen(d.Cycles) {
			return nil, fmt.Errorf("descriptor %d: %w: %d cycles need %d bytes, got %d",
				i, ErrPayloadLength, d.Cycles, PayloadLen(d.Cycles), len(d.TDI))
		}
		out = append(out, info)
		out = append(out, d.TDI...)
	}
	return out, nil
}

// DecodeSequence parses exactly count descriptors from data, which must hold
// nothing else.
func DecodeSequence(count int, data []byte) ([]Descriptor, error) {
	ds, n, err := decodeDescriptors(count, data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d extra", ErrTrailingData, len(data)-n)
	}
	return ds, nil
}

func decodeDescriptors(count int, data []byte) ([]Descriptor, int, error) {
	if count < 0 {
		return nil, 0, fmt.Errorf("%w: got %d", ErrInvalidSequenceCount, count)
	}
	ds := make([]Descriptor, 0, count)
	offset := 0
	for i := 0; i < count; i++ {
		if offset >= len(data) {
			return nil, offset, fmt.Errorf("descriptor %d: %w", i, ErrShortPayload)
		}
		cycles, capture := ParseInfo(data[offset])
		offset++

		n := PayloadLen(cycles)
		if offset+n > len(data) {
			return nil, offset, fmt.Errorf("descriptor %d: %w", i, ErrShortPayload)
		}
		ds = append(ds, Descriptor{
			Cycles:  cycles,
			Capture: capture,
			TDI:     append([]byte(nil), data[offset:offset+n]...),
		})
		offset += n
	}
	return ds, offset, nil
}

// EncodeSequenceRequest builds a complete DAP_JTAG_Sequence command.
func EncodeSequenceRequest(ds []Descriptor) ([]byte, error) {
	if len(ds) < 1 || len(ds) > 255 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSequenceCount, len(ds))
	}
	body, err := EncodeSequence(ds)
	if err != nil {
		return nil, err
	}
	return append([]byte{CmdJTAGSequence, byte(len(ds))}, body...), nil
}

// DecodeSequenceRequest parses a complete DAP_JTAG_Sequence command.
func DecodeSequenceRequest(req []byte) ([]Descriptor, error) {
	if len(req) < 2 {
		return nil, fmt.Errorf("request too short")
	}
	if req[0] != CmdJTAGSequence {
		return nil, fmt.Errorf("invalid command ID: 0x%02X", req[0])
	}
	if req[1] == 0 {
		return nil, ErrInvalidSequenceCount
	}
	return DecodeSequence(int(req[1]), req[2:])
}

// CapturedLen returns how many response bytes the descriptors produce.
func CapturedLen(ds []Descriptor) int {
	n := 0
	for _, d := range ds {
		if d.Capture {
			n += PayloadLen(d.Cycles)
		}
	}
	return n
}

// SplitCaptures cuts the TDO payload of a response (the bytes after the
// command echo and status) into one chunk per capturing descriptor, in
// descriptor order.
func SplitCaptures(payload []byte, ds []Descriptor) ([][]byte, error) {
	if want := CapturedLen(ds); len(payload) != want {
		return nil, fmt.Errorf("captured %d bytes, descriptors require %d", len(payload), want)
	}

	captures := make([][]byte, 0, len(ds))
	offset := 0
	for _, d := range ds {
		if !d.Capture {
			continue
		}
		n := PayloadLen(d.Cycles)
		captures = append(captures, payload[offset:offset+n])
		offset += n
	}
	return captures, nil
}

// DecodeSequenceResponse checks the echo and status of a DAP_JTAG_Sequence
// response and returns its captures.
func DecodeSequenceResponse(resp []byte, ds []Descriptor) ([][]byte, error) {
	if err := DecodeStatus(CmdJTAGSequence, resp); err != nil {
		return nil, err
	}
	return SplitCaptures(resp[2:], ds)
}

// FromStream distributes a continuous LSB-first TDI bit stream over the
// descriptor shapes in order. Cycles and Capture are taken from shape; any TDI
// already present there is replaced.
func FromStream(shape []Descriptor, stream []byte) ([]Descriptor, error) {
	total := 0
	for i, d := range shape {
		if d.Cycles < 1 || d.Cycles > MaxCycles {
			return nil, fmt.Errorf("descriptor %d: %w: got %d", i, ErrInvalidCycleCount, d.Cycles)
		}
		total += d.Cycles
	}
	if len(stream) != PayloadLen(total) {
		return nil, fmt.Errorf("%w: %d bits need %d bytes, got %d",
			ErrPayloadLength, total, PayloadLen(total), len(stream))
	}

	out := make([]Descriptor, len(shape))
	pos := 0
	for i, d := range shape {
		tdi := make([]byte, PayloadLen(d.Cycles))
		copyBits(tdi, 0, stream, pos, d.Cycles)
		pos += d.Cycles
		out[i] = Descriptor{Cycles: d.Cycles, Capture: d.Capture, TDI: tdi}
	}
	return out, nil
}

// ToStream concatenates the TDI bits of every descriptor into one LSB-first
// stream. Padding bits above each descriptor's cycle count are dropped.
func ToStream(ds []Descriptor) []byte {
	total := 0
	for _, d := range ds {
		total += d.Cycles
	}
	stream := make([]byte, PayloadLen(total))
	pos := 0
	for _, d := range ds {
		copyBits(stream, pos, d.TDI, 0, d.Cycles)
		pos += d.Cycles
	}
	return stream
}

// JoinCaptures concatenates the captured TDO bits of the capturing
// descriptors into one LSB-first stream.
func JoinCaptures(ds []Descriptor, captures [][]byte) ([]byte, error) {
	var bits int
	var capturing []Descriptor
	for _, d := range ds {
		if d.Capture {
			capturing = append(capturing, d)
			bits += d.Cycles
		}
	}
	if len(captures) != len(capturing) {
		return nil, fmt.Errorf("got %d captures for %d capturing descriptors", len(captures), len(capturing))
	}

	stream := make([]byte, PayloadLen(bits))
	pos := 0
	for i, d := range capturing {
		if len(captures[i]) < PayloadLen(d.Cycles) {
			return nil, fmt.Errorf("capture %d: %w", i, ErrShortPayload)
		}
		copyBits(stream, pos, captures[i], 0, d.Cycles)
		pos += d.Cycles
	}
	return stream, nil
}

// copyBits copies n LSB-first bits from src starting at bit srcPos into dst
// starting at bit dstPos.
func copyBits(dst []byte, dstPos int, src []byte, srcPos int, n int) {
	for i := 0; i < n; i++ {
		s := srcPos + i
		d := dstPos + i
		if src[s/8]&(1<<(s%8)) != 0 {
			dst[d/8] |= 1 << (d % 8)
		} else {
			dst[d/8] &^= 1 << (d % 8)
		}
	}
}

// MaxSWJBits is the longest DAP_SWJ_Sequence; it is sent as a count of 0.
const MaxSWJBits = 256

var ErrInvalidBitCount = errors.New("dap: SWJ bit count must be 1..256")

// EncodeSWJSequence builds a DAP_SWJ_Sequence command clocking bits bits of
// data out on SWDIO/TMS, LSB first.
func EncodeSWJSequence(bits int, data []byte) ([]byte, error) {
	if bits < 1 || bits > MaxSWJBits {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBitCount, bits)
	}
	if len(data) != PayloadLen(bits) {
		return nil, fmt.Errorf("%w: %d bits need %d bytes, got %d",
			ErrPayloadLength, bits, PayloadLen(bits), len(data))
	}
	out := make([]byte, 0, 2+len(data))
	out = append(out, CmdSWJSequence, byte(bits)) // 256 wraps to 0
	return append(out, data...), nil
}

// SWJBits decodes the bit count byte of a DAP_SWJ_Sequence.
func SWJBits(count byte) int {
	if count == 0 {
		return MaxSWJBits
	}
	return int(count)
}
