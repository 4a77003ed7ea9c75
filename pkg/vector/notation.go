package vector

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/OpenTraceLab/dapcheck/pkg/dap"
)

// NotationLexer tokenises vector notation source:
//
//	suite smoke "Development run set" {
//	  "FW version": <00 04> => <00 05> "1.00" <00>;
//	  "W/TDO": <14> jtag { tdo 8 <91> } => <14 00 80>;
//	}
var NotationLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},

	// Hex byte block, e.g. <14 00 80>
	{Name: "Hex", Pattern: `<[0-9A-Fa-f\s]*>`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Arrow", Pattern: `=>`},
	{Name: "Int", Pattern: `0[xX][0-9A-Fa-f]+|[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[{}();:,]`},
})

// File is the root of a notation source.
type File struct {
	Suites []*SuiteDecl `@@*`
}

// SuiteDecl declares a named suite.
type SuiteDecl struct {
	Pos lexer.Position

	Name        string       `"suite" @Ident`
	Description string       `@String?`
	Entries     []*EntryDecl `"{" @@* "}"`
}

// EntryDecl declares one vector: name, request terms and response terms.
type EntryDecl struct {
	Pos lexer.Position

	Name     string  `@String ":"`
	Input    []*Term `@@+ Arrow`
	Expected []*Term `@@+ ";"`
}

// Term produces a run of bytes.
type Term struct {
	Pos lexer.Position

	Hex  *string    `  @Hex`
	Str  *string    `| @String`
	JTAG *JTAGBlock `| "jtag" "{" @@ "}"`
	SWJ  *SWJBlock  `| "swj" "{" @@ "}"`
	Call *Call      `| @@`
}

// JTAGBlock expands to a sequence count byte followed by descriptors.
type JTAGBlock struct {
	Descriptors []*JTAGDescriptor `@@+`
}

// JTAGDescriptor is one descriptor: optional TDO capture, cycle count, TDI.
type JTAGDescriptor struct {
	Pos lexer.Position

	Capture bool   `@"tdo"?`
	Cycles  string `@Int`
	TDI     string `@Hex ";"?`
}

// SWJBlock expands to a DAP_SWJ_Sequence bit count byte and its data.
type SWJBlock struct {
	Bits string `@Int`
	Data string `@Hex`
}

// Call is a field helper: le16(n), le32(n) or fill(n, byte).
type Call struct {
	Func string   `@Ident "("`
	Args []string `@Int ( "," @Int )* ")"`
}

var notationParser = participle.MustBuild[File](
	participle.Lexer(NotationLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// Parse reads notation source and builds a validated catalog.
func Parse(filename string, r io.Reader) (*Catalog, error) {
	file, err := notationParser.Parse(filename, r)
	if err != nil {
		return nil, wrapParseError(err)
	}
	return file.Catalog()
}

// ParseString parses notation held in a string.
func ParseString(filename, src string) (*Catalog, error) {
	file, err := notationParser.ParseString(filename, src)
	if err != nil {
		return nil, wrapParseError(err)
	}
	return file.Catalog()
}

// ParseFile parses a notation file from disk.
func ParseFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector file: %w", err)
	}
	defer f.Close()

	return Parse(path, f)
}

func wrapParseError(err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return &DefinitionError{Pos: perr.Position(), Err: errors.New(perr.Message())}
	}
	return fmt.Errorf("parse error: %w", err)
}

// Catalog evaluates every declaration.
func (f *File) Catalog() (*Catalog, error) {
	c := NewCatalog()
	for _, sd := range f.Suites {
		s := NewSuite(sd.Name, sd.Description)
		for _, e := range sd.Entries {
			v, err := e.vector()
			if err != nil {
				pos := e.Pos
				var perr *positionError
				if errors.As(err, &perr) {
					pos, err = perr.pos, perr.err
				}
				return nil, &DefinitionError{Pos: pos, Suite: sd.Name, Vector: e.Name, Err: err}
			}
			if err := s.Add(v); err != nil {
				var derr *DefinitionError
				if errors.As(err, &derr) {
					derr.Pos = e.Pos
				}
				return nil, err
			}
		}
		if err := c.Add(s); err != nil {
			var derr *DefinitionError
			if errors.As(err, &derr) {
				derr.Pos = sd.Pos
			}
			return nil, err
		}
	}
	return c, nil
}

func (e *EntryDecl) vector() (Vector, error) {
	input, err := evalTerms(e.Input)
	if err != nil {
		return Vector{}, err
	}
	expected, err := evalTerms(e.Expected)
	if err != nil {
		return Vector{}, err
	}
	return New(e.Name, input, expected)
}

func evalTerms(terms []*Term) ([]byte, error) {
	var out []byte
	for _, t := range terms {
		b, err := t.eval()
		if err != nil {
			var perr *positionError
			if errors.As(err, &perr) {
				return nil, err
			}
			return nil, &positionError{pos: t.Pos, err: err}
		}
		out = append(out, b...)
	}
	return out, nil
}

func (t *Term) eval() ([]byte, error) {
	switch {
	case t.Hex != nil:
		return parseHex(*t.Hex)
	case t.Str != nil:
		return []byte(*t.Str), nil
	case t.JTAG != nil:
		return t.JTAG.eval()
	case t.SWJ != nil:
		return t.SWJ.eval()
	case t.Call != nil:
		return t.Call.eval()
	}
	return nil, errors.New("empty term")
}

func parseHex(tok string) ([]byte, error) {
	digits := strings.Join(strings.Fields(strings.Trim(tok, "<>")), "")
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("hex block %s has an odd number of digits", tok)
	}
	return hex.DecodeString(digits)
}

// parseInt reads a decimal or 0x-prefixed hex number. Decimal numbers with a
// leading zero are rejected rather than read as octal.
func parseInt(s string, max int64) (int64, error) {
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	} else if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("number %q has a leading zero (write it in decimal without one, or as 0x hex)", s)
	}
	n, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if n > max {
		return 0, fmt.Errorf("%s out of range (max %d)", s, max)
	}
	return n, nil
}

// positionError ties an evaluation error to the most specific source position.
type positionError struct {
	pos lexer.Position
	err error
}

func (e *positionError) Error() string {
	return fmt.Sprintf("%s: %v", e.pos, e.err)
}

func (e *positionError) Unwrap() error {
	return e.err
}

func (b *JTAGBlock) eval() ([]byte, error) {
	ds := make([]dap.Descriptor, 0, len(b.Descriptors))
	for _, d := range b.Descriptors {
		cycles, err := parseInt(d.Cycles, math.MaxInt32)
		if err != nil {
			return nil, &positionError{pos: d.Pos, err: err}
		}
		if cycles < 1 || cycles > dap.MaxCycles {
			return nil, &positionError{pos: d.Pos, err: fmt.Errorf("%w: got %d", dap.ErrInvalidCycleCount, cycles)}
		}
		tdi, err := parseHex(d.TDI)
		if err != nil {
			return nil, &positionError{pos: d.Pos, err: err}
		}
		ds = append(ds, dap.Descriptor{Cycles: int(cycles), Capture: d.Capture, TDI: tdi})
	}

	req, err := dap.EncodeSequenceRequest(ds)
	if err != nil {
		return nil, err
	}
	// The opcode is written by the surrounding terms.
	return req[1:], nil
}

func (b *SWJBlock) eval() ([]byte, error) {
	bits, err := parseInt(b.Bits, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	data, err := parseHex(b.Data)
	if err != nil {
		return nil, err
	}
	req, err := dap.EncodeSWJSequence(int(bits), data)
	if err != nil {
		return nil, err
	}
	return req[1:], nil
}

func (c *Call) eval() ([]byte, error) {
	switch c.Func {
	case "le16":
		if len(c.Args) != 1 {
			return nil, fmt.Errorf("le16 takes 1 argument, got %d", len(c.Args))
		}
		n, err := parseInt(c.Args[0], 0xFFFF)
		if err != nil {
			return nil, err
		}
		return dap.LE16(uint16(n)), nil

	case "le32":
		if len(c.Args) != 1 {
			return nil, fmt.Errorf("le32 takes 1 argument, got %d", len(c.Args))
		}
		n, err := parseInt(c.Args[0], 0xFFFFFFFF)
		if err != nil {
			return nil, err
		}
		return dap.LE32(uint32(n)), nil

	case "fill":
		if len(c.Args) != 2 {
			return nil, fmt.Errorf("fill takes 2 arguments, got %d", len(c.Args))
		}
		n, err := parseInt(c.Args[0], 0xFFFF)
		if err != nil {
			return nil, err
		}
		v, err := parseInt(c.Args[1], 0xFF)
		if err != nil {
			return nil, err
		}
		out := make([]byte, n)
		for i := range out {
			out[i] = byte(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown helper %q", c.Func)
}
