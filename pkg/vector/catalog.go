package vector

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// ErrUnknownSuite is returned when a suite name is not in the catalog.
var ErrUnknownSuite = errors.New("unknown suite")

// DefinitionError reports a malformed vector or suite, with the position of
// the offending definition when it came from notation source.
type DefinitionError struct {
	Pos    lexer.Position
	Suite  string
	Vector string
	Err    error
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	if e.Pos.Line > 0 {
		b.WriteString(e.Pos.String())
		b.WriteString(": ")
	}
	if e.Suite != "" {
		fmt.Fprintf(&b, "suite %s: ", e.Suite)
	}
	if e.Vector != "" {
		fmt.Fprintf(&b, "vector %q: ", e.Vector)
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// Suite is an ordered, named group of vectors.
type Suite struct {
	Name        string
	Description string

	vectors []Vector
	index   map[string]int
}

// NewSuite returns an empty suite.
func NewSuite(name, description string) *Suite {
	return &Suite{Name: name, Description: description, index: make(map[string]int)}
}

// Add appends v. Names must be unique within the suite.
func (s *Suite) Add(v Vector) error {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, dup := s.index[v.Name()]; dup {
		return &DefinitionError{Suite: s.Name, Vector: v.Name(), Err: errors.New("duplicate vector name")}
	}
	s.index[v.Name()] = len(s.vectors)
	s.vectors = append(s.vectors, v)
	return nil
}

// Vectors returns the suite's vectors in declaration order.
func (s *Suite) Vectors() []Vector {
	return append([]Vector(nil), s.vectors...)
}

// Vector looks a vector up by name.
func (s *Suite) Vector(name string) (Vector, bool) {
	i, ok := s.index[name]
	if !ok {
		return Vector{}, false
	}
	return s.vectors[i], true
}

// Len returns the number of vectors.
func (s *Suite) Len() int {
	return len(s.vectors)
}

// Families returns the distinct command families the suite exercises, sorted.
func (s *Suite) Families() []string {
	seen := make(map[string]bool)
	for _, v := range s.vectors {
		seen[v.Family()] = true
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Catalog holds suites in declaration order.
type Catalog struct {
	suites []*Suite
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Add appends a suite. Suite names must be unique and suites non-empty.
func (c *Catalog) Add(s *Suite) error {
	if s.Name == "" {
		return &DefinitionError{Err: errors.New("suite has no name")}
	}
	if s.Len() == 0 {
		return &DefinitionError{Suite: s.Name, Err: errors.New("suite has no vectors")}
	}
	for _, existing := range c.suites {
		if existing.Name == s.Name {
			return &DefinitionError{Suite: s.Name, Err: errors.New("duplicate suite name")}
		}
	}
	c.suites = append(c.suites, s)
	return nil
}

// Clone returns a catalog whose suites can be extended without affecting c.
// Vectors are immutable and shared.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{suites: make([]*Suite, len(c.suites))}
	for i, s := range c.suites {
		out.suites[i] = s.clone()
	}
	return out
}

func (s *Suite) clone() *Suite {
	out := NewSuite(s.Name, s.Description)
	out.vectors = append([]Vector(nil), s.vectors...)
	for name, i := range s.index {
		out.index[name] = i
	}
	return out
}

// Merge adds every suite of other.
func (c *Catalog) Merge(other *Catalog) error {
	for _, s := range other.suites {
		if err := c.Add(s); err != nil {
			return err
		}
	}
	return nil
}

// Suite returns the named suite.
func (c *Catalog) Suite(name string) (*Suite, error) {
	for _, s := range c.suites {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownSuite, name, strings.Join(c.Names(), ", "))
}

// Suites returns the suites in declaration order.
func (c *Catalog) Suites() []*Suite {
	return append([]*Suite(nil), c.suites...)
}

// Names returns the suite names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.suites))
	for i, s := range c.suites {
		names[i] = s.Name
	}
	return names
}
