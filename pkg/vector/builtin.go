package vector

import (
	"embed"
	"fmt"
	"sync"
)

// DefaultSuite is run when neither configuration nor flags name a suite.
const DefaultSuite = "smoke"

//go:embed suites/*.dapv
var builtinFS embed.FS

// Built-in suite sources, in catalog order.
var builtinFiles = []string{
	"suites/smoke.dapv",
	"suites/full.dapv",
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
	builtinErr  error
)

// Builtin returns a copy of the catalog compiled into the binary. The source
// is parsed once; each call gets suites of its own.
func Builtin() (*Catalog, error) {
	builtinOnce.Do(func() {
		builtin, builtinErr = loadBuiltin()
	})
	if builtinErr != nil {
		return nil, builtinErr
	}
	return builtin.Clone(), nil
}

func loadBuiltin() (*Catalog, error) {
	c := NewCatalog()
	for _, name := range builtinFiles {
		src, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		part, err := ParseString(name, string(src))
		if err != nil {
			return nil, err
		}
		if err := c.Merge(part); err != nil {
			return nil, err
		}
	}
	return c, nil
}
