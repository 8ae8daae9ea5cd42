// Package catalog ships the built-in capability catalog and loads catalogs
// into a registry.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
	"github.com/reglet-dev/execsafety/infrastructure/parser"
)

//go:embed builtin.yaml
var builtinYAML []byte

// BuiltinYAML returns the raw built-in catalog document.
func BuiltinYAML() []byte {
	out := make([]byte, len(builtinYAML))
	copy(out, builtinYAML)
	return out
}

// Builtin parses the built-in catalog.
func Builtin() (*entities.Catalog, error) {
	return parser.NewYamlCatalogParser().Parse(builtinYAML)
}

// ReadFile parses a catalog from disk.
func ReadFile(path string) (*entities.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return parser.NewYamlCatalogParser().Parse(data)
}

// Load validates a catalog and registers every descriptor. Nothing is
// registered when validation fails.
func Load(reg ports.CapabilityRegistry, c *entities.Catalog, v ports.CatalogValidator) (int, error) {
	if v != nil {
		res, err := v.Validate(c)
		if err != nil {
			return 0, err
		}
		if !res.Valid {
			msgs := make([]string, 0, len(res.Errors))
			for _, e := range res.Errors {
				msgs = append(msgs, e.Field+": "+e.Message)
			}
			return 0, fmt.Errorf("invalid catalog: %s", strings.Join(msgs, "; "))
		}
	}

	for i, d := range c.Capabilities {
		if err := reg.Register(d); err != nil {
			return i, err
		}
	}
	return len(c.Capabilities), nil
}
