package ports

import "github.com/reglet-dev/execsafety/domain/entities"

// CatalogParser parses raw bytes into a capability catalog.
type CatalogParser interface {
	Parse(data []byte) (*entities.Catalog, error)
}
