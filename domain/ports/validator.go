package ports

import "github.com/reglet-dev/execsafety/domain/entities"

// CatalogValidator validates capability catalogs before registration.
type CatalogValidator interface {
	// Validate checks the catalog against the descriptor schema and struct rules.
	Validate(catalog *entities.Catalog) (*entities.ValidationResult, error)
}
