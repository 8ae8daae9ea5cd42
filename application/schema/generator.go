// Package schema generates JSON schemas for capability catalogs.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/reglet-dev/execsafety/domain/entities"
)

// CatalogSchemaID is the $id of the catalog schema.
const CatalogSchemaID = "https://reglet.dev/schemas/execsafety/catalog.json"

// GenerateSchema creates a JSON schema from a Go struct.
// Nested types are emitted under $defs and referenced, so recursive
// descriptor types stay finite.
func GenerateSchema(v interface{}) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Top-level type inline, nested types in $defs
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// CatalogSchema returns the schema every capability catalog must satisfy.
func CatalogSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(&entities.Catalog{})
	schema.ID = jsonschema.ID(CatalogSchemaID)
	schema.Title = "Capability catalog"

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog schema: %w", err)
	}
	return jsonBytes, nil
}
