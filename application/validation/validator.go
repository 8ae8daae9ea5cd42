// Package validation checks capability catalogs before they are registered.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/execsafety/application/schema"
	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CatalogValidator validates catalogs against the generated JSON schema,
// struct tags and cross-descriptor rules.
type CatalogValidator struct {
	structs *validator.Validate
	schema  *jsonschema.Schema
	once    sync.Once
	initErr error
}

var _ ports.CatalogValidator = (*CatalogValidator)(nil)

// NewCatalogValidator creates a new validator.
func NewCatalogValidator() *CatalogValidator {
	return &CatalogValidator{structs: validator.New()}
}

// compile builds the catalog schema once.
func (v *CatalogValidator) compile() error {
	v.once.Do(func() {
		raw, err := schema.CatalogSchema()
		if err != nil {
			v.initErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schema.CatalogSchemaID, bytes.NewReader(raw)); err != nil {
			v.initErr = fmt.Errorf("failed to add catalog schema resource: %w", err)
			return
		}
		v.schema, err = compiler.Compile(schema.CatalogSchemaID)
		if err != nil {
			v.initErr = fmt.Errorf("invalid catalog schema: %w", err)
		}
	})
	return v.initErr
}

// Validate reports every problem found in the catalog. The error return is
// reserved for failures of the validator itself.
func (v *CatalogValidator) Validate(catalog *entities.Catalog) (*entities.ValidationResult, error) {
	result := &entities.ValidationResult{Valid: true}
	if catalog == nil {
		result.Add("catalog", "catalog is nil")
		return result, nil
	}
	if err := v.compile(); err != nil {
		return nil, err
	}

	// Marshal to JSON so the schema sees exactly what a JSON consumer would.
	b, err := json.Marshal(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare validation object: %w", err)
	}
	var obj interface{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("failed to prepare validation object: %w", err)
	}

	if err := v.schema.Validate(obj); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			for _, cause := range leafCauses(ve) {
				result.Add(schemaField(cause.InstanceLocation), cause.Message)
			}
		} else {
			result.Add("catalog", err.Error())
		}
	}

	if err := v.structs.Struct(catalog); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				result.Add(fe.Namespace(), fmt.Sprintf("failed %q constraint", fe.Tag()))
			}
		} else {
			result.Add("catalog", err.Error())
		}
	}

	checkNames(catalog, result)
	return result, nil
}

// checkNames rejects ids and aliases claimed by more than one descriptor,
// and recipe ids repeated within a descriptor.
func checkNames(catalog *entities.Catalog, result *entities.ValidationResult) {
	owners := make(map[string]string)
	for i, d := range catalog.Capabilities {
		n := d.Normalized()
		for _, name := range n.Names() {
			if owner, ok := owners[name]; ok && owner != n.ID {
				result.Add(fmt.Sprintf("capabilities[%d]", i),
					fmt.Sprintf("name %q already used by capability %q", name, owner))
				continue
			}
			owners[name] = n.ID
		}

		recipes := make(map[string]bool)
		for j, r := range d.InstallRecipes {
			if recipes[r.ID] {
				result.Add(fmt.Sprintf("capabilities[%d].installRecipes[%d]", i, j),
					fmt.Sprintf("duplicate recipe id %q", r.ID))
			}
			recipes[r.ID] = true
		}
	}

	seen := make(map[string]bool)
	for i, d := range catalog.Capabilities {
		id := strings.ToLower(strings.TrimSpace(d.ID))
		if id != "" && seen[id] {
			result.Add(fmt.Sprintf("capabilities[%d].id", i), fmt.Sprintf("duplicate capability id %q", id))
		}
		seen[id] = true
	}
}

// leafCauses flattens a validation error tree to its most specific causes.
func leafCauses(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}

// schemaField converts a JSON pointer like /capabilities/0/kind to capabilities.0.kind.
func schemaField(pointer string) string {
	field := strings.ReplaceAll(strings.TrimPrefix(pointer, "/"), "/", ".")
	if field == "" {
		return "catalog"
	}
	return field
}
