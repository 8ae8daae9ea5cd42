package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema_NestedStruct(t *testing.T) {
	type Recipe struct {
		Command string `json:"command"`
		Timeout int    `json:"timeoutMs,omitempty"`
	}

	type Descriptor struct {
		ID      string   `json:"id"`
		Recipes []Recipe `json:"recipes"`
	}

	schema, err := GenerateSchema(Descriptor{})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(schema, &decoded))

	properties, ok := decoded["properties"].(map[string]interface{})
	require.True(t, ok, "properties should be a map")
	assert.Contains(t, properties, "id")
	assert.Contains(t, properties, "recipes")

	required, ok := decoded["required"].([]interface{})
	require.True(t, ok, "required should be an array")
	assert.ElementsMatch(t, []interface{}{"id", "recipes"}, required)
}

func TestGenerateSchema_EmptyStruct(t *testing.T) {
	type Empty struct{}

	schema, err := GenerateSchema(Empty{})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(schema, &decoded))
	assert.NotEmpty(t, decoded)
}

func TestCatalogSchema(t *testing.T) {
	raw, err := CatalogSchema()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, CatalogSchemaID, decoded["$id"])
	assert.Equal(t, "Capability catalog", decoded["title"])

	properties := decoded["properties"].(map[string]interface{})
	assert.Contains(t, properties, "capabilities")
	assert.Contains(t, properties, "version")

	defs, ok := decoded["$defs"].(map[string]interface{})
	require.True(t, ok, "nested descriptor types live in $defs")
	assert.Contains(t, defs, "CapabilityDescriptor")
	assert.Contains(t, defs, "InstallRecipe")

	s := string(raw)
	assert.Contains(t, s, `"mcp-server"`)
	assert.Contains(t, s, `"download"`)
}
