package parser_test

import (
	"testing"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/infrastructure/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
version: "1"
capabilities:
  - id: ripgrep
    kind: binary
    binary: rg
    aliases: [ripgrep]
    description: Recursive regex search
    installRecipes:
      - id: apt
        method: apt
        command: apt-get install -y ripgrep
        verified: true
        verifyCommand: rg --version
      - id: cargo
        method: cargo
        command: cargo install ripgrep
        timeoutMs: 600000
        container:
          image: rust:1
`

func TestYamlCatalogParser_Parse(t *testing.T) {
	p := parser.NewYamlCatalogParser()

	catalog, err := p.Parse([]byte(catalogYAML))
	require.NoError(t, err)

	assert.Equal(t, "1", catalog.Version)
	require.Len(t, catalog.Capabilities, 1)

	rg := catalog.Capabilities[0]
	assert.Equal(t, "rg", rg.BinaryName())
	assert.Equal(t, entities.CapabilityKindBinary, rg.Kind)
	require.Len(t, rg.InstallRecipes, 2)
	assert.True(t, rg.InstallRecipes[0].Verified)
	assert.Equal(t, "rg --version", rg.InstallRecipes[0].VerifyCommand)
	assert.Equal(t, 600000, rg.InstallRecipes[1].TimeoutMs)
	require.NotNil(t, rg.InstallRecipes[1].Container)
	assert.Equal(t, "rust:1", rg.InstallRecipes[1].Container.Image)
}

func TestYamlCatalogParser_BareList(t *testing.T) {
	p := parser.NewYamlCatalogParser()

	catalog, err := p.Parse([]byte("- id: jq\n- id: fd\n  binary: fdfind\n"))
	require.NoError(t, err)
	require.Len(t, catalog.Capabilities, 2)
	assert.Equal(t, "fdfind", catalog.Capabilities[1].BinaryName())
	assert.Empty(t, catalog.Version)
}

func TestYamlCatalogParser_Errors(t *testing.T) {
	p := parser.NewYamlCatalogParser()

	_, err := p.Parse([]byte(""))
	assert.Error(t, err)

	_, err = p.Parse([]byte("capabilities: [unclosed"))
	assert.Error(t, err)

	_, err = p.Parse([]byte("capabilities:\n  - id: jq\n    installer: apt\n"))
	assert.Error(t, err, "unknown field rejected in strict mode")

	lenient := parser.NewYamlCatalogParser(parser.WithStrictFields(false))
	catalog, err := lenient.Parse([]byte("capabilities:\n  - id: jq\n    installer: apt\n"))
	require.NoError(t, err)
	assert.Equal(t, "jq", catalog.Capabilities[0].ID)
}
