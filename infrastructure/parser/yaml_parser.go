package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/ports"
	"gopkg.in/yaml.v3"
)

// YamlCatalogParser implements CatalogParser for YAML.
type YamlCatalogParser struct {
	strict bool
}

// ParserOption configures the YamlCatalogParser.
type ParserOption func(*YamlCatalogParser)

// WithStrictFields rejects keys that do not map to a catalog field.
func WithStrictFields(strict bool) ParserOption {
	return func(p *YamlCatalogParser) {
		p.strict = strict
	}
}

// NewYamlCatalogParser creates a new YamlCatalogParser. Strict field
// checking is on by default.
func NewYamlCatalogParser(opts ...ParserOption) ports.CatalogParser {
	p := &YamlCatalogParser{strict: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse unmarshals YAML bytes into a Catalog. A document holding only a
// list of descriptors is accepted as a catalog without a version.
func (p *YamlCatalogParser) Parse(data []byte) (*entities.Catalog, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, errors.New("failed to parse catalog: document is empty")
	}

	if node.Content[0].Kind == yaml.SequenceNode {
		var descriptors []entities.CapabilityDescriptor
		if err := p.decode(data, &descriptors); err != nil {
			return nil, err
		}
		return &entities.Catalog{Capabilities: descriptors}, nil
	}

	var catalog entities.Catalog
	if err := p.decode(data, &catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (p *YamlCatalogParser) decode(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.strict)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	return nil
}
