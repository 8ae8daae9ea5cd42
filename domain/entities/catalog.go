package entities

// Catalog is a document of capability descriptors, as loaded from YAML.
type Catalog struct {
	Version      string                 `json:"version,omitempty" yaml:"version,omitempty"`
	Capabilities []CapabilityDescriptor `json:"capabilities" yaml:"capabilities" validate:"min=1,dive" jsonschema:"minItems=1"`
}
