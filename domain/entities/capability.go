package entities

import "strings"

// CapabilityKind classifies what sort of dependency a capability is.
type CapabilityKind string

const (
	CapabilityKindBinary    CapabilityKind = "binary"
	CapabilityKindTool      CapabilityKind = "tool"
	CapabilityKindMCPServer CapabilityKind = "mcp-server"
)

// InstallMethod names the package-manager family or mechanism a recipe uses.
type InstallMethod string

const (
	InstallMethodApt      InstallMethod = "apt"
	InstallMethodBrew     InstallMethod = "brew"
	InstallMethodDnf      InstallMethod = "dnf"
	InstallMethodPip      InstallMethod = "pip"
	InstallMethodNpm      InstallMethod = "npm"
	InstallMethodCargo    InstallMethod = "cargo"
	InstallMethodGo       InstallMethod = "go"
	InstallMethodScript   InstallMethod = "script"
	InstallMethodDownload InstallMethod = "download"
)

// ContainerHint asks for a recipe to run inside a throwaway container
// when container execution is enabled.
type ContainerHint struct {
	// Image is the container image the recipe command runs in.
	Image string `json:"image" yaml:"image" validate:"required" jsonschema:"minLength=1"`
}

// InstallRecipe is one way to obtain a capability.
type InstallRecipe struct {
	// ID identifies the recipe within its capability.
	ID string `json:"id" yaml:"id" validate:"required" jsonschema:"minLength=1"`

	// Method is the package-manager family or mechanism.
	Method InstallMethod `json:"method" yaml:"method" validate:"required,oneof=apt brew dnf pip npm cargo go script download" jsonschema:"enum=apt,enum=brew,enum=dnf,enum=pip,enum=npm,enum=cargo,enum=go,enum=script,enum=download"`

	// Command is the shell command that performs the install.
	Command string `json:"command" yaml:"command" validate:"required" jsonschema:"minLength=1"`

	// TimeoutMs bounds the install command. Zero means the orchestrator default.
	TimeoutMs int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty" validate:"gte=0" jsonschema:"minimum=0"`

	// Verified marks hand-reviewed recipes; community recipes leave it false.
	Verified bool `json:"verified" yaml:"verified"`

	// VerifyCommand is run after the install to confirm it worked.
	VerifyCommand string `json:"verifyCommand,omitempty" yaml:"verifyCommand,omitempty"`

	// Container optionally requests container execution.
	Container *ContainerHint `json:"container,omitempty" yaml:"container,omitempty"`
}

// CapabilityDescriptor is the static identity of an installable dependency.
// Descriptors are treated as immutable once registered.
type CapabilityDescriptor struct {
	ID             string          `json:"id" yaml:"id" validate:"required" jsonschema:"minLength=1"`
	Kind           CapabilityKind  `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=binary tool mcp-server" jsonschema:"enum=binary,enum=tool,enum=mcp-server"`
	Binary         string          `json:"binary,omitempty" yaml:"binary,omitempty"`
	Aliases        []string        `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description    string          `json:"description,omitempty" yaml:"description,omitempty"`
	InstallRecipes []InstallRecipe `json:"installRecipes,omitempty" yaml:"installRecipes,omitempty" validate:"dive"`
}

// BinaryName returns the executable the capability provides, defaulting to its id.
func (d CapabilityDescriptor) BinaryName() string {
	if d.Binary != "" {
		return strings.ToLower(d.Binary)
	}
	return strings.ToLower(d.ID)
}

// Normalized returns a copy with lowercase id, binary and aliases.
// Slices are copied so the registry never shares backing arrays with callers.
func (d CapabilityDescriptor) Normalized() CapabilityDescriptor {
	out := d
	out.ID = strings.ToLower(strings.TrimSpace(d.ID))
	out.Binary = strings.ToLower(strings.TrimSpace(d.Binary))
	if out.Kind == "" {
		out.Kind = CapabilityKindBinary
	}
	out.Aliases = make([]string, 0, len(d.Aliases))
	for _, a := range d.Aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			out.Aliases = append(out.Aliases, a)
		}
	}
	out.InstallRecipes = make([]InstallRecipe, len(d.InstallRecipes))
	copy(out.InstallRecipes, d.InstallRecipes)
	return out
}

// Names returns every lookup key for the descriptor: id, binary, then aliases.
func (d CapabilityDescriptor) Names() []string {
	names := []string{strings.ToLower(d.ID)}
	if b := d.BinaryName(); b != names[0] {
		names = append(names, b)
	}
	for _, a := range d.Aliases {
		names = append(names, strings.ToLower(a))
	}
	return names
}
