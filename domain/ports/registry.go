package ports

import (
	"context"

	"github.com/reglet-dev/execsafety/domain/entities"
)

// CapabilityRegistry maps capability ids and aliases to descriptors and
// caches binary liveness.
type CapabilityRegistry interface {
	// Register indexes a descriptor by id, binary and aliases. Re-registration replaces it.
	Register(desc entities.CapabilityDescriptor) error

	// Unregister removes a descriptor and every index entry pointing at it.
	Unregister(id string) bool

	// Get resolves an id, binary name or alias, case-insensitively.
	Get(idOrAlias string) (entities.CapabilityDescriptor, bool)

	// List returns every registered descriptor sorted by id.
	List() []entities.CapabilityDescriptor

	// IsBinaryAvailable consults the state cache, probing on a miss.
	IsBinaryAvailable(ctx context.Context, binary string) bool

	// SetBinaryState writes a fresh runtime state, bypassing the probe.
	SetBinaryState(binary string, available bool, detail string)

	// Invalidate drops the cached state so the next availability check probes.
	Invalidate(binary string)

	// ResolveCommandCapabilities works out which capabilities a command needs.
	ResolveCommandCapabilities(ctx context.Context, command string) entities.CommandResolution
}
