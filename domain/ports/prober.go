package ports

import "context"

// BinaryProber checks whether an executable is reachable on PATH.
type BinaryProber interface {
	// Probe reports availability plus a short detail (resolved path or reason).
	// Errors are reserved for probes that could not run at all.
	Probe(ctx context.Context, binary string) (available bool, detail string, err error)
}
