// Package ports defines interfaces between the platform's domain logic and its
// adapters. Domain and application code depend on these abstractions; the
// infrastructure packages implement them.
package ports
