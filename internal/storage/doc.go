// Package storage defines the object store and job table primitives that the
// pipeline components coordinate through, plus in-memory and filesystem
// implementations for single-node deployments and tests. All cross-component
// coordination happens through these interfaces; the components share no
// process memory.
package storage
