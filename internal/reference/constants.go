// Package reference builds the in-memory index of example fingerprints.
package reference

// Index build defaults
const (
	// Concurrent fingerprint computations while building
	DefaultWorkers = 8
)
