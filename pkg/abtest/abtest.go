// Package abtest provides deterministic experiment variant assignment.
package abtest

import (
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Registry holds registered experiments and assigns users to variants.
// Assignment is a pure function of (experiment, user) so a user always
// lands in the same bucket across processes and restarts.
type Registry struct {
	mu          sync.RWMutex
	experiments map[string][]string
}

// NewRegistry creates an empty experiment registry.
func NewRegistry() *Registry {
	return &Registry{experiments: make(map[string][]string)}
}

// Register adds an experiment with its variants. Registering an existing
// experiment replaces its variant list.
func (r *Registry) Register(name string, variants []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiments[name] = variants
}

// Variant returns the assigned variant for a user, or "control" when the
// experiment is unknown or has no variants.
func (r *Registry) Variant(experiment, userID string) string {
	r.mu.RLock()
	variants := r.experiments[experiment]
	r.mu.RUnlock()

	if len(variants) == 0 {
		return "control"
	}

	sum := blake2b.Sum256([]byte(experiment + ":" + userID))
	idx := binary.BigEndian.Uint64(sum[:8]) % uint64(len(variants))
	return variants[idx]
}
