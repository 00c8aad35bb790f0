package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is a concurrency-safe set of subscribers keyed by generated ids.
// Broadcast passes iterate over Snapshot, so members removed mid-pass are
// neither skipped nor notified twice.
type Registry[T any] struct {
	mu      sync.RWMutex
	members map[string]T
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{members: make(map[string]T)}
}

// Add registers v and returns its id.
func (r *Registry[T]) Add(v T) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.members[id] = v
	r.mu.Unlock()
	return id
}

// Remove forgets id. Unknown ids are ignored.
func (r *Registry[T]) Remove(id string) {
	r.mu.Lock()
	delete(r.members, id)
	r.mu.Unlock()
}

// Snapshot copies the current members.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.members))
	for _, v := range r.members {
		out = append(out, v)
	}
	return out
}

// Len is the number of members.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
