package core

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"lineagecore/pkg/domain"
)

// TypeRegistry resolves data class and sample type descriptors. Types never
// change once registered, so hits are served from a bounded TTL cache and
// only misses reach the store. Unknown ids are not cached.
type TypeRegistry struct {
	cache *expirable.LRU[string, ArtifactType]
}

// NewTypeRegistry builds a registry caching up to size descriptors for ttl.
func NewTypeRegistry(size int, ttl time.Duration) *TypeRegistry {
	if size <= 0 {
		size = defaultTypeCacheSize
	}
	return &TypeRegistry{cache: expirable.NewLRU[string, ArtifactType](size, nil, ttl)}
}

// Resolve returns the descriptor for id, reading through view on a miss.
func (r *TypeRegistry) Resolve(view LineageReader, id string) (ArtifactType, error) {
	if t, ok := r.cache.Get(id); ok {
		return t, nil
	}
	t, ok := view.FindType(id)
	if !ok {
		return ArtifactType{}, &domain.NotFoundError{Entity: domain.EntityArtifactType, ID: id}
	}
	r.cache.Add(id, t)
	return t, nil
}

// Forget drops a cached descriptor.
func (r *TypeRegistry) Forget(id string) {
	r.cache.Remove(id)
}

// Len reports the number of cached descriptors.
func (r *TypeRegistry) Len() int {
	return r.cache.Len()
}
