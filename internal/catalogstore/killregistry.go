package catalogstore

import (
	"sync"

	"github.com/google/uuid"
)

// KillRegistry tracks, per id, the "generation" a live connection was
// opened under. pkg/shardmgmt keys it by shard id and bumps a shard's
// generation when the shard, or any mapping on it, is taken offline; any
// connection holder that checks in with a stale generation afterward is
// told to consider itself killed (spec.md §4.8's kill-on-offline
// invariant). This mirrors the teacher's HealthMonitor: a map guarded by a
// mutex, one small per-entry counter, consulted on every use rather than
// pushed out via a notification channel.
type KillRegistry struct {
	mu          sync.RWMutex
	generations map[uuid.UUID]uint64
}

// NewKillRegistry returns an empty registry.
func NewKillRegistry() *KillRegistry {
	return &KillRegistry{generations: make(map[uuid.UUID]uint64)}
}

// CurrentGeneration returns the live generation for a mapping; an id that
// has never been marked offline reports 0 without being stored.
func (r *KillRegistry) CurrentGeneration(mappingID uuid.UUID) uint64 {
	r.mu.RLock()
	gen, ok := r.generations[mappingID]
	r.mu.RUnlock()
	if ok {
		return gen
	}
	return 0
}

// MarkOffline bumps the mapping's generation, invalidating every connection
// token issued under the previous one.
func (r *KillRegistry) MarkOffline(mappingID uuid.UUID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[mappingID]++
	return r.generations[mappingID]
}

// IsCurrent reports whether generation still matches the mapping's live
// generation. Callers holding a connection opened at a given generation use
// this to decide whether to keep using it or fail with
// shardmaperr.ErrConnectionKilled.
func (r *KillRegistry) IsCurrent(mappingID uuid.UUID, generation uint64) bool {
	return r.CurrentGeneration(mappingID) == generation
}

// Forget drops the tracked generation for a mapping, e.g. once it has been
// removed from the catalog entirely.
func (r *KillRegistry) Forget(mappingID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.generations, mappingID)
}
