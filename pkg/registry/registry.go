// Package registry tracks the named vector indexes of a process and
// serializes access to them.
//
// Locking is two-level: the registry's own mutex guards only map
// membership and is held briefly, while each ManagedIndex carries its own
// RWMutex guarding the index contents. Lookups copy the entry pointer
// under the registry mutex and lock the entry only after releasing it, so
// a slow scan on one index never holds up operations on another. Access
// to an entry is handed out as read and write leases that hold the
// per-index lock until released.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
)

// ManagedIndex couples an index with the bookkeeping the registry keeps
// for it: identity, placement, creation time and the tombstone set that
// records deletions. Contents are guarded by mu.
type ManagedIndex struct {
	mu sync.RWMutex

	name        string
	idx         index.Index
	backend     gpu.Backend
	created     time.Time
	uid         uuid.UUID
	tombstones  *roaring64.Bitmap
	description string
}

// Info is a point-in-time copy of an index's registry metadata.
type Info struct {
	Name        string      `json:"name"`
	Dim         int         `json:"dim"`
	Count       int64       `json:"count"`
	Deleted     int64       `json:"deleted"`
	Metric      string      `json:"metric"`
	Kind        index.Kind  `json:"kind"`
	Backend     gpu.Backend `json:"backend"`
	UID         uuid.UUID   `json:"uid"`
	Created     time.Time   `json:"created"`
	Description string      `json:"description,omitempty"`
}

// infoLocked snapshots the entry. Callers hold e.mu in either mode.
func (e *ManagedIndex) infoLocked() Info {
	return Info{
		Name:        e.name,
		Dim:         e.idx.Dim(),
		Count:       int64(e.idx.Len()),
		Deleted:     int64(e.tombstones.GetCardinality()),
		Metric:      e.idx.Metric().String(),
		Kind:        e.idx.Kind(),
		Backend:     e.backend,
		UID:         e.uid,
		Created:     e.created,
		Description: e.description,
	}
}

// Registry is a thread-safe name-to-index map. The zero value is not
// usable; call New.
type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*ManagedIndex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{indexes: make(map[string]*ManagedIndex)}
}

// Create registers idx under name with a fresh UUID and an empty
// tombstone set. The backend tag records where the index currently
// lives; description is free-form metadata.
//
// Returns ErrIndexExists if name is already registered.
func (r *Registry) Create(name string, idx index.Index, backend gpu.Backend, description string) error {
	if name == "" || idx == nil {
		return ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.indexes[name]; exists {
		return ErrIndexExists
	}
	r.indexes[name] = &ManagedIndex{
		name:        name,
		idx:         idx,
		backend:     backend,
		created:     time.Now(),
		uid:         uuid.New(),
		tombstones:  roaring64.New(),
		description: description,
	}
	return nil
}

// Destroy removes the index registered under name. The entry's exclusive
// lock is acquired first, so in-flight leases drain before the index
// disappears; the wait happens off the registry mutex and other indexes
// stay reachable throughout.
//
// Returns ErrIndexNotFound if name is not registered.
func (r *Registry) Destroy(name string) error {
	r.mu.RLock()
	entry, exists := r.indexes[name]
	r.mu.RUnlock()
	if !exists {
		return ErrIndexNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexes[name] != entry {
		// A concurrent Destroy won the race while we drained.
		return ErrIndexNotFound
	}
	delete(r.indexes, name)
	return nil
}

// GetRead returns a read lease on name, holding the index's shared lock
// until Release. Returns ErrIndexNotFound if name is not registered.
func (r *Registry) GetRead(name string) (*ReadLease, error) {
	r.mu.RLock()
	entry, exists := r.indexes[name]
	r.mu.RUnlock()
	if !exists {
		return nil, ErrIndexNotFound
	}
	entry.mu.RLock()
	return &ReadLease{entry: entry}, nil
}

// GetWrite returns a write lease on name, holding the index's exclusive
// lock until Release. Returns ErrIndexNotFound if name is not registered.
func (r *Registry) GetWrite(name string) (*WriteLease, error) {
	r.mu.RLock()
	entry, exists := r.indexes[name]
	r.mu.RUnlock()
	if !exists {
		return nil, ErrIndexNotFound
	}
	entry.mu.Lock()
	return &WriteLease{entry: entry}, nil
}

// Replace swaps the index object and backend tag of the entry behind a
// held write lease. The per-index lock and the tombstone set carry over,
// so waiters observe the new index with the old deletion state intact.
// GPU transfers use this to swap a host index for its device wrapper in
// place.
func (*Registry) Replace(lease *WriteLease, idx index.Index, backend gpu.Backend) {
	if lease == nil || idx == nil {
		return
	}
	lease.entry.idx = idx
	lease.entry.backend = backend
}

// List returns a metadata snapshot of every registered index, sorted by
// name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	entries := make([]*ManagedIndex, 0, len(r.indexes))
	for _, e := range r.indexes {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		infos = append(infos, e.infoLocked())
		e.mu.RUnlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Info returns the metadata snapshot for a single index. Returns
// ErrIndexNotFound if name is not registered.
func (r *Registry) Info(name string) (Info, error) {
	r.mu.RLock()
	entry, exists := r.indexes[name]
	r.mu.RUnlock()
	if !exists {
		return Info{}, ErrIndexNotFound
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.infoLocked(), nil
}

// Len returns the number of registered indexes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.indexes)
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexes[name] != nil
}
