package registry

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
)

// ReadLease is a held shared lock on a managed index. Any number of read
// leases can be live at once; they exclude write leases. Release is
// idempotent, and the lease must not be used after it.
//
// A lease taken while a concurrent Destroy drains stays valid until
// released, even though the entry may already be gone from the registry.
type ReadLease struct {
	entry    *ManagedIndex
	released bool
}

// Name returns the index name the lease was taken under.
func (l *ReadLease) Name() string { return l.entry.name }

// Index returns the leased index.
func (l *ReadLease) Index() index.Index { return l.entry.idx }

// Backend returns the backend tag of the leased index.
func (l *ReadLease) Backend() gpu.Backend { return l.entry.backend }

// Tombstones returns the deletion set of the leased index. The set is
// guarded by the lease's lock; mutate it only under a write lease.
func (l *ReadLease) Tombstones() *roaring64.Bitmap { return l.entry.tombstones }

// Release drops the shared lock. Extra calls are no-ops.
func (l *ReadLease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.entry.mu.RUnlock()
}

// WriteLease is a held exclusive lock on a managed index. It excludes all
// other leases. Release is idempotent, and the lease must not be used
// after it.
type WriteLease struct {
	entry    *ManagedIndex
	released bool
}

// Name returns the index name the lease was taken under.
func (l *WriteLease) Name() string { return l.entry.name }

// Index returns the leased index. After a Replace through this lease it
// returns the replacement.
func (l *WriteLease) Index() index.Index { return l.entry.idx }

// Backend returns the backend tag of the leased index.
func (l *WriteLease) Backend() gpu.Backend { return l.entry.backend }

// Tombstones returns the deletion set of the leased index.
func (l *WriteLease) Tombstones() *roaring64.Bitmap { return l.entry.tombstones }

// SetDescription updates the free-form metadata shown by Info.
func (l *WriteLease) SetDescription(desc string) { l.entry.description = desc }

// Release drops the exclusive lock. Extra calls are no-ops.
func (l *WriteLease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.entry.mu.Unlock()
}
