package gpu

import (
	"fmt"

	"github.com/orneryd/annex/pkg/index"
)

// vectorSource is satisfied by index kinds that expose their backing
// row-major matrix. All annex index kinds do.
type vectorSource interface {
	Rows() []float32
}

var (
	_ vectorSource = (*index.Flat)(nil)
	_ vectorSource = (*index.HNSW)(nil)
	_ vectorSource = (*index.IVFFlat)(nil)
)

// DeviceIndex wraps a host index with a device-resident copy of its vector
// matrix. The host index stays authoritative: graph structure, inverted
// lists and single-vector reads all come from it, while full-scan distance
// batches can run against the resident matrix through ResidentDistances.
//
// Like the index kinds themselves, a DeviceIndex is not safe for
// concurrent use; the registry's leases serialize access.
type DeviceIndex struct {
	index.Index

	mgr     *Manager
	backend Backend
	handle  uint64
	bytes   int64
}

var _ index.Index = (*DeviceIndex)(nil)

// NewDeviceIndex wraps host for backend without creating a resident copy.
// The accelerator's CpuToGpu is the normal entry point and performs the
// initial upload; a wrapper built directly stays host-only until the next
// Add re-uploads. A nil manager keeps the wrapper host-only for good.
func NewDeviceIndex(host index.Index, mgr *Manager, backend Backend) *DeviceIndex {
	return &DeviceIndex{Index: host, mgr: mgr, backend: backend}
}

// Backend returns the backend the matrix is resident on.
func (d *DeviceIndex) Backend() Backend { return d.backend }

// Host returns the wrapped host index.
func (d *DeviceIndex) Host() index.Index { return d.Index }

// ResidentHandle returns the kernel handle of the uploaded matrix, or zero
// when no copy is currently resident.
func (d *DeviceIndex) ResidentHandle() uint64 { return d.handle }

// Add appends vectors to the host index and re-uploads the matrix. If the
// re-upload fails the resident copy is dropped and searches fall back to
// the host store; the transfer failure itself is not an error.
func (d *DeviceIndex) Add(vectors []float32) (int64, error) {
	first, err := d.Index.Add(vectors)
	if err != nil {
		return first, err
	}
	_ = d.refresh()
	return first, nil
}

// refresh replaces the resident matrix with the host store's current
// contents.
func (d *DeviceIndex) refresh() error {
	d.freeResident()

	if d.Index.Len() == 0 {
		return nil
	}
	if d.mgr == nil || !kernelLoaded() {
		return fmt.Errorf("kernel library not loaded: %w", ErrNotAvailable)
	}
	src, ok := d.Index.(vectorSource)
	if !ok {
		return fmt.Errorf("%w: %s index does not expose its vector matrix", ErrNotAvailable, d.Index.Kind())
	}

	rows := src.Rows()
	bytes := int64(len(rows)) * 4
	if err := d.mgr.reserve(bytes); err != nil {
		return err
	}

	handle := annexGpuUpload(&rows[0], int64(len(rows)))
	if handle == 0 {
		d.mgr.release(bytes)
		return fmt.Errorf("%w: %s", ErrKernelFailed, kernelLastError())
	}

	d.handle = handle
	d.bytes = bytes
	return nil
}

// freeResident releases the uploaded matrix, if any.
func (d *DeviceIndex) freeResident() {
	if d.handle == 0 {
		return
	}
	annexGpuFree(d.handle)
	d.mgr.release(d.bytes)
	d.handle = 0
	d.bytes = 0
}
