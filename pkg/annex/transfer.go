package annex

import (
	"fmt"
	"log"

	"github.com/orneryd/annex/pkg/gpu"
)

// ToGPU uploads the named index's vector matrix to the GPU. The host
// structure stays authoritative; full-scan distance batches run against
// the resident copy. The swap happens under a write lease, so searches
// observe either the host index or the finished device wrapper, never a
// half-built state.
//
// Returns gpu.ErrNotAvailable when no GPU backend is active and
// gpu.ErrAlreadyResident when the index is already on the device.
func (db *DB) ToGPU(name string) error {
	if err := db.checkClosed(); err != nil {
		return err
	}

	wl, err := db.registry.GetWrite(name)
	if err != nil {
		return err
	}
	defer wl.Release()

	moved, err := db.manager.CpuToGpu(wl.Index())
	if err != nil {
		return fmt.Errorf("move %q to gpu: %w", name, err)
	}

	backend := db.manager.Backend()
	if di, ok := moved.(*gpu.DeviceIndex); ok {
		backend = di.Backend()
	}
	db.registry.Replace(wl, moved, backend)
	log.Printf("⚡ index %q resident on %s", name, backend)
	return nil
}

// ToCPU moves the named index back to host memory and frees its device
// buffer. Returns gpu.ErrAlreadyResident when the index is not on a GPU,
// and gpu.ErrNotAvailable when no GPU backend was ever active.
func (db *DB) ToCPU(name string) error {
	if err := db.checkClosed(); err != nil {
		return err
	}

	wl, err := db.registry.GetWrite(name)
	if err != nil {
		return err
	}
	defer wl.Release()

	host, err := db.manager.GpuToCpu(wl.Index())
	if err != nil {
		return fmt.Errorf("move %q to cpu: %w", name, err)
	}
	db.registry.Replace(wl, host, gpu.BackendCPU)
	return nil
}
