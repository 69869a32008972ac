package gpu

import (
	"fmt"

	"github.com/orneryd/annex/pkg/index"
)

// Accelerator abstracts a compute device that can hold index data and
// answer batch distance queries. The Manager selects one implementation at
// probe time; environments without a GPU get the unavailable accelerator.
type Accelerator interface {
	// IsAvailable reports whether the device can be used right now.
	IsAvailable() bool

	// DeviceInfo describes the device. Unavailable accelerators return a
	// descriptive error wrapping ErrNotAvailable.
	DeviceInfo() (DeviceInfo, error)

	// Name returns the backend tag.
	Name() Backend

	// CpuToGpu returns a device-resident form of the host index. The
	// result is fully built before it is returned: on error the host
	// index is untouched.
	CpuToGpu(idx index.Index) (index.Index, error)

	// GpuToCpu returns the host form of a device-resident index and
	// frees its device buffer.
	GpuToCpu(idx index.Index) (index.Index, error)
}

var (
	_ Accelerator = (*native)(nil)
	_ Accelerator = unavailable{}
)

// native drives the annex kernel library.
type native struct {
	mgr     *Manager
	backend Backend
}

func (a *native) Name() Backend { return a.backend }

func (a *native) IsAvailable() bool {
	return kernelLoaded() && backendForCode(annexGpuAvailable()) != BackendNone
}

func (a *native) DeviceInfo() (DeviceInfo, error) {
	if !kernelLoaded() {
		return DeviceInfo{Backend: BackendNone}, fmt.Errorf("kernel library not loaded: %w", ErrNotAvailable)
	}
	return DeviceInfo{
		Name:      kernelDeviceName(),
		Vendor:    vendorFor(a.backend),
		Backend:   a.backend,
		MemoryMB:  annexGpuMemoryMB(),
		Available: true,
	}, nil
}

func (a *native) CpuToGpu(idx index.Index) (index.Index, error) {
	if di, ok := idx.(*DeviceIndex); ok {
		return nil, fmt.Errorf("%w: index is already resident on %s", ErrAlreadyResident, di.Backend())
	}
	if !kernelLoaded() {
		return nil, fmt.Errorf("cannot move index to GPU: %w", ErrNotAvailable)
	}

	di := NewDeviceIndex(idx, a.mgr, a.backend)
	if err := di.refresh(); err != nil {
		return nil, err
	}
	return di, nil
}

func (a *native) GpuToCpu(idx index.Index) (index.Index, error) {
	di, ok := idx.(*DeviceIndex)
	if !ok {
		return nil, fmt.Errorf("%w: index is already resident on %s", ErrAlreadyResident, BackendCPU)
	}
	di.freeResident()
	return di.Host(), nil
}

// unavailable is the accelerator used when no GPU can be driven. Every
// operation that needs a device fails with ErrNotAvailable.
type unavailable struct{}

func (unavailable) Name() Backend     { return BackendNone }
func (unavailable) IsAvailable() bool { return false }

func (unavailable) DeviceInfo() (DeviceInfo, error) {
	return DeviceInfo{Backend: BackendNone}, fmt.Errorf("no GPU device detected: %w", ErrNotAvailable)
}

func (unavailable) CpuToGpu(index.Index) (index.Index, error) {
	return nil, fmt.Errorf("cannot move index to GPU: %w", ErrNotAvailable)
}

func (unavailable) GpuToCpu(index.Index) (index.Index, error) {
	return nil, fmt.Errorf("cannot move index to CPU: %w", ErrNotAvailable)
}
