// Package gpu provides the optional GPU capability backend for annex.
//
// A Manager owns the detected accelerator and the runtime enable toggle.
// Distance work is submitted through BatchDistances and ResidentDistances;
// the search dispatcher decides when a batch is large enough to be worth
// the trip and falls back to the CPU kernels when the GPU path is missing
// or fails, so a search never surfaces a GPU error.
//
// The native kernel library (libannexgpu) is loaded at runtime with
// ebitengine/purego, so building annex never requires a CGO toolchain.
// The library exports a small C surface:
//
//	annex_gpu_available        availability probe, reports the driving backend
//	annex_gpu_device_name      device description
//	annex_gpu_memory_mb        device memory size
//	annex_gpu_batch_distances  one query row against n candidate rows
//	annex_gpu_upload           make a vector matrix resident, returns a handle
//	annex_gpu_free             release a resident matrix
//	annex_gpu_last_error       message for the most recent failure
//
// Without the library, or without a usable device behind it, the package
// degrades to an unavailable accelerator: IsAvailable reports false and
// transfers return errors wrapping ErrNotAvailable. Searches keep working
// on the CPU tiers.
//
// Example:
//
//	mgr, err := gpu.NewManager(&gpu.Config{Enabled: true, FallbackOnError: true})
//	if err != nil {
//		return err
//	}
//	if mgr.IsEnabled() {
//		moved, err := mgr.CpuToGpu(idx) // built fully before any registry swap
//		...
//	}
package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orneryd/annex/pkg/index"
)

// Backend identifies where an index's distance work runs.
type Backend string

const (
	// BackendCPU marks host-resident indexes served by the SIMD kernels.
	BackendCPU Backend = "cpu"
	// BackendMetal is Apple Metal (macOS).
	BackendMetal Backend = "metal"
	// BackendCUDA is NVIDIA CUDA.
	BackendCUDA Backend = "cuda"
	// BackendVulkan is Vulkan Compute (cross-platform).
	BackendVulkan Backend = "vulkan"
	// BackendNone means no accelerator is present or selected.
	BackendNone Backend = "none"
)

// backendForCode maps an annex_gpu_available code to a Backend tag.
func backendForCode(code int32) Backend {
	switch code {
	case kernelBackendMetal:
		return BackendMetal
	case kernelBackendCUDA:
		return BackendCUDA
	case kernelBackendVulkan:
		return BackendVulkan
	default:
		return BackendNone
	}
}

// vendorFor guesses the device vendor from the driving backend.
func vendorFor(backend Backend) string {
	switch backend {
	case BackendMetal:
		return "Apple"
	case BackendCUDA:
		return "NVIDIA"
	default:
		return ""
	}
}

// DeviceInfo describes a detected GPU device.
type DeviceInfo struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Vendor       string  `json:"vendor"`
	Backend      Backend `json:"backend"`
	MemoryMB     int64   `json:"memory_mb"`
	ComputeUnits int     `json:"compute_units,omitempty"` // zero when the kernel library does not report it
	MaxWorkGroup int     `json:"max_work_group,omitempty"`
	Available    bool    `json:"available"`
}

// Config controls GPU detection and memory limits.
type Config struct {
	// Enabled turns GPU detection on. Off by default: annex is fully
	// functional on the CPU tiers alone.
	Enabled bool `yaml:"enabled"`

	// PreferredBackend rejects the kernel library when it drives a
	// different backend. BackendNone accepts whatever is found.
	PreferredBackend Backend `yaml:"preferred_backend"`

	// KernelLib is an explicit path to the native kernel library. Empty
	// means the ANNEX_KERNEL_LIB variable, then the standard locations.
	KernelLib string `yaml:"kernel_lib"`

	// MaxMemoryMB caps the total size of resident matrices. Zero means
	// no cap.
	MaxMemoryMB int64 `yaml:"max_memory_mb"`

	// FallbackOnError makes NewManager return a CPU-only manager instead
	// of an error when detection fails.
	FallbackOnError bool `yaml:"fallback_on_error"`
}

// DefaultConfig returns the default GPU configuration: disabled, accepting
// any backend, graceful fallback.
func DefaultConfig() *Config {
	return &Config{
		Enabled:          false,
		PreferredBackend: BackendNone,
		MaxMemoryMB:      0,
		FallbackOnError:  true,
	}
}

// Stats is a snapshot of the manager's operation counters.
type Stats struct {
	OperationsGPU       int64 `json:"operations_gpu"`
	OperationsCPU       int64 `json:"operations_cpu"`
	BytesTransferred    int64 `json:"bytes_transferred"`
	KernelExecutions    int64 `json:"kernel_executions"`
	FallbackCount       int64 `json:"fallback_count"`
	AverageKernelTimeNs int64 `json:"average_kernel_time_ns"`
}

// managerStats holds the live counters. Fields are touched only through
// the atomic package.
type managerStats struct {
	operationsGPU    int64
	operationsCPU    int64
	bytesTransferred int64
	kernelExecutions int64
	fallbackCount    int64
	kernelTimeNs     int64
}

// Manager owns the selected accelerator and tracks GPU usage. A nil
// Manager is valid for the read paths the dispatcher uses and behaves as
// permanently unavailable.
type Manager struct {
	mu          sync.RWMutex
	config      *Config
	accel       Accelerator
	device      *DeviceInfo
	allocatedMB int64

	enabled atomic.Bool
	stats   managerStats
}

// NewManager creates a GPU manager. With Enabled set it probes for the
// kernel library and a usable device; a probe failure either degrades to a
// CPU-only manager (FallbackOnError) or is returned.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Manager{
		config: config,
		accel:  unavailable{},
	}

	if !config.Enabled {
		return m, nil
	}

	if err := m.Enable(); err != nil {
		if config.FallbackOnError {
			return m, nil
		}
		return nil, err
	}
	return m, nil
}

// probe loads the kernel library and asks it for a device.
func (m *Manager) probe() (Accelerator, error) {
	if err := loadKernel(m.config.KernelLib); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}

	backend := backendForCode(annexGpuAvailable())
	if backend == BackendNone {
		return nil, fmt.Errorf("%w: kernel library loaded but reports no usable device", ErrNotAvailable)
	}
	if pref := m.config.PreferredBackend; pref != BackendNone && pref != backend {
		return nil, fmt.Errorf("%w: kernel library drives %s, preferred backend is %s",
			ErrNotAvailable, backend, pref)
	}

	return &native{mgr: m, backend: backend}, nil
}

// Enable probes for a GPU and turns the manager on. Calling Enable on an
// already-enabled manager is a no-op.
func (m *Manager) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled.Load() {
		return nil
	}

	accel, err := m.probe()
	if err != nil {
		return err
	}
	info, err := accel.DeviceInfo()
	if err != nil {
		return err
	}

	m.accel = accel
	m.device = &info
	m.enabled.Store(true)
	return nil
}

// Disable turns the GPU path off. Resident indexes keep their device
// buffers; searches on them go through the host store until re-enabled.
func (m *Manager) Disable() {
	m.enabled.Store(false)
}

// IsEnabled reports whether the GPU path is active.
func (m *Manager) IsEnabled() bool {
	return m != nil && m.enabled.Load()
}

// Device returns the detected device, or nil when none was found.
func (m *Manager) Device() *DeviceInfo {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// Backend returns the tag new indexes are created under: the device
// backend when enabled, BackendCPU otherwise.
func (m *Manager) Backend() Backend {
	if !m.IsEnabled() {
		return BackendCPU
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.device == nil {
		return BackendCPU
	}
	return m.device.Backend
}

// Accelerator returns the active accelerator. Never nil: a manager without
// a GPU holds the unavailable accelerator.
func (m *Manager) Accelerator() Accelerator {
	if m == nil {
		return unavailable{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.accel == nil {
		return unavailable{}
	}
	return m.accel
}

// Stats returns a snapshot of the operation counters.
func (m *Manager) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	execs := atomic.LoadInt64(&m.stats.kernelExecutions)
	var avg int64
	if execs > 0 {
		avg = atomic.LoadInt64(&m.stats.kernelTimeNs) / execs
	}
	return Stats{
		OperationsGPU:       atomic.LoadInt64(&m.stats.operationsGPU),
		OperationsCPU:       atomic.LoadInt64(&m.stats.operationsCPU),
		BytesTransferred:    atomic.LoadInt64(&m.stats.bytesTransferred),
		KernelExecutions:    execs,
		FallbackCount:       atomic.LoadInt64(&m.stats.fallbackCount),
		AverageKernelTimeNs: avg,
	}
}

// AllocatedMemoryMB returns the total size of resident matrices.
func (m *Manager) AllocatedMemoryMB() int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocatedMB
}

// RecordCPU counts a batch served by the CPU kernels.
func (m *Manager) RecordCPU() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.stats.operationsCPU, 1)
}

// RecordFallback counts a batch that was routed to the GPU and fell back.
func (m *Manager) RecordFallback() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.stats.fallbackCount, 1)
}

// BatchDistances computes distances from query to n row-major candidate
// rows on the GPU. It returns an error when the GPU path is unavailable or
// the kernel fails; the caller decides whether to fall back.
func (m *Manager) BatchDistances(query, candidates []float32, n, dim int, metric index.Metric, out []float32) error {
	if !m.IsEnabled() {
		return ErrNotAvailable
	}
	if n == 0 {
		return nil
	}
	if dim <= 0 || len(query) != dim || len(candidates) != n*dim || len(out) != n {
		return fmt.Errorf("%w: query %d, candidates %d, out %d for n=%d dim=%d",
			ErrInvalidDimensions, len(query), len(candidates), len(out), n, dim)
	}

	start := time.Now()
	rc := annexGpuBatchDistances(&query[0], &candidates[0], 0, int32(n), int32(dim), int32(metric), &out[0])
	if rc != 0 {
		return fmt.Errorf("%w: %s (code %d)", ErrKernelFailed, kernelLastError(), rc)
	}

	atomic.AddInt64(&m.stats.kernelTimeNs, time.Since(start).Nanoseconds())
	atomic.AddInt64(&m.stats.kernelExecutions, 1)
	atomic.AddInt64(&m.stats.operationsGPU, 1)
	atomic.AddInt64(&m.stats.bytesTransferred, int64(len(query)+len(candidates)+len(out))*4)
	return nil
}

// ResidentDistances computes distances from query to the n rows of an
// uploaded matrix, avoiding the per-call candidate transfer.
func (m *Manager) ResidentDistances(query []float32, handle uint64, n, dim int, metric index.Metric, out []float32) error {
	if !m.IsEnabled() {
		return ErrNotAvailable
	}
	if handle == 0 {
		return fmt.Errorf("%w: no resident matrix", ErrNotAvailable)
	}
	if n == 0 {
		return nil
	}
	if dim <= 0 || len(query) != dim || len(out) != n {
		return fmt.Errorf("%w: query %d, out %d for n=%d dim=%d",
			ErrInvalidDimensions, len(query), len(out), n, dim)
	}

	start := time.Now()
	rc := annexGpuBatchDistances(&query[0], nil, handle, int32(n), int32(dim), int32(metric), &out[0])
	if rc != 0 {
		return fmt.Errorf("%w: %s (code %d)", ErrKernelFailed, kernelLastError(), rc)
	}

	atomic.AddInt64(&m.stats.kernelTimeNs, time.Since(start).Nanoseconds())
	atomic.AddInt64(&m.stats.kernelExecutions, 1)
	atomic.AddInt64(&m.stats.operationsGPU, 1)
	atomic.AddInt64(&m.stats.bytesTransferred, int64(len(query)+len(out))*4)
	return nil
}

// CpuToGpu moves a host index onto the device. The returned index is fully
// built before it is handed back; on any error the original index is
// untouched, so callers can swap registry entries without a partial state.
func (m *Manager) CpuToGpu(idx index.Index) (index.Index, error) {
	if !m.IsEnabled() {
		return nil, fmt.Errorf("cannot move index to GPU: %w", ErrNotAvailable)
	}
	return m.Accelerator().CpuToGpu(idx)
}

// GpuToCpu moves a device-resident index back to the host and frees its
// device buffer. Works even after Disable so resident memory can always be
// reclaimed.
func (m *Manager) GpuToCpu(idx index.Index) (index.Index, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot move index to CPU: %w", ErrNotAvailable)
	}
	return m.Accelerator().GpuToCpu(idx)
}

// reserve accounts for bytes of device memory, enforcing MaxMemoryMB.
func (m *Manager) reserve(bytes int64) error {
	mb := (bytes + (1 << 20) - 1) >> 20
	m.mu.Lock()
	defer m.mu.Unlock()
	if max := m.config.MaxMemoryMB; max > 0 && m.allocatedMB+mb > max {
		return fmt.Errorf("%w: transfer needs %d MB, %d of %d MB in use",
			ErrOutOfMemory, mb, m.allocatedMB, max)
	}
	m.allocatedMB += mb
	atomic.AddInt64(&m.stats.bytesTransferred, bytes)
	return nil
}

// release returns reserved device memory.
func (m *Manager) release(bytes int64) {
	mb := (bytes + (1 << 20) - 1) >> 20
	m.mu.Lock()
	m.allocatedMB -= mb
	m.mu.Unlock()
}
