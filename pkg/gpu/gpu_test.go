package gpu

import (
	"errors"
	"testing"

	"github.com/orneryd/annex/pkg/index"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Enabled {
		t.Error("GPU should be disabled by default")
	}
	if config.PreferredBackend != BackendNone {
		t.Error("preferred backend should be none by default")
	}
	if config.MaxMemoryMB != 0 {
		t.Errorf("expected no memory cap by default, got %d", config.MaxMemoryMB)
	}
	if !config.FallbackOnError {
		t.Error("fallback on error should be true by default")
	}
}

func TestNewManager(t *testing.T) {
	t.Run("nil config is disabled", func(t *testing.T) {
		m, err := NewManager(nil)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if m.IsEnabled() {
			t.Error("should be disabled by default")
		}
	})

	t.Run("with config disabled", func(t *testing.T) {
		m, err := NewManager(&Config{Enabled: false})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if m.IsEnabled() {
			t.Error("should be disabled")
		}
	})

	t.Run("enabled with fallback", func(t *testing.T) {
		m, err := NewManager(&Config{Enabled: true, FallbackOnError: true})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		// Either a kernel library was found and the manager came up, or
		// it degraded to CPU-only. Both are valid here.
		if m.IsEnabled() {
			if m.Device() == nil {
				t.Error("enabled manager should have a device")
			}
		} else if m.Backend() != BackendCPU {
			t.Errorf("disabled manager should report %s, got %s", BackendCPU, m.Backend())
		}
	})

	t.Run("enabled without fallback", func(t *testing.T) {
		m, err := NewManager(&Config{Enabled: true, FallbackOnError: false})
		if err != nil {
			if !errors.Is(err, ErrNotAvailable) {
				t.Errorf("probe failure should wrap ErrNotAvailable, got %v", err)
			}
			return
		}
		// Only reached on machines with the kernel library installed.
		if !m.IsEnabled() {
			t.Error("manager should be enabled when probing succeeded")
		}
	})
}

func TestManagerEnableDisable(t *testing.T) {
	m, _ := NewManager(nil)

	if m.IsEnabled() {
		t.Error("should start disabled")
	}

	err := m.Enable()
	if err == nil {
		// Only passes on machines with the kernel library.
		m.Disable()
		if m.IsEnabled() {
			t.Error("should be disabled after Disable()")
		}
	} else if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Enable() without a GPU should wrap ErrNotAvailable, got %v", err)
	}

	// Disable is safe to call when already disabled.
	m.Disable()
	if m.IsEnabled() {
		t.Error("should remain disabled")
	}
}

func TestManagerDevice(t *testing.T) {
	m, _ := NewManager(nil)

	if dev := m.Device(); dev != nil {
		t.Errorf("Device() should return nil when no GPU, got %+v", dev)
	}
}

func TestManagerBackend(t *testing.T) {
	m, _ := NewManager(nil)

	if b := m.Backend(); b != BackendCPU {
		t.Errorf("disabled manager backend = %s, want %s", b, BackendCPU)
	}
}

func TestManagerStats(t *testing.T) {
	m, _ := NewManager(nil)

	stats := m.Stats()
	if stats.OperationsGPU != 0 || stats.OperationsCPU != 0 || stats.FallbackCount != 0 {
		t.Errorf("initial stats should be zero, got %+v", stats)
	}
	if stats.AverageKernelTimeNs != 0 {
		t.Error("average kernel time should be zero with no executions")
	}

	m.RecordCPU()
	m.RecordCPU()
	m.RecordFallback()

	stats = m.Stats()
	if stats.OperationsCPU != 2 {
		t.Errorf("OperationsCPU = %d, want 2", stats.OperationsCPU)
	}
	if stats.FallbackCount != 1 {
		t.Errorf("FallbackCount = %d, want 1", stats.FallbackCount)
	}
}

func TestManagerAllocatedMemory(t *testing.T) {
	m, _ := NewManager(nil)

	if m.AllocatedMemoryMB() != 0 {
		t.Error("initial allocated memory should be 0")
	}
}

func TestManagerNil(t *testing.T) {
	var m *Manager

	if m.IsEnabled() {
		t.Error("nil manager should report disabled")
	}
	if m.Device() != nil {
		t.Error("nil manager should have no device")
	}
	if b := m.Backend(); b != BackendCPU {
		t.Errorf("nil manager backend = %s, want %s", b, BackendCPU)
	}
	if s := m.Stats(); s != (Stats{}) {
		t.Errorf("nil manager stats = %+v, want zero", s)
	}
	if m.AllocatedMemoryMB() != 0 {
		t.Error("nil manager allocated memory should be 0")
	}

	// Recording against a nil manager is a no-op, not a panic: the
	// dispatcher runs with a nil manager when no GPU was configured.
	m.RecordCPU()
	m.RecordFallback()

	out := make([]float32, 1)
	err := m.BatchDistances([]float32{1, 2}, []float32{3, 4}, 1, 2, index.MetricL2, out)
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("nil manager BatchDistances = %v, want ErrNotAvailable", err)
	}
}

func TestManagerBatchDistancesDisabled(t *testing.T) {
	m, _ := NewManager(nil)

	out := make([]float32, 2)
	err := m.BatchDistances([]float32{1, 0}, []float32{0, 1, 1, 0}, 2, 2, index.MetricL2, out)
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("disabled manager BatchDistances = %v, want ErrNotAvailable", err)
	}

	err = m.ResidentDistances([]float32{1, 0}, 7, 2, 2, index.MetricL2, out)
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("disabled manager ResidentDistances = %v, want ErrNotAvailable", err)
	}
}

func TestManagerTransfersDisabled(t *testing.T) {
	m, _ := NewManager(nil)
	flat := mustFlat(t, 2, []float32{1, 2, 3, 4})

	if _, err := m.CpuToGpu(flat); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("CpuToGpu = %v, want ErrNotAvailable", err)
	}
	if _, err := m.GpuToCpu(flat); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("GpuToCpu = %v, want ErrNotAvailable", err)
	}
}

func TestUnavailableAccelerator(t *testing.T) {
	var a Accelerator = unavailable{}

	if a.IsAvailable() {
		t.Error("unavailable accelerator should not be available")
	}
	if a.Name() != BackendNone {
		t.Errorf("Name() = %s, want %s", a.Name(), BackendNone)
	}

	info, err := a.DeviceInfo()
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("DeviceInfo() error = %v, want ErrNotAvailable", err)
	}
	if info.Available {
		t.Error("device info should not report available")
	}
	if info.Backend != BackendNone {
		t.Errorf("device backend = %s, want %s", info.Backend, BackendNone)
	}

	flat := mustFlat(t, 2, []float32{1, 2})
	if _, err := a.CpuToGpu(flat); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("CpuToGpu error = %v, want ErrNotAvailable", err)
	}
	if _, err := a.GpuToCpu(flat); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("GpuToCpu error = %v, want ErrNotAvailable", err)
	}
}

func TestBackendForCode(t *testing.T) {
	cases := []struct {
		code int32
		want Backend
	}{
		{kernelBackendNone, BackendNone},
		{kernelBackendMetal, BackendMetal},
		{kernelBackendCUDA, BackendCUDA},
		{kernelBackendVulkan, BackendVulkan},
		{99, BackendNone},
	}
	for _, tc := range cases {
		if got := backendForCode(tc.code); got != tc.want {
			t.Errorf("backendForCode(%d) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

// mustFlat builds a small flat index for transfer tests.
func mustFlat(t *testing.T, dim int, vectors []float32) *index.Flat {
	t.Helper()
	flat, err := index.NewFlat(dim, index.MetricL2)
	if err != nil {
		t.Fatalf("NewFlat() error = %v", err)
	}
	if len(vectors) > 0 {
		if _, err := flat.Add(vectors); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	return flat
}
