package gpu

import (
	"sync"
)

// KernelLibEnv names the environment variable that overrides the kernel
// library search. When set, its value is loaded directly and the standard
// locations are not tried.
const KernelLibEnv = "ANNEX_KERNEL_LIB"

// Backend identifiers reported by annex_gpu_available. Zero means the
// library loaded but found no usable device.
const (
	kernelBackendNone   int32 = 0
	kernelBackendMetal  int32 = 1
	kernelBackendCUDA   int32 = 2
	kernelBackendVulkan int32 = 3
)

// Function pointers into the native kernel library, registered by
// loadKernel. They stay nil until the library is loaded; every caller must
// check kernelLoaded first.
var (
	kernelLib uintptr
	kernelMu  sync.Mutex
	kernelErr error

	// annexGpuAvailable probes for a usable device. Returns one of the
	// kernelBackend* codes.
	annexGpuAvailable func() int32

	// annexGpuDeviceName writes the device description into buf and
	// returns its length, or a negative value on failure.
	annexGpuDeviceName func(buf *byte, bufLen int32) int32

	// annexGpuMemoryMB returns the device memory size in megabytes.
	annexGpuMemoryMB func() int64

	// annexGpuBatchDistances computes distances from one query row to n
	// candidate rows. When resident is nonzero the candidate pointer is
	// ignored and the uploaded matrix with that handle is used instead.
	// Metric encoding: 0 = squared L2, 1 = negated inner product. Returns
	// zero on success; annexGpuLastError describes nonzero codes.
	annexGpuBatchDistances func(query, candidates *float32, resident uint64, n, dim, metric int32, out *float32) int32

	// annexGpuUpload copies count floats to device memory and returns a
	// matrix handle, or zero on failure.
	annexGpuUpload func(data *float32, count int64) uint64

	// annexGpuFree releases an uploaded matrix.
	annexGpuFree func(handle uint64)

	// annexGpuLastError writes the most recent failure message into buf
	// and returns its length.
	annexGpuLastError func(buf *byte, bufLen int32) int32
)

// loadKernel loads the native kernel library and registers its symbols.
// The first failure is cached: later calls return the same error without
// touching the filesystem again.
func loadKernel(explicit string) error {
	kernelMu.Lock()
	defer kernelMu.Unlock()

	if kernelLib != 0 {
		return nil
	}
	if kernelErr != nil {
		return kernelErr
	}

	lib, err := openKernelLibrary(explicit)
	if err != nil {
		kernelErr = err
		return err
	}
	kernelLib = lib

	registerKernelFunctions(lib)
	return nil
}

// kernelLoaded reports whether the kernel library has been loaded.
func kernelLoaded() bool {
	kernelMu.Lock()
	defer kernelMu.Unlock()
	return kernelLib != 0
}

// kernelDeviceName returns the device description reported by the kernel
// library, or an empty string when it cannot be read.
func kernelDeviceName() string {
	buf := make([]byte, 256)
	n := annexGpuDeviceName(&buf[0], int32(len(buf)))
	if n <= 0 {
		return ""
	}
	if int(n) > len(buf) {
		n = int32(len(buf))
	}
	return string(buf[:n])
}

// kernelLastError returns the kernel library's most recent failure message.
func kernelLastError() string {
	buf := make([]byte, 512)
	n := annexGpuLastError(&buf[0], int32(len(buf)))
	if n <= 0 {
		return "unknown kernel error"
	}
	if int(n) > len(buf) {
		n = int32(len(buf))
	}
	return string(buf[:n])
}
