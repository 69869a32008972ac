//go:build linux || darwin

package gpu

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ebitengine/purego"
)

// kernelSearchPaths returns the library names and directories tried when no
// explicit path is configured.
func kernelSearchPaths() ([]string, []string) {
	var libNames []string
	var searchPaths []string

	switch runtime.GOOS {
	case "darwin":
		libNames = []string{"libannexgpu.dylib"}
		searchPaths = []string{
			"/usr/local/lib",
			"/opt/homebrew/lib",
		}
	default:
		libNames = []string{"libannexgpu.so.1", "libannexgpu.so"}
		searchPaths = []string{
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib64",
			"/usr/lib",
			"/usr/local/lib",
		}
	}

	return libNames, searchPaths
}

// openKernelLibrary loads the kernel library on Unix systems. The explicit
// path (from config or ANNEX_KERNEL_LIB) wins over the standard locations.
func openKernelLibrary(explicit string) (uintptr, error) {
	if explicit == "" {
		explicit = os.Getenv(KernelLibEnv)
	}
	if explicit != "" {
		lib, err := purego.Dlopen(explicit, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			return 0, fmt.Errorf("kernel library %q: %w", explicit, err)
		}
		return lib, nil
	}

	libNames, searchPaths := kernelSearchPaths()

	for _, libName := range libNames {
		// Bare name first: the loader searches LD_LIBRARY_PATH /
		// DYLD_LIBRARY_PATH on its own.
		if lib, err := purego.Dlopen(libName, purego.RTLD_NOW|purego.RTLD_GLOBAL); err == nil {
			return lib, nil
		}

		for _, path := range searchPaths {
			fullPath := filepath.Join(path, libName)
			if _, err := os.Stat(fullPath); err == nil {
				if lib, err := purego.Dlopen(fullPath, purego.RTLD_NOW|purego.RTLD_GLOBAL); err == nil {
					return lib, nil
				}
			}
		}
	}

	return 0, fmt.Errorf("kernel library not found (tried %v in %v; set %s to override)",
		libNames, searchPaths, KernelLibEnv)
}

// registerKernelFunctions binds the kernel's exported symbols.
func registerKernelFunctions(lib uintptr) {
	purego.RegisterLibFunc(&annexGpuAvailable, lib, "annex_gpu_available")
	purego.RegisterLibFunc(&annexGpuDeviceName, lib, "annex_gpu_device_name")
	purego.RegisterLibFunc(&annexGpuMemoryMB, lib, "annex_gpu_memory_mb")
	purego.RegisterLibFunc(&annexGpuBatchDistances, lib, "annex_gpu_batch_distances")
	purego.RegisterLibFunc(&annexGpuUpload, lib, "annex_gpu_upload")
	purego.RegisterLibFunc(&annexGpuFree, lib, "annex_gpu_free")
	purego.RegisterLibFunc(&annexGpuLastError, lib, "annex_gpu_last_error")
}
