//go:build windows

package gpu

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/ebitengine/purego"
)

// kernelSearchPaths returns the library names and directories tried when no
// explicit path is configured.
func kernelSearchPaths() ([]string, []string) {
	libNames := []string{"annexgpu.dll"}
	searchPaths := []string{
		// Empty entry: let Windows search PATH and the system directories.
		"",
		filepath.Join(os.Getenv("SystemRoot"), "System32"),
	}
	return libNames, searchPaths
}

// openKernelLibrary loads the kernel library on Windows.
func openKernelLibrary(explicit string) (uintptr, error) {
	if explicit == "" {
		explicit = os.Getenv(KernelLibEnv)
	}
	if explicit != "" {
		lib, err := syscall.LoadDLL(explicit)
		if err != nil {
			return 0, fmt.Errorf("kernel library %q: %w", explicit, err)
		}
		return uintptr(lib.Handle), nil
	}

	libNames, searchPaths := kernelSearchPaths()

	for _, libName := range libNames {
		if lib, err := syscall.LoadDLL(libName); err == nil {
			return uintptr(lib.Handle), nil
		}

		for _, path := range searchPaths {
			if path == "" {
				continue
			}
			fullPath := filepath.Join(path, libName)
			if _, err := os.Stat(fullPath); err == nil {
				if lib, err := syscall.LoadDLL(fullPath); err == nil {
					return uintptr(lib.Handle), nil
				}
			}
		}
	}

	return 0, fmt.Errorf("kernel library not found (tried %v; set %s to override)",
		libNames, KernelLibEnv)
}

// getProcAddress resolves a symbol in the loaded DLL.
func getProcAddress(lib uintptr, name string) uintptr {
	dll := &syscall.DLL{Handle: syscall.Handle(lib)}
	proc, err := dll.FindProc(name)
	if err != nil {
		return 0
	}
	return proc.Addr()
}

// registerKernelFunctions binds the kernel's exported symbols. Windows has
// no dlsym, so addresses come from GetProcAddress.
func registerKernelFunctions(lib uintptr) {
	purego.RegisterFunc(&annexGpuAvailable, getProcAddress(lib, "annex_gpu_available"))
	purego.RegisterFunc(&annexGpuDeviceName, getProcAddress(lib, "annex_gpu_device_name"))
	purego.RegisterFunc(&annexGpuMemoryMB, getProcAddress(lib, "annex_gpu_memory_mb"))
	purego.RegisterFunc(&annexGpuBatchDistances, getProcAddress(lib, "annex_gpu_batch_distances"))
	purego.RegisterFunc(&annexGpuUpload, getProcAddress(lib, "annex_gpu_upload"))
	purego.RegisterFunc(&annexGpuFree, getProcAddress(lib, "annex_gpu_free"))
	purego.RegisterFunc(&annexGpuLastError, getProcAddress(lib, "annex_gpu_last_error"))
}
