package gpu

import "errors"

// Sentinel errors returned by the GPU capability backend. Callers should
// match with errors.Is; most failures wrap one of these with context.
var (
	// ErrNotAvailable indicates no usable GPU: the kernel library could not
	// be loaded, it reports no device, or the manager is disabled.
	ErrNotAvailable = errors.New("gpu: no compatible GPU available")

	// ErrAlreadyResident indicates a transfer that would be a no-op: moving
	// a GPU-resident index to the GPU, or a host index to the CPU.
	ErrAlreadyResident = errors.New("gpu: index already resident on the requested backend")

	// ErrKernelFailed indicates the native kernel reported an execution
	// failure. The dispatcher treats this as a silent CPU fallback.
	ErrKernelFailed = errors.New("gpu: kernel execution failed")

	// ErrOutOfMemory indicates a transfer would exceed the configured
	// device memory budget.
	ErrOutOfMemory = errors.New("gpu: insufficient GPU memory")

	// ErrInvalidDimensions indicates mismatched buffer lengths in a batch
	// distance call.
	ErrInvalidDimensions = errors.New("gpu: invalid batch dimensions")
)
