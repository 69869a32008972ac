package search

import (
	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
	"github.com/orneryd/annex/pkg/simd"
)

// MinGPUWork is the total work size (rows times dimension) below which a
// batch stays on the CPU. Under this threshold the transfer overhead
// dominates the kernel time; at or above it the GPU path is tried first.
const MinGPUWork = 49152

// BatchDistances computes the distance from query to each of n row-major
// candidate rows, writing n values into out.
//
// Batches of at least MinGPUWork total work are offered to the GPU first;
// any GPU failure falls back to the vectorized CPU kernels without
// surfacing an error, counting against the manager's FallbackCount. A nil
// or disabled manager keeps everything on the CPU. No batch shape ever
// fails: the scalar loop inside the generic kernels is the floor.
//
// Metric encoding matches the native kernel: MetricL2 writes squared
// distances (no square root), MetricIP writes negated dot products, so
// smaller always means closer.
func BatchDistances(mgr *gpu.Manager, query, candidates []float32, n, dim int, metric index.Metric, out []float32) {
	if n == 0 || dim == 0 {
		return
	}

	if n*dim >= MinGPUWork && mgr.IsEnabled() {
		if err := mgr.BatchDistances(query, candidates, n, dim, metric, out); err == nil {
			return
		}
		mgr.RecordFallback()
	}

	mgr.RecordCPU()
	cpuBatchDistances(query, candidates, metric, out[:n])
}

// ResidentDistances computes distances against a device-resident matrix,
// falling back to the host rows when the resident path cannot run. The
// MinGPUWork gate does not apply: the candidate transfer is already paid
// for, so any resident batch is worth dispatching.
func ResidentDistances(mgr *gpu.Manager, query []float32, handle uint64, hostRows []float32, n, dim int, metric index.Metric, out []float32) {
	if n == 0 || dim == 0 {
		return
	}

	if handle != 0 && mgr.IsEnabled() {
		if err := mgr.ResidentDistances(query, handle, n, dim, metric, out); err == nil {
			return
		}
		mgr.RecordFallback()
	}

	mgr.RecordCPU()
	cpuBatchDistances(query, hostRows, metric, out[:n])
}

// cpuBatchDistances runs the vectorized CPU kernels for one batch.
func cpuBatchDistances(query, candidates []float32, metric index.Metric, out []float32) {
	switch metric {
	case index.MetricIP:
		simd.BatchDotProduct(candidates, query, out)
		for i := range out {
			out[i] = -out[i]
		}
	default:
		simd.BatchSquaredDistance(candidates, query, out)
	}
}
