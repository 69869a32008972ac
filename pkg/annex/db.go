// Package annex provides the main API for embedded annex usage.
//
// annex is an approximate-nearest-neighbor search core: named vector
// indexes (Flat, HNSW, IVFFlat) live in a process-wide registry, queries
// run through a search engine that batches distance work, and each batch
// is dispatched to the best available compute tier (GPU kernel, SIMD CPU
// kernels, scalar fallback). Vectors arrive pre-computed; annex stores,
// indexes and searches them.
//
// Key properties:
//   - Dense sequential int64 IDs per index, assigned on Add
//   - Deletion via tombstones: Delete never rewrites an index
//   - GPU placement is explicit (ToGPU/ToCPU) and always optional;
//     every GPU failure falls back to the CPU kernels silently
//   - All methods are safe for concurrent use
//
// Example:
//
//	db, err := annex.Open(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.CreateIndex("docs", annex.CreateOptions{Dim: 128, Kind: index.KindHNSW})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	total, _ := db.Add("docs", embeddings)
//	hits, _ := db.Search("docs", query, 10)
//	for _, h := range hits {
//		fmt.Printf("id=%d distance=%.4f\n", h.ID, h.Distance)
//	}
package annex

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
	"github.com/orneryd/annex/pkg/registry"
	"github.com/orneryd/annex/pkg/search"
	"github.com/orneryd/annex/pkg/simd"
)

// Errors returned by DB operations.
var (
	ErrClosed       = errors.New("database is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Config holds annex database configuration.
type Config struct {
	// GPU controls the capability backend. Nil keeps GPU usage disabled;
	// see gpu.Config for enabling it.
	GPU *gpu.Config `yaml:"gpu"`

	// BatchWorkers bounds SearchBatch parallelism. Zero means one worker
	// per CPU.
	BatchWorkers int `yaml:"batch_workers"`
}

// DefaultConfig returns the default configuration: GPU disabled, batch
// workers sized to the CPU count.
func DefaultConfig() *Config {
	return &Config{
		GPU:          gpu.DefaultConfig(),
		BatchWorkers: 0,
	}
}

// DB is an annex database instance: a registry of named vector indexes
// plus the engine and capability backend queries run through.
//
// All methods are safe for concurrent use. Writes to one index never
// block reads on another.
type DB struct {
	config *Config
	mu     sync.RWMutex
	closed bool

	registry *registry.Registry
	manager  *gpu.Manager
	engine   *search.Engine
	workers  int
}

// Open creates a database instance. A nil config uses DefaultConfig.
//
// When cfg.GPU enables acceleration, the native kernel library is probed
// here; with FallbackOnError set (the default) a failed probe degrades to
// CPU-only operation instead of failing Open.
func Open(cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	mgr, err := gpu.NewManager(cfg.GPU)
	if err != nil {
		return nil, fmt.Errorf("gpu init: %w", err)
	}

	workers := cfg.BatchWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	db := &DB{
		config:   cfg,
		registry: registry.New(),
		manager:  mgr,
		engine:   search.NewEngine(mgr),
		workers:  workers,
	}

	if dev := mgr.Device(); dev != nil {
		log.Printf("⚡ GPU acceleration active: %s (%s, %d MB)", dev.Name, dev.Backend, dev.MemoryMB)
	} else {
		log.Printf("🔍 annex open (cpu kernels: %s)", simd.Info().Implementation)
	}
	return db, nil
}

// Close shuts the database down. Device-resident indexes are moved back
// to host memory so their kernel buffers are freed. Close is idempotent.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	for _, info := range db.registry.List() {
		wl, err := db.registry.GetWrite(info.Name)
		if err != nil {
			continue
		}
		if di, ok := wl.Index().(*gpu.DeviceIndex); ok {
			if host, err := db.manager.GpuToCpu(di); err == nil {
				db.registry.Replace(wl, host, gpu.BackendCPU)
			}
		}
		wl.Release()
	}

	db.manager.Disable()
	return nil
}

// checkClosed returns ErrClosed once Close has run.
func (db *DB) checkClosed() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

// GPUStats returns the capability backend's usage counters.
func (db *DB) GPUStats() gpu.Stats {
	return db.manager.Stats()
}

// GPUInfo returns the detected GPU device and whether one is available.
func (db *DB) GPUInfo() (gpu.DeviceInfo, bool) {
	dev := db.manager.Device()
	if dev == nil {
		return gpu.DeviceInfo{}, false
	}
	return *dev, true
}

// hostIndex unwraps a device-resident index to its host structure.
func hostIndex(idx index.Index) index.Index {
	if di, ok := idx.(*gpu.DeviceIndex); ok {
		return di.Host()
	}
	return idx
}
