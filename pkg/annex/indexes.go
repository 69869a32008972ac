package annex

import (
	"fmt"
	"log"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
	"github.com/orneryd/annex/pkg/registry"
)

// CreateOptions configures a new index. Only Dim is required; zero fields
// take the package defaults.
type CreateOptions struct {
	// Dim is the vector dimensionality. Required.
	Dim int

	// Kind selects the index layout. Empty means Flat.
	Kind index.Kind

	// Metric selects the distance metric. The zero value is L2.
	Metric index.Metric

	// M is the HNSW graph degree. Zero means index.DefaultM.
	M int

	// EfConstruction is the HNSW build beam width. Zero means
	// index.DefaultEfConstruction.
	EfConstruction int

	// NList is the IVFFlat coarse quantizer size. Zero means
	// index.DefaultNList.
	NList int

	// NProbe is the IVFFlat probe default. Zero means index.DefaultNProbe.
	NProbe int

	// Description is free-form metadata shown by IndexInfo.
	Description string
}

// CreateIndex creates an empty index registered under name.
//
// Returns ErrInvalidInput for a missing name, non-positive dimension or
// unknown kind, and registry.ErrIndexExists for a duplicate name.
func (db *DB) CreateIndex(name string, opts CreateOptions) error {
	if err := db.checkClosed(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty index name", ErrInvalidInput)
	}
	if opts.Dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidInput, opts.Dim)
	}

	kind := opts.Kind
	if kind == "" {
		kind = index.KindFlat
	}

	var (
		idx index.Index
		err error
	)
	switch kind {
	case index.KindFlat:
		idx, err = index.NewFlat(opts.Dim, opts.Metric)
	case index.KindHNSW:
		idx, err = index.NewHNSW(opts.Dim, opts.Metric, index.HNSWOptions{
			M:              opts.M,
			EfConstruction: opts.EfConstruction,
		})
	case index.KindIVFFlat:
		idx, err = index.NewIVFFlat(opts.Dim, opts.Metric, index.IVFFlatOptions{
			NList:  opts.NList,
			NProbe: opts.NProbe,
		})
	default:
		return fmt.Errorf("%w: unknown index kind %q", ErrInvalidInput, kind)
	}
	if err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}

	if err := db.registry.Create(name, idx, gpu.BackendCPU, opts.Description); err != nil {
		return err
	}
	log.Printf("📦 index %q created (%s, %s, dim=%d)", name, kind, idx.Metric(), opts.Dim)
	return nil
}

// DropIndex removes the index registered under name, waiting out any
// in-flight operations on it. A device-resident copy is freed first.
//
// Returns registry.ErrIndexNotFound when absent.
func (db *DB) DropIndex(name string) error {
	if err := db.checkClosed(); err != nil {
		return err
	}

	wl, err := db.registry.GetWrite(name)
	if err != nil {
		return err
	}
	if di, ok := wl.Index().(*gpu.DeviceIndex); ok {
		if host, err := db.manager.GpuToCpu(di); err == nil {
			db.registry.Replace(wl, host, gpu.BackendCPU)
		}
	}
	wl.Release()

	if err := db.registry.Destroy(name); err != nil {
		return err
	}
	log.Printf("🗑️ index %q dropped", name)
	return nil
}

// ListIndexes returns a metadata snapshot of every index, sorted by name.
func (db *DB) ListIndexes() []registry.Info {
	if err := db.checkClosed(); err != nil {
		return nil
	}
	return db.registry.List()
}

// IndexInfo returns the metadata snapshot for one index.
func (db *DB) IndexInfo(name string) (registry.Info, error) {
	if err := db.checkClosed(); err != nil {
		return registry.Info{}, err
	}
	return db.registry.Info(name)
}
