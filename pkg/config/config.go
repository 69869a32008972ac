// Package config handles annex configuration via YAML files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Environment variables (ANNEX_*)
//  2. Config file (annex.yaml)
//  3. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables (all use ANNEX_ prefix):
//
// GPU:
//   - ANNEX_GPU_ENABLED=true
//   - ANNEX_GPU_BACKEND="cuda" | "metal" | "vulkan"
//   - ANNEX_KERNEL_LIB="/opt/annex/libannexgpu.so"
//   - ANNEX_GPU_MAX_MEMORY_MB=4096
//   - ANNEX_GPU_FALLBACK=true
//
// Search:
//   - ANNEX_EF_SEARCH=64
//   - ANNEX_NPROBE=8
//   - ANNEX_BATCH_WORKERS=8
//
// Index defaults:
//   - ANNEX_INDEX_KIND="flat" | "hnsw" | "ivfflat"
//   - ANNEX_INDEX_METRIC="l2" | "ip"
//   - ANNEX_INDEX_M=32
//   - ANNEX_INDEX_EF_CONSTRUCTION=200
//   - ANNEX_INDEX_NLIST=100
//   - ANNEX_INDEX_NPROBE=8
//
// Bench:
//   - ANNEX_BENCH_VECTORS=10000
//   - ANNEX_BENCH_DIM=128
//   - ANNEX_BENCH_QUERIES=100
//   - ANNEX_BENCH_K=10
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
)

// Config holds all annex configuration.
//
// Sections:
//   - GPU: capability backend selection and memory cap
//   - Search: query-time defaults and batch parallelism
//   - Index: construction defaults for new indexes
//   - Bench: synthetic benchmark shape for `annex bench`
type Config struct {
	GPU    GPUConfig    `yaml:"gpu"`
	Search SearchConfig `yaml:"search"`
	Index  IndexConfig  `yaml:"index"`
	Bench  BenchConfig  `yaml:"bench"`
}

// GPUConfig holds capability backend settings.
type GPUConfig struct {
	// Enabled turns GPU detection on (ANNEX_GPU_ENABLED).
	Enabled bool `yaml:"enabled"`
	// PreferredBackend rejects other backends: "metal", "cuda", "vulkan"
	// or empty for any (ANNEX_GPU_BACKEND).
	PreferredBackend string `yaml:"preferred_backend"`
	// KernelLib is an explicit kernel library path (ANNEX_KERNEL_LIB).
	KernelLib string `yaml:"kernel_lib"`
	// MaxMemoryMB caps resident matrices, 0 = no cap (ANNEX_GPU_MAX_MEMORY_MB).
	MaxMemoryMB int64 `yaml:"max_memory_mb"`
	// FallbackOnError degrades to CPU instead of failing startup when
	// detection fails (ANNEX_GPU_FALLBACK).
	FallbackOnError bool `yaml:"fallback_on_error"`
}

// SearchConfig holds query-time defaults.
type SearchConfig struct {
	// EfSearch is the default HNSW beam width (ANNEX_EF_SEARCH).
	EfSearch int `yaml:"ef_search"`
	// NProbe is the default IVFFlat probe count (ANNEX_NPROBE).
	NProbe int `yaml:"nprobe"`
	// BatchWorkers bounds SearchBatch parallelism, 0 = NumCPU
	// (ANNEX_BATCH_WORKERS).
	BatchWorkers int `yaml:"batch_workers"`
}

// IndexConfig holds construction defaults for new indexes.
type IndexConfig struct {
	// Kind is the default index layout (ANNEX_INDEX_KIND).
	Kind string `yaml:"kind"`
	// Metric is the default distance metric (ANNEX_INDEX_METRIC).
	Metric string `yaml:"metric"`
	// M is the HNSW graph degree (ANNEX_INDEX_M).
	M int `yaml:"m"`
	// EfConstruction is the HNSW build beam (ANNEX_INDEX_EF_CONSTRUCTION).
	EfConstruction int `yaml:"ef_construction"`
	// NList is the IVFFlat quantizer size (ANNEX_INDEX_NLIST).
	NList int `yaml:"nlist"`
	// NProbe is the IVFFlat probe default (ANNEX_INDEX_NPROBE).
	NProbe int `yaml:"nprobe"`
}

// BenchConfig shapes the synthetic benchmark.
type BenchConfig struct {
	Vectors int `yaml:"vectors"`
	Dim     int `yaml:"dim"`
	Queries int `yaml:"queries"`
	K       int `yaml:"k"`
}

// LoadDefaults returns the built-in defaults: GPU disabled with graceful
// fallback, Flat/L2 indexes, and the package construction defaults.
func LoadDefaults() *Config {
	return &Config{
		GPU: GPUConfig{
			Enabled:         false,
			FallbackOnError: true,
		},
		Search: SearchConfig{
			EfSearch: index.DefaultEfSearch,
			NProbe:   index.DefaultNProbe,
		},
		Index: IndexConfig{
			Kind:           "flat",
			Metric:         "l2",
			M:              index.DefaultM,
			EfConstruction: index.DefaultEfConstruction,
			NList:          index.DefaultNList,
			NProbe:         index.DefaultNProbe,
		},
		Bench: BenchConfig{
			Vectors: 10000,
			Dim:     128,
			Queries: 100,
			K:       10,
		},
	}
}

// LoadFromEnv returns the defaults with ANNEX_* overrides applied.
func LoadFromEnv() *Config {
	c := LoadDefaults()
	applyEnvVars(c)
	return c
}

// LoadFromFile loads configuration with full precedence: built-in
// defaults, then the YAML file at path, then ANNEX_* environment
// variables. A missing file is not an error; an empty path skips the
// file step entirely.
func LoadFromFile(path string) (*Config, error) {
	c := LoadDefaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// The file only overrides keys it sets; defaults survive
			// for the rest.
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnvVars(c)
	return c, nil
}

// FindConfigFile returns the first config file that exists among the
// standard locations, or "" when none does.
func FindConfigFile() string {
	var candidates []string

	// Priority 1: user home directory
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".annex", "config.yaml"))
	}

	// Priority 2: same directory as the binary
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "annex.yaml"),
			filepath.Join(exeDir, "config.yaml"),
		)
	}

	// Priority 3: current working directory
	candidates = append(candidates, "annex.yaml", "config.yaml")

	// Priority 4: XDG user config path
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "annex", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func applyEnvVars(c *Config) {
	c.GPU.Enabled = getEnvBool("ANNEX_GPU_ENABLED", c.GPU.Enabled)
	c.GPU.PreferredBackend = getEnv("ANNEX_GPU_BACKEND", c.GPU.PreferredBackend)
	c.GPU.KernelLib = getEnv(gpu.KernelLibEnv, c.GPU.KernelLib)
	c.GPU.MaxMemoryMB = getEnvInt64("ANNEX_GPU_MAX_MEMORY_MB", c.GPU.MaxMemoryMB)
	c.GPU.FallbackOnError = getEnvBool("ANNEX_GPU_FALLBACK", c.GPU.FallbackOnError)

	c.Search.EfSearch = getEnvInt("ANNEX_EF_SEARCH", c.Search.EfSearch)
	c.Search.NProbe = getEnvInt("ANNEX_NPROBE", c.Search.NProbe)
	c.Search.BatchWorkers = getEnvInt("ANNEX_BATCH_WORKERS", c.Search.BatchWorkers)

	c.Index.Kind = getEnv("ANNEX_INDEX_KIND", c.Index.Kind)
	c.Index.Metric = getEnv("ANNEX_INDEX_METRIC", c.Index.Metric)
	c.Index.M = getEnvInt("ANNEX_INDEX_M", c.Index.M)
	c.Index.EfConstruction = getEnvInt("ANNEX_INDEX_EF_CONSTRUCTION", c.Index.EfConstruction)
	c.Index.NList = getEnvInt("ANNEX_INDEX_NLIST", c.Index.NList)
	c.Index.NProbe = getEnvInt("ANNEX_INDEX_NPROBE", c.Index.NProbe)

	c.Bench.Vectors = getEnvInt("ANNEX_BENCH_VECTORS", c.Bench.Vectors)
	c.Bench.Dim = getEnvInt("ANNEX_BENCH_DIM", c.Bench.Dim)
	c.Bench.Queries = getEnvInt("ANNEX_BENCH_QUERIES", c.Bench.Queries)
	c.Bench.K = getEnvInt("ANNEX_BENCH_K", c.Bench.K)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.GPU.PreferredBackend) {
	case "", "metal", "cuda", "vulkan":
	default:
		return fmt.Errorf("invalid gpu backend: %q", c.GPU.PreferredBackend)
	}
	if c.GPU.MaxMemoryMB < 0 {
		return fmt.Errorf("invalid gpu max memory: %d MB", c.GPU.MaxMemoryMB)
	}

	if c.Search.EfSearch <= 0 {
		return fmt.Errorf("invalid ef_search: %d", c.Search.EfSearch)
	}
	if c.Search.NProbe <= 0 {
		return fmt.Errorf("invalid nprobe: %d", c.Search.NProbe)
	}
	if c.Search.BatchWorkers < 0 {
		return fmt.Errorf("invalid batch workers: %d", c.Search.BatchWorkers)
	}

	if _, err := index.ParseKind(c.Index.Kind); err != nil {
		return fmt.Errorf("invalid index kind: %w", err)
	}
	if _, err := index.ParseMetric(c.Index.Metric); err != nil {
		return fmt.Errorf("invalid index metric: %w", err)
	}
	if c.Index.M <= 0 {
		return fmt.Errorf("invalid index m: %d", c.Index.M)
	}
	if c.Index.EfConstruction <= 0 {
		return fmt.Errorf("invalid ef_construction: %d", c.Index.EfConstruction)
	}
	if c.Index.NList <= 0 {
		return fmt.Errorf("invalid nlist: %d", c.Index.NList)
	}
	if c.Index.NProbe <= 0 || c.Index.NProbe > c.Index.NList {
		return fmt.Errorf("invalid index nprobe: %d (nlist %d)", c.Index.NProbe, c.Index.NList)
	}

	if c.Bench.Vectors <= 0 || c.Bench.Dim <= 0 || c.Bench.Queries <= 0 || c.Bench.K <= 0 {
		return fmt.Errorf("invalid bench shape: %d vectors, dim %d, %d queries, k %d",
			c.Bench.Vectors, c.Bench.Dim, c.Bench.Queries, c.Bench.K)
	}
	return nil
}

// String returns a short representation safe for logging.
func (c *Config) String() string {
	backend := c.GPU.PreferredBackend
	if backend == "" {
		backend = "any"
	}
	return fmt.Sprintf("Config{GPU: %v/%s, Index: %s/%s, Workers: %d}",
		c.GPU.Enabled, backend, c.Index.Kind, c.Index.Metric, c.Search.BatchWorkers)
}

// GPUManagerConfig converts the gpu section to the capability backend's
// runtime configuration.
func (c *Config) GPUManagerConfig() *gpu.Config {
	backend := gpu.BackendNone
	if s := strings.ToLower(c.GPU.PreferredBackend); s != "" {
		backend = gpu.Backend(s)
	}
	return &gpu.Config{
		Enabled:          c.GPU.Enabled,
		PreferredBackend: backend,
		KernelLib:        c.GPU.KernelLib,
		MaxMemoryMB:      c.GPU.MaxMemoryMB,
		FallbackOnError:  c.GPU.FallbackOnError,
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}
