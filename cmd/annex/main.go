// Package main provides the annex CLI entry point.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/annex/pkg/annex"
	"github.com/orneryd/annex/pkg/config"
	"github.com/orneryd/annex/pkg/gpu"
	"github.com/orneryd/annex/pkg/index"
	"github.com/orneryd/annex/pkg/math/vector"
	"github.com/orneryd/annex/pkg/search"
	"github.com/orneryd/annex/pkg/simd"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

const benchIndexName = "bench"

func main() {
	rootCmd := &cobra.Command{
		Use:   "annex",
		Short: "annex - Approximate Nearest-Neighbor Search Engine",
		Long: `annex is an approximate nearest-neighbor search engine written in Go,
with tiered distance kernels and process-wide index management.

Features:
  • Flat, HNSW and IVFFlat indexes over L2 / inner-product metrics
  • Auto-selected distance kernels: GPU → vectorized CPU → scalar
  • Optional GPU residency with graceful CPU fallback
  • Concurrent index registry with read/write leases`,
	}

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("annex v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	// Info command
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Report runtime capabilities",
		Long:  "Report the active configuration, CPU kernel tier and GPU availability",
		RunE:  runInfo,
	}
	infoCmd.Flags().Bool("gpu", false, "Probe for a GPU even when disabled in config")
	infoCmd.Flags().String("gpu-backend", "", "Require a specific backend: metal, cuda, vulkan")
	rootCmd.AddCommand(infoCmd)

	// Bench command
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic search benchmark",
		Long: `Build an index over a synthetic clustered corpus and measure search
throughput, latency percentiles and (for approximate indexes) recall
against an exact scan.`,
		RunE: runBench,
	}
	benchCmd.Flags().String("kind", "", "Index kind: flat, hnsw, ivfflat (default from config)")
	benchCmd.Flags().String("metric", "", "Distance metric: l2, ip (default from config)")
	benchCmd.Flags().Int("vectors", 0, "Corpus size (default from config)")
	benchCmd.Flags().Int("dim", 0, "Vector dimensionality (default from config)")
	benchCmd.Flags().Int("queries", 0, "Number of queries (default from config)")
	benchCmd.Flags().Int("k", 0, "Neighbors per query (default from config)")
	benchCmd.Flags().Int("clusters", 20, "Natural clusters in the synthetic corpus")
	benchCmd.Flags().Int("m", 0, "HNSW graph degree (default from config)")
	benchCmd.Flags().Int("ef-construction", 0, "HNSW build beam width (default from config)")
	benchCmd.Flags().Int("ef-search", 0, "HNSW search beam width (default from config)")
	benchCmd.Flags().Int("nlist", 0, "IVFFlat partition count (default from config)")
	benchCmd.Flags().Int("nprobe", 0, "IVFFlat probe count (default from config)")
	benchCmd.Flags().Int64("seed", 42, "Random seed for reproducibility")
	benchCmd.Flags().Bool("batch", false, "Also measure batched throughput via SearchBatch")
	benchCmd.Flags().Bool("recall", true, "Measure recall against an exact scan (approximate kinds)")
	benchCmd.Flags().Bool("gpu", false, "Enable GPU acceleration for the run")
	benchCmd.Flags().String("gpu-backend", "", "Require a specific backend: metal, cuda, vulkan")
	rootCmd.AddCommand(benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads from the first config file found, falling back to
// environment-only configuration.
func loadConfig() *config.Config {
	configPath := config.FindConfigFile()
	if configPath == "" {
		return config.LoadFromEnv()
	}
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fmt.Printf("⚠️  Warning: failed to load config from %s: %v\n", configPath, err)
		return config.LoadFromEnv()
	}
	fmt.Printf("📄 Loaded config from: %s\n", configPath)
	return cfg
}

func runInfo(cmd *cobra.Command, args []string) error {
	probeGPU, _ := cmd.Flags().GetBool("gpu")
	gpuBackend, _ := cmd.Flags().GetString("gpu-backend")

	fmt.Printf("📋 annex v%s (%s) built %s\n", version, commit, buildTime)

	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	fmt.Printf("   %s\n", cfg)
	fmt.Println()

	cpuInfo := simd.Info()
	fmt.Println("🧮 CPU kernels:")
	fmt.Printf("   Implementation: %s\n", cpuInfo.Implementation)
	if cpuInfo.Accelerated {
		fmt.Println("   Accelerated:    yes")
	} else {
		fmt.Println("   Accelerated:    no (scalar fallback)")
	}
	if len(cpuInfo.Features) > 0 {
		fmt.Printf("   Features:       %s\n", strings.Join(cpuInfo.Features, ", "))
	}
	fmt.Println()

	gpuConfig := cfg.GPUManagerConfig()
	if probeGPU {
		gpuConfig.Enabled = true
	}
	if gpuBackend != "" {
		gpuConfig.PreferredBackend = gpu.Backend(strings.ToLower(gpuBackend))
	}
	if !gpuConfig.Enabled {
		fmt.Println("🎮 GPU: disabled (enable with --gpu or ANNEX_GPU_ENABLED=true)")
		return nil
	}

	// Surface the probe failure itself instead of silently degrading.
	gpuConfig.FallbackOnError = false
	manager, err := gpu.NewManager(gpuConfig)
	if err != nil {
		fmt.Printf("🎮 GPU: ⚠️  %v\n", err)
		return nil
	}

	device := manager.Device()
	fmt.Println("🎮 GPU:")
	fmt.Printf("   ✅ %s (%s, %d MB)\n", device.Name, device.Backend, device.MemoryMB)
	if device.Vendor != "" {
		fmt.Printf("   Vendor:         %s\n", device.Vendor)
	}
	if device.ComputeUnits > 0 {
		fmt.Printf("   Compute units:  %d\n", device.ComputeUnits)
	}
	if device.MaxWorkGroup > 0 {
		fmt.Printf("   Max work group: %d\n", device.MaxWorkGroup)
	}
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	kindFlag, _ := cmd.Flags().GetString("kind")
	metricFlag, _ := cmd.Flags().GetString("metric")
	vectors, _ := cmd.Flags().GetInt("vectors")
	dim, _ := cmd.Flags().GetInt("dim")
	queries, _ := cmd.Flags().GetInt("queries")
	k, _ := cmd.Flags().GetInt("k")
	clusters, _ := cmd.Flags().GetInt("clusters")
	m, _ := cmd.Flags().GetInt("m")
	efConstruction, _ := cmd.Flags().GetInt("ef-construction")
	efSearch, _ := cmd.Flags().GetInt("ef-search")
	nlist, _ := cmd.Flags().GetInt("nlist")
	nprobe, _ := cmd.Flags().GetInt("nprobe")
	seed, _ := cmd.Flags().GetInt64("seed")
	batch, _ := cmd.Flags().GetBool("batch")
	recall, _ := cmd.Flags().GetBool("recall")
	useGPU, _ := cmd.Flags().GetBool("gpu")
	gpuBackend, _ := cmd.Flags().GetString("gpu-backend")

	// Config first, CLI flags override
	cfg := loadConfig()
	if kindFlag != "" {
		cfg.Index.Kind = kindFlag
	}
	if metricFlag != "" {
		cfg.Index.Metric = metricFlag
	}
	if vectors > 0 {
		cfg.Bench.Vectors = vectors
	}
	if dim > 0 {
		cfg.Bench.Dim = dim
	}
	if queries > 0 {
		cfg.Bench.Queries = queries
	}
	if k > 0 {
		cfg.Bench.K = k
	}
	if m > 0 {
		cfg.Index.M = m
	}
	if efConstruction > 0 {
		cfg.Index.EfConstruction = efConstruction
	}
	if efSearch > 0 {
		cfg.Search.EfSearch = efSearch
	}
	if nlist > 0 {
		cfg.Index.NList = nlist
	}
	if nprobe > 0 {
		// Query-time probes override the index default, so set both.
		cfg.Index.NProbe = nprobe
		cfg.Search.NProbe = nprobe
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	kind, err := index.ParseKind(cfg.Index.Kind)
	if err != nil {
		return err
	}
	metric, err := index.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return err
	}
	if clusters < 1 {
		clusters = 1
	}
	if clusters > cfg.Bench.Vectors {
		clusters = cfg.Bench.Vectors
	}

	gpuConfig := cfg.GPUManagerConfig()
	if useGPU {
		gpuConfig.Enabled = true
	}
	if gpuBackend != "" {
		gpuConfig.PreferredBackend = gpu.Backend(strings.ToLower(gpuBackend))
	}

	fmt.Printf("🏁 annex bench (seed %d)\n", seed)
	fmt.Printf("   Index:   %s/%s, dim=%d\n", kind, metric, cfg.Bench.Dim)
	fmt.Printf("   Corpus:  %d vectors in %d clusters\n", cfg.Bench.Vectors, clusters)
	fmt.Printf("   Queries: %d, k=%d\n", cfg.Bench.Queries, cfg.Bench.K)
	fmt.Println()

	rng := rand.New(rand.NewSource(seed))
	corpus := generateCorpus(rng, cfg.Bench.Vectors, cfg.Bench.Dim, clusters)
	queryVecs := generateQueries(rng, corpus, cfg.Bench.Queries)

	db, err := annex.Open(&annex.Config{
		GPU:          gpuConfig,
		BatchWorkers: cfg.Search.BatchWorkers,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	create := annex.CreateOptions{
		Dim:            cfg.Bench.Dim,
		Kind:           kind,
		Metric:         metric,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		NList:          cfg.Index.NList,
		NProbe:         cfg.Index.NProbe,
		Description:    "synthetic benchmark corpus",
	}
	if err := db.CreateIndex(benchIndexName, create); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}

	// IVFFlat trains on the first batch, which must cover nlist.
	batchSize := 1000
	if kind == index.KindIVFFlat && batchSize < cfg.Index.NList {
		batchSize = cfg.Index.NList
	}

	fmt.Println("📦 Building index...")
	buildStart := time.Now()
	if err := addInBatches(db, benchIndexName, corpus, batchSize); err != nil {
		return err
	}
	buildDuration := time.Since(buildStart)
	fmt.Printf("   ✅ %d vectors in %v (%.0f vectors/sec)\n",
		len(corpus), buildDuration.Round(time.Millisecond),
		float64(len(corpus))/buildDuration.Seconds())

	if _, ok := db.GPUInfo(); ok {
		if err := db.ToGPU(benchIndexName); err != nil {
			fmt.Printf("   ⚠️  GPU residency failed: %v\n", err)
		} else {
			fmt.Println("   ⚡ index resident on GPU")
		}
	}

	searchOpts := []annex.SearchOption{
		annex.WithEfSearch(cfg.Search.EfSearch),
		annex.WithNProbe(cfg.Search.NProbe),
	}

	fmt.Println("🔍 Searching...")
	approx := make([][]search.Result, len(queryVecs))
	latencies := make([]time.Duration, 0, len(queryVecs))
	searchStart := time.Now()
	for i, q := range queryVecs {
		queryStart := time.Now()
		hits, err := db.Search(benchIndexName, q, cfg.Bench.K, searchOpts...)
		if err != nil {
			return fmt.Errorf("query %d: %w", i, err)
		}
		latencies = append(latencies, time.Since(queryStart))
		approx[i] = hits
	}
	searchDuration := time.Since(searchStart)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Printf("   ✅ %d queries in %v (%.0f QPS)\n",
		len(queryVecs), searchDuration.Round(time.Millisecond),
		float64(len(queryVecs))/searchDuration.Seconds())
	fmt.Printf("   Latency: p50=%v p95=%v p99=%v\n",
		percentile(latencies, 0.50).Round(time.Microsecond),
		percentile(latencies, 0.95).Round(time.Microsecond),
		percentile(latencies, 0.99).Round(time.Microsecond))

	if batch {
		batchStart := time.Now()
		if _, err := db.SearchBatch(context.Background(), benchIndexName, queryVecs, cfg.Bench.K, searchOpts...); err != nil {
			return fmt.Errorf("batch search: %w", err)
		}
		batchDuration := time.Since(batchStart)
		fmt.Printf("   ✅ batched: %d queries in %v (%.0f QPS)\n",
			len(queryVecs), batchDuration.Round(time.Millisecond),
			float64(len(queryVecs))/batchDuration.Seconds())
	}

	if recall && kind != index.KindFlat {
		r, err := measureRecall(db, corpus, queryVecs, approx, metric, cfg.Bench.K, batchSize)
		if err != nil {
			return fmt.Errorf("measuring recall: %w", err)
		}
		fmt.Printf("🎯 Recall@%d: %.3f (vs exact scan)\n", cfg.Bench.K, r)
	}

	if _, ok := db.GPUInfo(); ok {
		stats := db.GPUStats()
		fmt.Println("⚡ GPU stats:")
		fmt.Printf("   Kernel executions: %d (avg %v)\n",
			stats.KernelExecutions, time.Duration(stats.AverageKernelTimeNs))
		fmt.Printf("   Operations GPU/CPU: %d/%d, fallbacks: %d\n",
			stats.OperationsGPU, stats.OperationsCPU, stats.FallbackCount)
		fmt.Printf("   Bytes transferred: %d\n", stats.BytesTransferred)
	}

	return nil
}

// addInBatches streams the corpus into the index in fixed-size chunks.
func addInBatches(db *annex.DB, name string, corpus [][]float32, batchSize int) error {
	for i := 0; i < len(corpus); i += batchSize {
		end := i + batchSize
		if end > len(corpus) {
			end = len(corpus)
		}
		if _, err := db.Add(name, corpus[i:end]); err != nil {
			return fmt.Errorf("adding batch at %d: %w", i, err)
		}
	}
	return nil
}

// measureRecall builds an exact flat index over the same corpus and
// reports the fraction of true neighbors the approximate index found.
func measureRecall(db *annex.DB, corpus, queryVecs [][]float32, approx [][]search.Result, metric index.Metric, k, batchSize int) (float64, error) {
	exactName := benchIndexName + "-exact"
	create := annex.CreateOptions{
		Dim:    len(corpus[0]),
		Kind:   index.KindFlat,
		Metric: metric,
	}
	if err := db.CreateIndex(exactName, create); err != nil {
		return 0, err
	}
	if err := addInBatches(db, exactName, corpus, batchSize); err != nil {
		return 0, err
	}

	var hits, total int
	for i, q := range queryVecs {
		exact, err := db.Search(exactName, q, k)
		if err != nil {
			return 0, err
		}
		want := make(map[int64]bool, len(exact))
		for _, r := range exact {
			want[r.ID] = true
		}
		for _, r := range approx[i] {
			if want[r.ID] {
				hits++
			}
		}
		total += len(exact)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(hits) / float64(total), nil
}

// generateCorpus generates unit vectors scattered around random cluster
// centroids, shuffled so insertion order carries no structure.
func generateCorpus(rng *rand.Rand, count, dim, clusters int) [][]float32 {
	centroids := make([][]float32, clusters)
	for i := range centroids {
		c := make([]float32, dim)
		for j := range c {
			c[j] = rng.Float32()*2 - 1
		}
		vector.NormalizeInPlace(c)
		centroids[i] = c
	}

	const stdDev = 0.15
	vecs := make([][]float32, count)
	for i := range vecs {
		centroid := centroids[i%clusters]
		v := make([]float32, dim)
		for j := range v {
			v[j] = centroid[j] + float32(rng.NormFloat64())*stdDev
		}
		vector.NormalizeInPlace(v)
		vecs[i] = v
	}

	rng.Shuffle(count, func(i, j int) {
		vecs[i], vecs[j] = vecs[j], vecs[i]
	})
	return vecs
}

// generateQueries perturbs random corpus vectors so each query has
// genuine near neighbors.
func generateQueries(rng *rand.Rand, corpus [][]float32, count int) [][]float32 {
	const stdDev = 0.05
	queries := make([][]float32, count)
	for i := range queries {
		base := corpus[rng.Intn(len(corpus))]
		q := make([]float32, len(base))
		for j := range q {
			q[j] = base[j] + float32(rng.NormFloat64())*stdDev
		}
		vector.NormalizeInPlace(q)
		queries[i] = q
	}
	return queries
}

// percentile reads a quantile from an ascending latency sample.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
