package simd

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

// Benchmark vector sizes typical for embeddings
var benchmarkSizes = []int{128, 256, 384, 512, 768, 1024, 1536, 3072}

// generateTestVectors creates random float32 vectors for benchmarking
func generateTestVectors(size int) ([]float32, []float32) {
	a := make([]float32, size)
	b := make([]float32, size)
	for i := 0; i < size; i++ {
		a[i] = rand.Float32()*2 - 1 // [-1, 1]
		b[i] = rand.Float32()*2 - 1
	}
	return a, b
}

// Reference implementations for comparison (pure Go, no optimization)
func dotProductReference(a, b []float32) float32 {
	sum := float32(0)
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func squaredDistanceReference(a, b []float32) float32 {
	sum := float32(0)
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

func euclideanDistanceReference(a, b []float32) float32 {
	return float32(math.Sqrt(float64(squaredDistanceReference(a, b))))
}

func normReference(v []float32) float32 {
	sum := float32(0)
	for i := range v {
		sum += v[i] * v[i]
	}
	return float32(math.Sqrt(float64(sum)))
}

// BenchmarkDotProduct benchmarks dot product at various vector sizes
func BenchmarkDotProduct(b *testing.B) {
	for _, size := range benchmarkSizes {
		a, bv := generateTestVectors(size)
		name := fmt.Sprintf("%d", size)

		b.Run("SIMD-"+name, func(b *testing.B) {
			b.SetBytes(int64(size * 4 * 2)) // 2 vectors * 4 bytes per float32
			for i := 0; i < b.N; i++ {
				_ = DotProduct(a, bv)
			}
		})

		b.Run("Reference-"+name, func(b *testing.B) {
			b.SetBytes(int64(size * 4 * 2))
			for i := 0; i < b.N; i++ {
				_ = dotProductReference(a, bv)
			}
		})
	}
}

// BenchmarkSquaredDistance benchmarks the L2 hot-path kernel
func BenchmarkSquaredDistance(b *testing.B) {
	for _, size := range benchmarkSizes {
		a, bv := generateTestVectors(size)
		name := fmt.Sprintf("%d", size)

		b.Run("SIMD-"+name, func(b *testing.B) {
			b.SetBytes(int64(size * 4 * 2))
			for i := 0; i < b.N; i++ {
				_ = SquaredDistance(a, bv)
			}
		})

		b.Run("Reference-"+name, func(b *testing.B) {
			b.SetBytes(int64(size * 4 * 2))
			for i := 0; i < b.N; i++ {
				_ = squaredDistanceReference(a, bv)
			}
		})
	}
}

// BenchmarkEuclideanDistance benchmarks Euclidean distance at various vector sizes
func BenchmarkEuclideanDistance(b *testing.B) {
	for _, size := range benchmarkSizes {
		a, bv := generateTestVectors(size)
		name := fmt.Sprintf("%d", size)

		b.Run("SIMD-"+name, func(b *testing.B) {
			b.SetBytes(int64(size * 4 * 2))
			for i := 0; i < b.N; i++ {
				_ = EuclideanDistance(a, bv)
			}
		})

		b.Run("Reference-"+name, func(b *testing.B) {
			b.SetBytes(int64(size * 4 * 2))
			for i := 0; i < b.N; i++ {
				_ = euclideanDistanceReference(a, bv)
			}
		})
	}
}

// BenchmarkNorm benchmarks vector norm at various vector sizes
func BenchmarkNorm(b *testing.B) {
	for _, size := range benchmarkSizes {
		v, _ := generateTestVectors(size)
		name := fmt.Sprintf("%d", size)

		b.Run("SIMD-"+name, func(b *testing.B) {
			b.SetBytes(int64(size * 4))
			for i := 0; i < b.N; i++ {
				_ = Norm(v)
			}
		})

		b.Run("Reference-"+name, func(b *testing.B) {
			b.SetBytes(int64(size * 4))
			for i := 0; i < b.N; i++ {
				_ = normReference(v)
			}
		})
	}
}

// BenchmarkBatchScoring benchmarks one query against a contiguous candidate
// block, the shape the graph search engine feeds per traversal hop.
func BenchmarkBatchScoring(b *testing.B) {
	// Common embedding sizes: 384 (MiniLM), 768 (BERT), 1536 (OpenAI)
	dims := map[string]int{
		"MiniLM-384":  384,
		"BERT-768":    768,
		"OpenAI-1536": 1536,
	}
	batchSizes := []int{64, 1024}

	for name, dim := range dims {
		for _, n := range batchSizes {
			query, _ := generateTestVectors(dim)
			flat := make([]float32, n*dim)
			for i := range flat {
				flat[i] = rand.Float32()*2 - 1
			}
			out := make([]float32, n)

			b.Run(fmt.Sprintf("L2-%s-n%d", name, n), func(b *testing.B) {
				b.SetBytes(int64(n * dim * 4))
				for i := 0; i < b.N; i++ {
					BatchSquaredDistance(flat, query, out)
				}
			})

			b.Run(fmt.Sprintf("IP-%s-n%d", name, n), func(b *testing.B) {
				b.SetBytes(int64(n * dim * 4))
				for i := 0; i < b.N; i++ {
					BatchDotProduct(flat, query, out)
				}
			})
		}
	}
}

// BenchmarkMemoryBandwidth measures effective memory bandwidth
func BenchmarkMemoryBandwidth(b *testing.B) {
	// Large vectors to measure memory bandwidth
	sizes := []int{8192, 16384, 32768, 65536}

	for _, size := range sizes {
		a, bv := generateTestVectors(size)
		bytes := int64(size * 4 * 2)
		name := fmt.Sprintf("%dK", size/1024)

		b.Run("DotProduct-"+name, func(b *testing.B) {
			b.SetBytes(bytes)
			for i := 0; i < b.N; i++ {
				_ = DotProduct(a, bv)
			}
		})
	}
}
