// Package vector provides reference vector math for annex.
//
// pkg/simd holds the float32 throughput kernels used on the search path.
// This package holds the float64-accumulation reference forms used where
// precision matters more than speed (validation, bench reporting, tests
// cross-checking the SIMD kernels) plus normalization helpers shared by
// tools and tests.
//
// Main Functions:
//   - CosineSimilarity: float64-accumulated similarity for float32 vectors
//   - DotProduct: SIMD dot product, widened for accumulation-heavy callers
//   - SquaredDistance: float64-accumulated squared L2 distance
//   - Normalize: returns a unit-length copy of a vector
//   - NormalizeInPlace: normalizes a vector in-place (modifies input)
package vector

import (
	"math"

	"github.com/orneryd/annex/pkg/simd"
)

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Returns a value in [-1, 1] where 1 = identical, 0 = orthogonal, -1 = opposite.
//
// Accumulates in float64 for precision; use simd.CosineSimilarity on hot paths.
//
// Example:
//
//	a := []float32{1.0, 2.0, 3.0}
//	b := []float32{4.0, 5.0, 6.0}
//	sim := CosineSimilarity(a, b)  // Returns 0.9746318461970762
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProd, normA, normB float64
	for i := range a {
		dotProd += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProd / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DotProduct calculates the dot product of two float32 vectors.
// Returns float64 so callers can keep accumulating without narrowing.
//
// Uses the SIMD kernel internally.
//
// Example:
//
//	a := []float32{1.0, 2.0, 3.0}
//	b := []float32{4.0, 5.0, 6.0}
//	dot := DotProduct(a, b)  // Returns 32.0
func DotProduct(a, b []float32) float64 {
	return float64(simd.DotProduct(a, b))
}

// SquaredDistance calculates the squared L2 distance between two float32
// vectors with float64 accumulation. This is the reference form the tests
// hold the SIMD kernels and the GPU kernel against.
//
// Example:
//
//	a := []float32{0, 0}
//	b := []float32{3, 4}
//	d := SquaredDistance(a, b)  // Returns 25.0
func SquaredDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return sum
}

// Normalize returns a normalized copy of the vector.
// The input vector is not modified.
//
// Uses the SIMD kernel for the norm calculation. A zero vector normalizes
// to a zero vector.
//
// Example:
//
//	original := []float32{3.0, 4.0}
//	normalized := Normalize(original)  // Returns [0.6, 0.8]
func Normalize(vec []float32) []float32 {
	normalized := make([]float32, len(vec))

	n := simd.Norm(vec)
	if n == 0 {
		return normalized
	}

	invNorm := 1.0 / n
	for i, v := range vec {
		normalized[i] = v * invNorm
	}
	return normalized
}

// NormalizeInPlace normalizes a vector in-place (modifies the input).
// After normalization the vector has unit length.
//
// WARNING: Modifies the input slice. Use Normalize() to preserve the original.
func NormalizeInPlace(v []float32) {
	simd.NormalizeInPlace(v)
}
