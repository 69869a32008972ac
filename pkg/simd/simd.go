package simd

// Implementation represents the active SIMD implementation
type Implementation string

const (
	// ImplGeneric indicates pure Go fallback (no SIMD)
	ImplGeneric Implementation = "generic"
	// ImplAVX2 indicates x86 AVX2+FMA SIMD
	ImplAVX2 Implementation = "avx2"
	// ImplNEON indicates ARM NEON SIMD
	ImplNEON Implementation = "neon"
)

// RuntimeInfo contains information about the active SIMD implementation
type RuntimeInfo struct {
	// Implementation is the active SIMD backend
	Implementation Implementation
	// Features lists specific CPU features being used
	Features []string
	// Accelerated indicates whether SIMD acceleration is active
	Accelerated bool
}

// DotProduct computes the dot product of two float32 vectors.
//
// The dot product is defined as: sum(a[i] * b[i]) for all i.
//
// Requirements:
//   - Both vectors must have the same length
//   - Returns 0 if vectors are empty or have different lengths
//
// Example:
//
//	a := []float32{1, 2, 3}
//	b := []float32{4, 5, 6}
//	result := simd.DotProduct(a, b) // 1*4 + 2*5 + 3*6 = 32
func DotProduct(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return dotProduct(a, b)
}

// CosineSimilarity computes the cosine similarity between two float32 vectors.
//
// Cosine similarity measures the angle between two vectors, returning a value
// between -1 (opposite directions) and 1 (same direction). A value of 0
// indicates orthogonal (perpendicular) vectors.
//
// The formula is: dot(a, b) / (norm(a) * norm(b))
//
// Requirements:
//   - Both vectors must have the same length
//   - Returns 0 if vectors are empty, have different lengths, or either is zero-length
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return cosineSimilarity(a, b)
}

// EuclideanDistance computes the Euclidean distance between two float32 vectors.
//
// The Euclidean distance is the straight-line distance in N-dimensional space:
// sqrt(sum((a[i] - b[i])^2))
//
// Requirements:
//   - Both vectors must have the same length
//   - Returns 0 if vectors are empty or have different lengths
//
// Example:
//
//	a := []float32{0, 0}
//	b := []float32{3, 4}
//	result := simd.EuclideanDistance(a, b) // 5.0
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return euclideanDistance(a, b)
}

// SquaredDistance computes the squared Euclidean distance between two
// float32 vectors: sum((a[i] - b[i])^2).
//
// Nearest-neighbor ranking only needs relative ordering, and the square
// root is monotonic, so search code paths compare squared distances and
// never pay for the sqrt.
//
// Requirements:
//   - Both vectors must have the same length
//   - Returns 0 if vectors are empty or have different lengths
//
// Example:
//
//	a := []float32{0, 0}
//	b := []float32{3, 4}
//	result := simd.SquaredDistance(a, b) // 25.0
func SquaredDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return squaredDistance(a, b)
}

// Norm computes the Euclidean norm (L2 norm / magnitude) of a float32 vector.
//
// The norm is defined as: sqrt(sum(v[i]^2))
//
// Example:
//
//	v := []float32{3, 4}
//	result := simd.Norm(v) // 5.0
func Norm(v []float32) float32 {
	return norm(v)
}

// NormalizeInPlace normalizes a vector to unit length, modifying it in place.
//
// After normalization, Norm(v) will equal 1.0 (within floating-point precision).
//
// If the vector has zero length, it will remain unchanged.
func NormalizeInPlace(v []float32) {
	normalizeInPlace(v)
}

// Info returns information about the active SIMD implementation.
//
// This can be used to check whether SIMD acceleration is being used
// and which specific features are enabled.
//
// Example:
//
//	info := simd.Info()
//	if info.Accelerated {
//	    fmt.Printf("Using %s SIMD\n", info.Implementation)
//	}
func Info() RuntimeInfo {
	return runtimeInfo()
}

// BatchDotProduct computes the dot product between a query vector and a
// batch of candidate vectors.
//
// Parameters:
//   - vectors: Contiguous array of [num_vectors × dimensions] float32
//   - query: Single query vector of [dimensions] float32
//   - out: Output array of at least [num_vectors] float32 dot products
//
// Example:
//
//	vectors := make([]float32, 1000*768) // 1000 vectors of 768 dimensions
//	query := make([]float32, 768)
//	out := make([]float32, 1000)
//	simd.BatchDotProduct(vectors, query, out)
func BatchDotProduct(vectors []float32, query []float32, out []float32) {
	dimensions := len(query)
	if dimensions == 0 {
		return
	}
	numVectors := len(vectors) / dimensions
	if numVectors == 0 || len(out) < numVectors {
		return
	}

	for i := 0; i < numVectors; i++ {
		start := i * dimensions
		end := start + dimensions
		out[i] = DotProduct(vectors[start:end], query)
	}
}

// BatchSquaredDistance computes the squared Euclidean distance between a
// query vector and a batch of candidate vectors. This is the L2 kernel of
// the distance dispatch pipeline; callers compare squared values directly.
//
// Parameters:
//   - vectors: Contiguous array of [num_vectors × dimensions] float32
//   - query: Single query vector of [dimensions] float32
//   - out: Output array of at least [num_vectors] float32 squared distances
func BatchSquaredDistance(vectors []float32, query []float32, out []float32) {
	dimensions := len(query)
	if dimensions == 0 {
		return
	}
	numVectors := len(vectors) / dimensions
	if numVectors == 0 || len(out) < numVectors {
		return
	}

	for i := 0; i < numVectors; i++ {
		start := i * dimensions
		end := start + dimensions
		out[i] = SquaredDistance(vectors[start:end], query)
	}
}

// BatchEuclideanDistance computes the Euclidean distance between a query
// vector and a batch of candidate vectors.
//
// Parameters:
//   - vectors: Contiguous array of [num_vectors × dimensions] float32
//   - query: Single query vector of [dimensions] float32
//   - out: Output array of at least [num_vectors] float32 distances
func BatchEuclideanDistance(vectors []float32, query []float32, out []float32) {
	dimensions := len(query)
	if dimensions == 0 {
		return
	}
	numVectors := len(vectors) / dimensions
	if numVectors == 0 || len(out) < numVectors {
		return
	}

	for i := 0; i < numVectors; i++ {
		start := i * dimensions
		end := start + dimensions
		out[i] = EuclideanDistance(vectors[start:end], query)
	}
}
