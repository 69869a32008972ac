package vector

import (
	"math"
	"testing"
)

const epsilon = 1e-5

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"known value", []float32{1, 2, 3}, []float32{4, 5, 6}, 0.9746318461970762},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"length mismatch", []float32{1, 2}, []float32{1}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if !approxEqual(got, tt.want) {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	if got := DotProduct(a, b); !approxEqual(got, 32.0) {
		t.Errorf("DotProduct() = %v, want 32", got)
	}
}

func TestSquaredDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"pythagorean", []float32{0, 0}, []float32{3, 4}, 25.0},
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0.0},
		{"unit apart", []float32{0}, []float32{1}, 1.0},
		{"length mismatch", []float32{1, 2}, []float32{1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SquaredDistance(tt.a, tt.b)
			if !approxEqual(got, tt.want) {
				t.Errorf("SquaredDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	original := []float32{3, 4}
	normalized := Normalize(original)

	if !approxEqual(float64(normalized[0]), 0.6) || !approxEqual(float64(normalized[1]), 0.8) {
		t.Errorf("Normalize() = %v, want [0.6 0.8]", normalized)
	}
	if original[0] != 3 || original[1] != 4 {
		t.Error("Normalize() must not modify the input")
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("Normalize(zero) = %v, want zero vector", zero)
	}
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4}
	NormalizeInPlace(v)

	if !approxEqual(float64(v[0]), 0.6) || !approxEqual(float64(v[1]), 0.8) {
		t.Errorf("NormalizeInPlace() = %v, want [0.6 0.8]", v)
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if !approxEqual(norm, 1.0) {
		t.Errorf("normalized magnitude = %v, want 1", math.Sqrt(norm))
	}
}
