package index

import (
	"fmt"
	"strings"

	"github.com/orneryd/annex/pkg/simd"
)

// Metric identifies how distances between vectors are computed. The numeric
// values are shared with the native GPU kernel surface and must not change.
type Metric int

const (
	// MetricL2 orders vectors by squared Euclidean distance. The square
	// root is never taken: ordering is identical and the hot path skips
	// the call.
	MetricL2 Metric = iota

	// MetricIP orders vectors by negated inner product, so smaller means
	// closer under both metrics.
	MetricIP
)

// ParseMetric converts a user-facing metric name to a Metric. Accepted
// spellings are "l2", "ip" and "inner_product", case-insensitive.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(s) {
	case "l2":
		return MetricL2, nil
	case "ip", "inner_product":
		return MetricIP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricIP:
		return "IP"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// Distance computes the metric between two equal-length vectors: squared
// Euclidean distance for L2, negated dot product for IP.
func (m Metric) Distance(a, b []float32) float32 {
	if m == MetricIP {
		return -simd.DotProduct(a, b)
	}
	return simd.SquaredDistance(a, b)
}
