package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input string
		want  Metric
	}{
		{"l2", MetricL2},
		{"L2", MetricL2},
		{"ip", MetricIP},
		{"IP", MetricIP},
		{"inner_product", MetricIP},
		{"Inner_Product", MetricIP},
	}
	for _, tt := range tests {
		m, err := ParseMetric(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, m, "input %q", tt.input)
	}
}

func TestParseMetric_Unknown(t *testing.T) {
	_, err := ParseMetric("cosine")
	assert.ErrorIs(t, err, ErrUnknownMetric)
	assert.Contains(t, err.Error(), "cosine")
}

func TestMetric_String(t *testing.T) {
	assert.Equal(t, "L2", MetricL2.String())
	assert.Equal(t, "IP", MetricIP.String())
}

func TestMetric_Distance(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}

	// L2 is the squared distance: 9 + 16 + 0.
	assert.InDelta(t, 25.0, MetricL2.Distance(a, b), 1e-5)

	// IP is the negated dot product: -(4 + 12 + 9).
	assert.InDelta(t, -25.0, MetricIP.Distance(a, b), 1e-5)
}

func TestMetric_SmallerMeansCloser(t *testing.T) {
	query := []float32{1, 0}
	near := []float32{1, 0.1}
	far := []float32{-1, 0}

	assert.Less(t, MetricL2.Distance(query, near), MetricL2.Distance(query, far))
	assert.Less(t, MetricIP.Distance(query, near), MetricIP.Distance(query, far))
}
