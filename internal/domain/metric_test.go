package domain

import (
	"testing"

	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("Cosine")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	m, err = ParseMetric("l2")
	require.NoError(t, err)
	assert.Equal(t, MetricEuclidean, m)

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}

func TestToDistanceKeepsCloserFirst(t *testing.T) {
	// для косинуса 0.9 ближе, чем 0.2
	assert.Less(t, MetricCosine.ToDistance(0.9), MetricCosine.ToDistance(0.2))
	// для расстояния 0.1 ближе, чем 0.8
	assert.Less(t, MetricEuclidean.ToDistance(0.1), MetricEuclidean.ToDistance(0.8))

	assert.InDelta(t, 0, MetricCosine.ToDistance(MetricCosine.Optimum()), 1e-6)
	assert.InDelta(t, 0, MetricEuclidean.ToDistance(MetricEuclidean.Optimum()), 1e-6)
}

func TestScore(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 1, MetricCosine.Score(a, a), 1e-6)
	assert.InDelta(t, 0, MetricCosine.Score(a, b), 1e-6)
	assert.InDelta(t, 0, MetricEuclidean.Score(a, a), 1e-6)
	assert.InDelta(t, 1.41421, MetricEuclidean.Score(a, b), 1e-4)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, err = Normalize([]float32{0, 0, 0})
	assert.ErrorIs(t, err, e.ErrZeroVector)
}

func TestImagePathRoundTrip(t *testing.T) {
	ref := NewImageRef("p1", "abc_photo.jpg")
	assert.Equal(t, "p1/abc_photo.jpg", ref.Path())

	parsed, ok := ParseImagePath(ref.Path())
	require.True(t, ok)
	assert.Equal(t, ref, parsed)

	_, ok = ParseImagePath("no-slash")
	assert.False(t, ok)
	_, ok = ParseImagePath("p1/nested/file.jpg")
	assert.False(t, ok)
}
