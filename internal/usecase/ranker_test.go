package usecase

import (
	"testing"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(product, file string, score float32) domain.Hit {
	ref := domain.NewImageRef(product, file)
	return domain.Hit{ID: ref.Path(), Score: score, Payload: domain.NewPayload(ref)}
}

func TestRankProducts_CosineGroupsByBestHit(t *testing.T) {
	hits := []domain.Hit{
		hit("a", "1.jpg", 0.95),
		hit("b", "1.jpg", 0.90),
		hit("a", "2.jpg", 0.40),
		hit("c", "1.jpg", 0.30),
		hit("b", "2.jpg", 0.92),
	}

	matches := RankProducts(hits, domain.MetricCosine, 2, 5)
	require.Len(t, matches, 2)

	assert.Equal(t, "a", matches[0].ProductID)
	assert.InDelta(t, 0.95, matches[0].Score, 1e-6)
	assert.Equal(t, []string{"a/1.jpg", "a/2.jpg"}, matches[0].Photos)

	assert.Equal(t, "b", matches[1].ProductID)
	assert.InDelta(t, 0.92, matches[1].Score, 1e-6)
	assert.Equal(t, []string{"b/2.jpg", "b/1.jpg"}, matches[1].Photos)
}

func TestRankProducts_EuclideanPrefersSmallerScores(t *testing.T) {
	hits := []domain.Hit{
		hit("far", "1.jpg", 1.2),
		hit("near", "1.jpg", 0.1),
		hit("near", "2.jpg", 0.7),
	}

	matches := RankProducts(hits, domain.MetricEuclidean, 5, 5)
	require.Len(t, matches, 2)
	assert.Equal(t, "near", matches[0].ProductID)
	assert.InDelta(t, 0.1, matches[0].Score, 1e-6)
	assert.Equal(t, []string{"near/1.jpg", "near/2.jpg"}, matches[0].Photos)
	assert.Equal(t, "far", matches[1].ProductID)
}

func TestRankProducts_PhotoCap(t *testing.T) {
	var hits []domain.Hit
	for i, name := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		hits = append(hits, hit("a", name+".jpg", 1-float32(i)*0.1))
	}

	matches := RankProducts(hits, domain.MetricCosine, 1, 5)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"a/1.jpg", "a/2.jpg", "a/3.jpg", "a/4.jpg", "a/5.jpg"}, matches[0].Photos)
}

func TestRankProducts_TiesBreakByID(t *testing.T) {
	hits := []domain.Hit{
		hit("b", "x.jpg", 0.5),
		hit("a", "y.jpg", 0.5),
		hit("a", "b.jpg", 0.5),
	}

	matches := RankProducts(hits, domain.MetricCosine, 2, 5)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ProductID)
	assert.Equal(t, []string{"a/b.jpg", "a/y.jpg"}, matches[0].Photos)
	assert.Equal(t, "b", matches[1].ProductID)
}

func TestRankProducts_Bounds(t *testing.T) {
	hits := []domain.Hit{hit("a", "1.jpg", 0.9), hit("b", "1.jpg", 0.8)}

	assert.Empty(t, RankProducts(hits, domain.MetricCosine, 0, 5))
	assert.Empty(t, RankProducts(nil, domain.MetricCosine, 3, 5))
	assert.Len(t, RankProducts(hits, domain.MetricCosine, 100, 5), 2)
}

func TestOverFetchLimit(t *testing.T) {
	tests := []struct {
		name            string
		k, factor, size int
		want            int
	}{
		{name: "k*factor below size", k: 2, factor: 10, size: 100, want: 20},
		{name: "capped by size", k: 5, factor: 10, size: 30, want: 30},
		{name: "huge k does not overflow", k: 1 << 62, factor: 10, size: 7, want: 7},
		{name: "max int k", k: int(^uint(0) >> 1), factor: 10, size: 3, want: 3},
		{name: "zero factor", k: 4, factor: 0, size: 10, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overFetchLimit(tt.k, tt.factor, tt.size))
		})
	}
}
