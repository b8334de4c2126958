package qdrant

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHits(t *testing.T) {
	points := []*qdrant.ScoredPoint{
		{
			Id:    qdrant.NewIDUUID("5f0c6a4e-6c1b-4b8e-9a57-2f1d5b0c9e11"),
			Score: 0.93,
			Payload: qdrant.NewValueMap(map[string]any{
				payloadProductID: "p1",
				payloadImagePath: "p1/a.jpg",
			}),
		},
		{
			Id:      qdrant.NewIDNum(42),
			Score:   0.5,
			Payload: map[string]*qdrant.Value{},
		},
	}

	hits := toHits(points)
	require.Len(t, hits, 2)

	assert.Equal(t, "5f0c6a4e-6c1b-4b8e-9a57-2f1d5b0c9e11", hits[0].ID)
	assert.InDelta(t, 0.93, hits[0].Score, 1e-6)
	assert.Equal(t, "p1", hits[0].Payload.ProductID)
	assert.Equal(t, "p1/a.jpg", hits[0].Payload.ImagePath)

	assert.Equal(t, "42", hits[1].ID)
	assert.Empty(t, hits[1].Payload.ProductID)
}
