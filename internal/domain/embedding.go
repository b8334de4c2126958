package domain

import (
	"math"

	"github.com/DRSN-tech/photo-search/pkg/e"
)

// Payload описывает дополнительную информацию вектора
type Payload struct {
	ProductID string
	ImagePath string
}

func NewPayload(ref ImageRef) Payload {
	return Payload{
		ProductID: ref.ProductID,
		ImagePath: ref.Path(),
	}
}

// IndexEntry: единица хранения векторного индекса: один эмбеддинг одного изображения.
type IndexEntry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

func NewIndexEntry(id string, vector []float32, payload Payload) *IndexEntry {
	return &IndexEntry{
		ID:      id,
		Vector:  vector,
		Payload: payload,
	}
}

// Hit: результат k-NN запроса. Score в единицах метрики индекса.
type Hit struct {
	ID      string
	Score   float32
	Payload Payload
}

// Normalize приводит вектор к единичной L2-норме, возвращая копию.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, e.ErrZeroVector
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out, nil
}
