//go:generate mockgen -source=infrastructure.go -destination=mocks/mock_infrastructure.go -package=mocks

package usecase

import (
	"context"

	"github.com/DRSN-tech/photo-search/internal/domain"
)

// Embedder превращает декодированное изображение в вектор единичной длины.
type Embedder interface {
	Embed(ctx context.Context, img *domain.DecodedImage) ([]float32, error)
	Dimension() int
}

// ImageDecoder декодирует байты изображения в RGB-растр.
type ImageDecoder interface {
	Decode(data []byte) (*domain.DecodedImage, error)
}

// EventPublisher публикует события изменения каталога.
type EventPublisher interface {
	Publish(ctx context.Context, event *CatalogEvent) error
}
