package imaging

import (
	"context"
	"image"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"golang.org/x/image/draw"
)

// ThumbnailEmbedder: локальный эмбеддер: уменьшенная до side×side копия изображения,
// развёрнутая в вектор RGB и нормированная. Детерминирован, не требует ML-сервиса.
type ThumbnailEmbedder struct {
	side int
}

func NewThumbnailEmbedder(side int) *ThumbnailEmbedder {
	if side <= 0 {
		side = 16
	}

	return &ThumbnailEmbedder{side: side}
}

func (t *ThumbnailEmbedder) Dimension() int {
	return t.side * t.side * 3
}

func (t *ThumbnailEmbedder) Embed(ctx context.Context, img *domain.DecodedImage) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Raster == nil {
		return nil, e.ErrDecodeFailure
	}

	thumb := image.NewRGBA(image.Rect(0, 0, t.side, t.side))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img.Raster, img.Raster.Bounds(), draw.Src, nil)

	vec := make([]float32, 0, t.Dimension())
	for y := 0; y < t.side; y++ {
		for x := 0; x < t.side; x++ {
			c := thumb.RGBAAt(x, y)
			// сдвиг на единицу исключает нулевой вектор у чёрного изображения
			vec = append(vec,
				(float32(c.R)+1)/256,
				(float32(c.G)+1)/256,
				(float32(c.B)+1)/256,
			)
		}
	}

	return domain.Normalize(vec)
}
