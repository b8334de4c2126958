// Package imaging декодирует изображения и строит из них эмбеддинги без внешнего ML-сервиса.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels ограничивает размер растра до декодирования.
const DefaultMaxPixels = 50_000_000

// Decoder декодирует jpeg, png, gif и webp в RGBA-растр.
type Decoder struct {
	maxPixels int
}

func NewDecoder(maxPixels int) *Decoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	return &Decoder{maxPixels: maxPixels}
}

func (d *Decoder) Decode(data []byte) (*domain.DecodedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", e.ErrDecodeFailure)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", e.ErrDecodeFailure, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > d.maxPixels {
		return nil, fmt.Errorf("%w: unsupported size %dx%d", e.ErrDecodeFailure, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", e.ErrDecodeFailure, err)
	}

	return domain.NewDecodedImage(toRGBA(img), format, data), nil
}

// toRGBA приводит палитровые, серые и YCbCr изображения к единому RGBA.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return rgba
}
