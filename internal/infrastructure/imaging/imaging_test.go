package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecoder_Formats(t *testing.T) {
	dec := NewDecoder(0)

	img, err := dec.Decode(solidPNG(t, color.RGBA{R: 200, A: 255}, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 4, img.Raster.Bounds().Dx())

	gray := image.NewGray(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gray, nil))

	img, err = dec.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
	assert.IsType(t, &image.RGBA{}, img.Raster)
}

func TestDecoder_Garbage(t *testing.T) {
	dec := NewDecoder(0)

	_, err := dec.Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, e.ErrDecodeFailure)

	_, err = dec.Decode(nil)
	assert.ErrorIs(t, err, e.ErrDecodeFailure)
}

func TestDecoder_PixelLimit(t *testing.T) {
	dec := NewDecoder(10)

	_, err := dec.Decode(solidPNG(t, color.White, 4, 4))
	assert.ErrorIs(t, err, e.ErrDecodeFailure)
}

func TestThumbnailEmbedder(t *testing.T) {
	ctx := context.Background()
	dec := NewDecoder(0)
	emb := NewThumbnailEmbedder(4)
	assert.Equal(t, 48, emb.Dimension())

	embed := func(c color.Color) []float32 {
		img, err := dec.Decode(solidPNG(t, c, 32, 32))
		require.NoError(t, err)
		vec, err := emb.Embed(ctx, img)
		require.NoError(t, err)
		return vec
	}

	red := embed(color.RGBA{R: 255, A: 255})
	require.Len(t, red, 48)

	var norm float64
	for _, v := range red {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	// детерминированность и ненулевой вектор для чёрного
	assert.Equal(t, red, embed(color.RGBA{R: 255, A: 255}))
	black := embed(color.Black)
	assert.NotContains(t, black, float32(0))
	assert.NotEqual(t, red, embed(color.RGBA{B: 255, A: 255}))
}
