package infrastructure

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExtensionFromMIME(t *testing.T) {
	tests := []struct {
		mime string
		ext  string
		err  error
	}{
		{"image/jpeg", "jpg", nil},
		{"image/png", "png", nil},
		{"image/webp", "webp", nil},
		{"image/gif", "gif", nil},
		{"text/plain", "bin", e.ErrUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			ext, err := GetExtensionFromMIME(tt.mime)
			assert.Equal(t, tt.ext, ext)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDetectImageMIME(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	mime, err := DetectImageMIME(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = DetectImageMIME([]byte("hello, world"))
	assert.ErrorIs(t, err, e.ErrUnsupportedMediaType)
}
