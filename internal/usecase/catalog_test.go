package usecase

import (
	"testing"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	c.AddProduct("b")
	c.AddImage(domain.NewImageRef("a", "1.jpg"))
	c.AddImage(domain.NewImageRef("a", "2.jpg"))
	c.AddProduct("a")

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 2, c.ImageCount())
	assert.True(t, c.HasProduct("b"))
	assert.False(t, c.HasProduct("c"))

	p, ok := c.Product("a")
	require.True(t, ok)
	assert.Equal(t, []string{"a/1.jpg", "a/2.jpg"}, p.ImagePaths())

	// Product возвращает копию
	p.Images[0] = domain.NewImageRef("x", "y")
	again, _ := c.Product("a")
	assert.Equal(t, "1.jpg", again.Images[0].Filename)

	products := c.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "a", products[0].ID)
	assert.Equal(t, "b", products[1].ID)
	assert.Empty(t, products[1].Images)
}
