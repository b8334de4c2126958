package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*ImageRepo, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "catalog")
	repo, err := NewImageRepo(root)
	require.NoError(t, err)

	return repo, root
}

func TestImageRepo_WriteListRead(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	require.NoError(t, repo.CreateProduct(ctx, "p2"))
	require.NoError(t, repo.CreateProduct(ctx, "p1"))
	require.NoError(t, repo.WriteImage(ctx, "p1", "b.png", []byte("bbb")))
	require.NoError(t, repo.WriteImage(ctx, "p1", "a.png", []byte("aaa")))

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, products)

	files, err := repo.ListImages(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, files)

	data, err := repo.ReadImage(ctx, "p1", "a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaa"), data)

	files, err = repo.ListImages(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestImageRepo_SkipsHiddenEntries(t *testing.T) {
	ctx := context.Background()
	repo, root := newRepo(t)

	require.NoError(t, repo.CreateProduct(ctx, "p1"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "p1", ".upload-123"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".trash"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, products)

	files, err := repo.ListImages(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestImageRepo_WriteToMissingProduct(t *testing.T) {
	repo, _ := newRepo(t)

	err := repo.WriteImage(context.Background(), "nope", "a.png", []byte("x"))
	assert.ErrorIs(t, err, e.ErrProductNotFound)
}

func TestImageRepo_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	require.NoError(t, repo.CreateProduct(ctx, "p1"))

	_, err := repo.ReadImage(ctx, "p1", "../../etc/passwd")
	assert.ErrorIs(t, err, e.ErrImageNotFound)

	_, err = repo.ReadImage(ctx, "..", "p1")
	assert.ErrorIs(t, err, e.ErrProductNotFound)

	assert.Error(t, repo.CreateProduct(ctx, "../escape"))
}

func TestImageRepo_Remove(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	require.NoError(t, repo.CreateProduct(ctx, "p1"))
	require.NoError(t, repo.WriteImage(ctx, "p1", "a.png", []byte("x")))

	exists, err := repo.ImageExists(ctx, "p1", "a.png")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.RemoveImage(ctx, "p1", "a.png"))
	assert.ErrorIs(t, repo.RemoveImage(ctx, "p1", "a.png"), e.ErrImageNotFound)

	exists, err = repo.ImageExists(ctx, "p1", "a.png")
	require.NoError(t, err)
	assert.False(t, exists)

	// пустой товар остаётся в каталоге
	ok, err := repo.ProductExists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.RemoveProduct(ctx, "p1"))
	assert.ErrorIs(t, repo.RemoveProduct(ctx, "p1"), e.ErrProductNotFound)

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}
