package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/jimlawless/whereami"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// ImageRepo хранит каталог на локальном диске: папка на товар, файлы изображений внутри.
// Файлы и папки, начинающиеся с точки, считаются служебными и не попадают в листинги.
type ImageRepo struct {
	root string
}

func NewImageRepo(root string) (*ImageRepo, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, e.Storage(whereami.WhereAmI(), err)
	}

	return &ImageRepo{root: root}, nil
}

func (r *ImageRepo) CreateProduct(ctx context.Context, productID string) error {
	if !domain.ValidName(productID) {
		return e.Wrap(whereami.WhereAmI(), e.ErrInvalidFilename)
	}

	if err := os.MkdirAll(r.productDir(productID), dirPerm); err != nil {
		return e.Storage(whereami.WhereAmI(), err)
	}

	return nil
}

func (r *ImageRepo) ProductExists(ctx context.Context, productID string) (bool, error) {
	if !domain.ValidName(productID) {
		return false, nil
	}

	info, err := os.Stat(r.productDir(productID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, e.Storage(whereami.WhereAmI(), err)
	}

	return info.IsDir(), nil
}

// ListProducts возвращает id товаров в лексикографическом порядке.
func (r *ImageRepo) ListProducts(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, e.Storage(whereami.WhereAmI(), err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && domain.ValidName(entry.Name()) {
			ids = append(ids, entry.Name())
		}
	}

	return ids, nil
}

// ListImages возвращает имена файлов товара в лексикографическом порядке.
func (r *ImageRepo) ListImages(ctx context.Context, productID string) ([]string, error) {
	if !domain.ValidName(productID) {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	entries, err := os.ReadDir(r.productDir(productID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}
	if err != nil {
		return nil, e.Storage(whereami.WhereAmI(), err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && domain.ValidName(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}

func (r *ImageRepo) ReadImage(ctx context.Context, productID, filename string) ([]byte, error) {
	path, err := r.imagePath(productID, filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrImageNotFound)
	}
	if err != nil {
		return nil, e.Storage(whereami.WhereAmI(), err)
	}

	return data, nil
}

// WriteImage пишет во временный файл, делает fsync и переименовывает его,
// так что частично записанный файл никогда не виден под своим именем.
func (r *ImageRepo) WriteImage(ctx context.Context, productID, filename string, data []byte) error {
	path, err := r.imagePath(productID, filename)
	if err != nil {
		return err
	}

	dir := r.productDir(productID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return e.Storage(whereami.WhereAmI(), err)
	}
	tmpName := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		_ = os.Remove(tmpName)
		return e.Storage(whereami.WhereAmI(), err)
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return e.Storage(whereami.WhereAmI(), err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return e.Storage(whereami.WhereAmI(), err)
	}

	if err := syncDir(dir); err != nil {
		return e.Storage(whereami.WhereAmI(), err)
	}

	return nil
}

func (r *ImageRepo) ImageExists(ctx context.Context, productID, filename string) (bool, error) {
	path, err := r.imagePath(productID, filename)
	if err != nil {
		return false, nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, e.Storage(whereami.WhereAmI(), err)
	}

	return info.Mode().IsRegular(), nil
}

func (r *ImageRepo) RemoveImage(ctx context.Context, productID, filename string) error {
	path, err := r.imagePath(productID, filename)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return e.Wrap(whereami.WhereAmI(), e.ErrImageNotFound)
		}
		return e.Storage(whereami.WhereAmI(), err)
	}

	return nil
}

func (r *ImageRepo) RemoveProduct(ctx context.Context, productID string) error {
	exists, err := r.ProductExists(ctx, productID)
	if err != nil {
		return err
	}
	if !exists {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	if err := os.RemoveAll(r.productDir(productID)); err != nil {
		return e.Storage(whereami.WhereAmI(), err)
	}

	return nil
}

func (r *ImageRepo) productDir(productID string) string {
	return filepath.Join(r.root, productID)
}

func (r *ImageRepo) imagePath(productID, filename string) (string, error) {
	if !domain.ValidName(productID) {
		return "", e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}
	if !domain.ValidName(filename) {
		return "", e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %q", e.ErrImageNotFound, filename))
	}

	return filepath.Join(r.root, productID, filename), nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Sync()
}
