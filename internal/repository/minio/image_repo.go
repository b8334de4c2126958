package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// productMarker: пустой объект, обозначающий товар без изображений.
// S3 не хранит пустые "папки", поэтому товар существует, пока существует маркер или хотя бы один объект.
const productMarker = ".product"

const codeNoSuchKey = "NoSuchKey"

// ImageRepo реализует хранилище каталога поверх MinIO: префикс "<productID>/" на товар.
type ImageRepo struct {
	mc  *minio.Client
	cfg *cfg.MinIOCfg
}

func NewImageRepo(mc *minio.Client, cfg *cfg.MinIOCfg) *ImageRepo {
	return &ImageRepo{
		mc:  mc,
		cfg: cfg,
	}
}

func (i *ImageRepo) CreateProduct(ctx context.Context, productID string) error {
	if !domain.ValidName(productID) {
		return e.Wrap(whereami.WhereAmI(), e.ErrInvalidFilename)
	}

	_, err := i.mc.PutObject(ctx, i.cfg.BucketName, objectKey(productID, productMarker),
		bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return e.Storage(whereami.WhereAmI(), err)
	}

	return nil
}

func (i *ImageRepo) ProductExists(ctx context.Context, productID string) (bool, error) {
	if !domain.ValidName(productID) {
		return false, nil
	}

	// листинг прерывается на первом объекте, отмена освобождает горутину minio-go
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range i.mc.ListObjects(ctx, i.cfg.BucketName, minio.ListObjectsOptions{
		Prefix:  productID + "/",
		MaxKeys: 1,
	}) {
		if obj.Err != nil {
			return false, e.Storage(whereami.WhereAmI(), obj.Err)
		}
		return true, nil
	}

	return false, nil
}

func (i *ImageRepo) ListProducts(ctx context.Context) ([]string, error) {
	var ids []string
	for obj := range i.mc.ListObjects(ctx, i.cfg.BucketName, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, e.Storage(whereami.WhereAmI(), obj.Err)
		}

		// без Recursive префиксы товаров приходят как ключи с завершающим "/"
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}
		if id := strings.TrimSuffix(obj.Key, "/"); domain.ValidName(id) {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (i *ImageRepo) ListImages(ctx context.Context, productID string) ([]string, error) {
	if !domain.ValidName(productID) {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	found := false
	files := []string{}
	for obj := range i.mc.ListObjects(ctx, i.cfg.BucketName, minio.ListObjectsOptions{
		Prefix: productID + "/",
	}) {
		if obj.Err != nil {
			return nil, e.Storage(whereami.WhereAmI(), obj.Err)
		}
		found = true

		name := path.Base(obj.Key)
		if strings.HasSuffix(obj.Key, "/") || !domain.ValidName(name) {
			continue
		}
		files = append(files, name)
	}

	if !found {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	return files, nil
}

func (i *ImageRepo) ReadImage(ctx context.Context, productID, filename string) ([]byte, error) {
	key, err := imageKey(productID, filename)
	if err != nil {
		return nil, err
	}

	obj, err := i.mc.GetObject(ctx, i.cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, i.mapErr(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, i.mapErr(err)
	}

	return data, nil
}

// WriteImage возвращается после подтверждённого PUT, объект к этому моменту уже виден в листинге.
func (i *ImageRepo) WriteImage(ctx context.Context, productID, filename string, data []byte) error {
	key, err := imageKey(productID, filename)
	if err != nil {
		return err
	}

	exists, err := i.ProductExists(ctx, productID)
	if err != nil {
		return err
	}
	if !exists {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	_, err = i.mc.PutObject(ctx, i.cfg.BucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: http.DetectContentType(data)})
	if err != nil {
		return e.Storage(whereami.WhereAmI(), err)
	}

	return nil
}

func (i *ImageRepo) ImageExists(ctx context.Context, productID, filename string) (bool, error) {
	key, err := imageKey(productID, filename)
	if err != nil {
		return false, nil
	}

	if _, err := i.mc.StatObject(ctx, i.cfg.BucketName, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == codeNoSuchKey {
			return false, nil
		}
		return false, e.Storage(whereami.WhereAmI(), err)
	}

	return true, nil
}

func (i *ImageRepo) RemoveImage(ctx context.Context, productID, filename string) error {
	exists, err := i.ImageExists(ctx, productID, filename)
	if err != nil {
		return err
	}
	if !exists {
		return e.Wrap(whereami.WhereAmI(), e.ErrImageNotFound)
	}

	// маркер сохраняет товар, даже если это было его последнее изображение
	if _, err := i.mc.PutObject(ctx, i.cfg.BucketName, objectKey(productID, productMarker),
		bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		return e.Storage(whereami.WhereAmI(), err)
	}

	if err := i.mc.RemoveObject(ctx, i.cfg.BucketName, objectKey(productID, filename), minio.RemoveObjectOptions{}); err != nil {
		return e.Storage(whereami.WhereAmI(), err)
	}

	return nil
}

func (i *ImageRepo) RemoveProduct(ctx context.Context, productID string) error {
	exists, err := i.ProductExists(ctx, productID)
	if err != nil {
		return err
	}
	if !exists {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	objectsCh := i.mc.ListObjects(ctx, i.cfg.BucketName, minio.ListObjectsOptions{
		Prefix:    productID + "/",
		Recursive: true,
	})

	var errs []error
	for rmErr := range i.mc.RemoveObjects(ctx, i.cfg.BucketName, objectsCh, minio.RemoveObjectsOptions{}) {
		errs = append(errs, rmErr.Err)
	}
	if len(errs) > 0 {
		return e.Storage(whereami.WhereAmI(), errors.Join(errs...))
	}

	return nil
}

func (i *ImageRepo) mapErr(err error) error {
	if minio.ToErrorResponse(err).Code == codeNoSuchKey {
		return e.Wrap(whereami.WhereAmI(), e.ErrImageNotFound)
	}

	return e.Storage(whereami.WhereAmI(), err)
}

func objectKey(productID, filename string) string {
	return productID + "/" + filename
}

func imageKey(productID, filename string) (string, error) {
	if !domain.ValidName(productID) {
		return "", e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}
	if !domain.ValidName(filename) {
		return "", e.Wrap(whereami.WhereAmI(), e.ErrImageNotFound)
	}

	return objectKey(productID, filename), nil
}
