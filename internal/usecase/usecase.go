package usecase

import (
	"context"

	"github.com/DRSN-tech/photo-search/internal/domain"
)

type ProductUC interface {
	CreateProduct(ctx context.Context) (string, error)
	AddImage(ctx context.Context, productID string, img *ProductImage) (domain.ImageRef, error)
	RemoveImage(ctx context.Context, productID string, filename string) error
	RemoveProduct(ctx context.Context, productID string) error
	Search(ctx context.Context, req *SearchReq) ([]ProductMatch, error)
	Rebuild(ctx context.Context) (*RebuildRes, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ReadImage(ctx context.Context, productID string, filename string) ([]byte, error)
}
