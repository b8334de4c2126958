package usecase

import (
	"context"

	"github.com/DRSN-tech/photo-search/internal/domain"
)

// VectorIndex: хранилище эмбеддингов с поиском ближайших соседей.
// Метрика фиксирована на всё время жизни индекса.
type VectorIndex interface {
	// Insert добавляет записи. Повтор id — ошибка e.ErrDuplicateEntry.
	Insert(ctx context.Context, entries ...domain.IndexEntry) error
	// Search возвращает до limit записей, от ближайшей к дальней по метрике индекса.
	// На пустом индексе возвращает e.ErrIndexEmpty.
	Search(ctx context.Context, vector []float32, limit int) ([]domain.Hit, error)
	// Delete удаляет записи по id, отсутствующие id игнорируются.
	Delete(ctx context.Context, ids ...string) error
	// Clear удаляет все записи. Используется только первым шагом перестроения.
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
	Metric() domain.Metric
}

// ImageStorage: файловое хранилище каталога: по папке (префиксу) на товар.
// Это единственное долговременное состояние системы.
type ImageStorage interface {
	CreateProduct(ctx context.Context, productID string) error
	ProductExists(ctx context.Context, productID string) (bool, error)
	ListProducts(ctx context.Context) ([]string, error)
	ListImages(ctx context.Context, productID string) ([]string, error)
	ReadImage(ctx context.Context, productID, filename string) ([]byte, error)
	// WriteImage возвращает управление только после того, как файл надёжно записан.
	WriteImage(ctx context.Context, productID, filename string, data []byte) error
	ImageExists(ctx context.Context, productID, filename string) (bool, error)
	RemoveImage(ctx context.Context, productID, filename string) error
	RemoveProduct(ctx context.Context, productID string) error
}

// CacheRepository кэширует результаты поиска.
type CacheRepository interface {
	GetSearch(ctx context.Context, key string) ([]ProductMatch, bool, error)
	SetSearch(ctx context.Context, key string, matches []ProductMatch) error
}
