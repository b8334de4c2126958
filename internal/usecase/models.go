package usecase

import (
	"time"

	"github.com/google/uuid"
)

// ProductImage представляет изображение, загруженное через multipart/form-data.
type ProductImage struct {
	Data     []byte // байты изображения
	MimeType string // Content-Type, определённый по содержимому
	Size     int64  // фактический размер в байтах
	Name     string // оригинальное имя файла
}

// SearchReq: запрос поиска похожих товаров.
type SearchReq struct {
	Image *ProductImage
	K     int
}

// ProductMatch: товар в выдаче поиска.
// Score: лучший score товара в единицах метрики индекса, Photos — пути лучших фото.
type ProductMatch struct {
	ProductID string   `json:"product_id"`
	Score     float32  `json:"score"`
	Photos    []string `json:"photos"`
}

// RebuildRes: итог перестроения индекса.
type RebuildRes struct {
	Products int
	Indexed  int
	Failed   int
	Duration time.Duration
}

// INFRASTRUCTURE

type CatalogEventType string

const (
	EventProductCreated CatalogEventType = "product_created"
	EventImageAdded     CatalogEventType = "image_added"
	EventImageRemoved   CatalogEventType = "image_removed"
	EventProductRemoved CatalogEventType = "product_removed"
	EventIndexRebuilt   CatalogEventType = "index_rebuilt"
)

// CatalogEvent: событие изменения каталога.
type CatalogEvent struct {
	EventID   string           `json:"event_id"`
	Type      CatalogEventType `json:"type"`
	ProductID string           `json:"product_id,omitempty"`
	ImagePath string           `json:"image_path,omitempty"`
	Indexed   int              `json:"indexed,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// MAPPERS

func NewProductImage(data []byte, mimeType string, size int64, name string) *ProductImage {
	return &ProductImage{
		Data:     data,
		MimeType: mimeType,
		Size:     size,
		Name:     name,
	}
}

func NewSearchReq(image *ProductImage, k int) *SearchReq {
	return &SearchReq{
		Image: image,
		K:     k,
	}
}

func NewProductMatch(productID string, score float32, photos []string) ProductMatch {
	return ProductMatch{
		ProductID: productID,
		Score:     score,
		Photos:    photos,
	}
}

func NewRebuildRes(products, indexed, failed int, duration time.Duration) *RebuildRes {
	return &RebuildRes{
		Products: products,
		Indexed:  indexed,
		Failed:   failed,
		Duration: duration,
	}
}

func NewCatalogEvent(eventType CatalogEventType, productID string, imagePath string) *CatalogEvent {
	return &CatalogEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		ProductID: productID,
		ImagePath: imagePath,
		Timestamp: time.Now().UTC().UnixNano(),
	}
}
