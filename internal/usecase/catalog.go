package usecase

import (
	"sort"

	"github.com/DRSN-tech/photo-search/internal/domain"
)

// Catalog: соответствие товара и его изображений, полученное сканированием хранилища.
// Не потокобезопасен: доступ защищает ProductUseCase.
type Catalog struct {
	products map[string][]domain.ImageRef
}

func NewCatalog() *Catalog {
	return &Catalog{products: make(map[string][]domain.ImageRef)}
}

// AddProduct регистрирует товар без изображений. Повторный вызов ничего не меняет.
func (c *Catalog) AddProduct(productID string) {
	if _, ok := c.products[productID]; !ok {
		c.products[productID] = []domain.ImageRef{}
	}
}

// AddImage добавляет изображение в конец списка товара, создавая товар при необходимости.
func (c *Catalog) AddImage(ref domain.ImageRef) {
	c.products[ref.ProductID] = append(c.products[ref.ProductID], ref)
}

func (c *Catalog) HasProduct(productID string) bool {
	_, ok := c.products[productID]
	return ok
}

// Product возвращает копию товара.
func (c *Catalog) Product(productID string) (*domain.Product, bool) {
	images, ok := c.products[productID]
	if !ok {
		return nil, false
	}

	return domain.NewProduct(productID, append([]domain.ImageRef(nil), images...)), true
}

// Products возвращает все товары, отсортированные по id.
func (c *Catalog) Products() []domain.Product {
	ids := make([]string, 0, len(c.products))
	for id := range c.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, _ := c.Product(id)
		res = append(res, *p)
	}

	return res
}

func (c *Catalog) Len() int {
	return len(c.products)
}

// ImageCount возвращает общее число изображений в каталоге.
func (c *Catalog) ImageCount() int {
	n := 0
	for _, images := range c.products {
		n += len(images)
	}

	return n
}
