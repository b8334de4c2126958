package domain

// Product описывает товар каталога и упорядоченный список его изображений.
type Product struct {
	ID     string
	Images []ImageRef
}

func NewProduct(id string, images []ImageRef) *Product {
	return &Product{
		ID:     id,
		Images: images,
	}
}

// ImagePaths возвращает относительные пути изображений товара в порядке каталога.
func (p *Product) ImagePaths() []string {
	paths := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		paths = append(paths, img.Path())
	}

	return paths
}
