package domain

import (
	"image"
	"strings"
)

// ImageRef: ссылка на файл изображения внутри хранилища товара.
type ImageRef struct {
	ProductID string
	Filename  string
}

func NewImageRef(productID string, filename string) ImageRef {
	return ImageRef{
		ProductID: productID,
		Filename:  filename,
	}
}

// Path возвращает путь вида "<product_id>/<filename>" относительно корня хранилища.
func (r ImageRef) Path() string {
	return r.ProductID + "/" + r.Filename
}

// ParseImagePath разбирает путь, построенный ImageRef.Path.
func ParseImagePath(path string) (ImageRef, bool) {
	productID, filename, ok := strings.Cut(path, "/")
	if !ok || productID == "" || filename == "" || strings.Contains(filename, "/") {
		return ImageRef{}, false
	}

	return NewImageRef(productID, filename), true
}

// DecodedImage: декодированное изображение вместе с исходными байтами.
// Raster всегда в RGB(A), Format — имя кодека (jpeg, png, gif, webp).
type DecodedImage struct {
	Raster image.Image
	Format string
	Data   []byte
}

func NewDecodedImage(raster image.Image, format string, data []byte) *DecodedImage {
	return &DecodedImage{
		Raster: raster,
		Format: format,
		Data:   data,
	}
}

// ValidName проверяет, что имя товара или файла — один безопасный сегмент пути.
// Скрытые и временные файлы (начинаются с точки) в каталог не попадают.
func ValidName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}

	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
