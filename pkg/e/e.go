package e

import "fmt"

var (
	// Каталог
	ErrProductNotFound = fmt.Errorf("product not found")
	ErrImageNotFound   = fmt.Errorf("image not found")

	// Ошибки обработки изображений и векторов
	ErrDecodeFailure     = fmt.Errorf("image decode failure")
	ErrEmbeddingFailure  = fmt.Errorf("embedding failure")
	ErrDimensionMismatch = fmt.Errorf("vector dimension mismatch")
	ErrZeroVector        = fmt.Errorf("vector has zero norm")

	// Индекс
	ErrIndexEmpty     = fmt.Errorf("index is empty")
	ErrIndexStale     = fmt.Errorf("index is stale, rebuild required")
	ErrDuplicateEntry = fmt.Errorf("duplicate index entry id")

	// Хранилище
	ErrStorageFailure = fmt.Errorf("storage failure")

	// 400 Bad Request
	ErrInvalidK             = fmt.Errorf("k must be positive")
	ErrNoImages             = fmt.Errorf("no images provided")
	ErrTooManyImages        = fmt.Errorf("too many images")
	ErrFileTooLarge         = fmt.Errorf("file too large")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrExpectedMultipart    = fmt.Errorf("expected multipart/form-data")
	ErrInvalidFilename      = fmt.Errorf("invalid filename")
	ErrStatusBadRequest     = fmt.Errorf("bad request")

	// 500
	ErrInternalServerError = fmt.Errorf("internal server error")

	// Конфигурация
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Storage оборачивает ошибку хранилища так, чтобы errors.Is(err, ErrStorageFailure) оставался истинным,
// не теряя исходную причину.
func Storage(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, ErrStorageFailure, err)
}
