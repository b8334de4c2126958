package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/photo-search/internal/infrastructure"
	"github.com/DRSN-tech/photo-search/internal/usecase"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/jimlawless/whereami"
)

const defaultK = 5

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrProductNotFound):
		return http.StatusNotFound, e.ErrProductNotFound.Error()
	case errors.Is(err, e.ErrImageNotFound):
		return http.StatusNotFound, e.ErrImageNotFound.Error()
	case errors.Is(err, e.ErrIndexEmpty):
		return http.StatusBadRequest, e.ErrIndexEmpty.Error()
	case errors.Is(err, e.ErrInvalidK):
		return http.StatusBadRequest, e.ErrInvalidK.Error()
	case errors.Is(err, e.ErrExpectedMultipart):
		return http.StatusBadRequest, e.ErrExpectedMultipart.Error()
	case errors.Is(err, e.ErrNoImages):
		return http.StatusBadRequest, e.ErrNoImages.Error()
	case errors.Is(err, e.ErrTooManyImages):
		return http.StatusBadRequest, e.ErrTooManyImages.Error()
	case errors.Is(err, e.ErrInvalidFilename):
		return http.StatusBadRequest, e.ErrInvalidFilename.Error()
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, e.ErrFileTooLarge.Error()
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, e.ErrUnsupportedMediaType.Error()
	case errors.Is(err, e.ErrDecodeFailure):
		return http.StatusUnprocessableEntity, e.ErrDecodeFailure.Error()
	case errors.Is(err, e.ErrEmbeddingFailure):
		return http.StatusBadGateway, e.ErrEmbeddingFailure.Error()
	case errors.Is(err, e.ErrIndexStale):
		return http.StatusServiceUnavailable, e.ErrIndexStale.Error()
	case errors.Is(err, e.ErrStorageFailure):
		return http.StatusInternalServerError, e.ErrStorageFailure.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	WriteSuccess(w, code, NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func ensureMultipartForm(r *http.Request, maxMemory int64) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return e.Wrap(whereami.WhereAmI(), e.ErrFileTooLarge)
		}
		return e.Wrap(whereami.WhereAmI(), errors.Join(e.ErrStatusBadRequest, err))
	}

	return nil
}

// parseImages читает файлы формы и проверяет тип по содержимому.
func parseImages(files []*multipart.FileHeader, maxCount int, maxFileSize int64) ([]usecase.ProductImage, error) {
	if len(files) == 0 {
		return nil, e.ErrNoImages
	}
	if len(files) > maxCount {
		return nil, e.ErrTooManyImages
	}

	images := make([]usecase.ProductImage, 0, len(files))
	for _, fh := range files {
		data, mimeType, err := readFile(fh, maxFileSize)
		if err != nil {
			return nil, err
		}
		images = append(images, *usecase.NewProductImage(data, mimeType, int64(len(data)), fh.Filename))
	}

	return images, nil
}

func readFile(fh *multipart.FileHeader, maxSize int64) ([]byte, string, error) {
	if fh.Size > maxSize {
		return nil, "", e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, "", e.Wrap(whereami.WhereAmI(), err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxSize+1))
	if err != nil {
		return nil, "", e.Wrap(whereami.WhereAmI(), err)
	}
	if int64(len(data)) > maxSize {
		return nil, "", e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	mimeType, err := infrastructure.DetectImageMIME(data)
	if err != nil {
		return nil, "", e.Wrap(fh.Filename+": "+mimeType, err)
	}

	return data, mimeType, nil
}

// parseK разбирает параметр k. Пустое значение — defaultK.
func parseK(raw string) (int, error) {
	if raw == "" {
		return defaultK, nil
	}

	k, err := strconv.Atoi(raw)
	if err != nil || k <= 0 {
		return 0, e.Wrap("k="+raw, e.ErrInvalidK)
	}

	return k, nil
}
