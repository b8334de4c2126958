package http

import (
	"net/http"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/internal/usecase"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/go-chi/chi/v5"
)

const (
	maxMemory          = 32 << 20
	maxImagesPerUpload = 10
)

type productResponse struct {
	ProductID string   `json:"product_id"`
	Images    []string `json:"images"`
}

func toProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ProductID: p.ID,
		Images:    p.ImagePaths(),
	}
}

type rebuildResponse struct {
	Products   int   `json:"products"`
	Indexed    int   `json:"indexed"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

type searchResponse struct {
	Matches []usecase.ProductMatch `json:"matches"`
}

type ProductHandler struct {
	productUsecase usecase.ProductUC
	logger         logger.Logger
	maxFileSize    int64
}

func NewProductHandler(productUsecase usecase.ProductUC, logger logger.Logger, maxFileSize int64) *ProductHandler {
	return &ProductHandler{
		productUsecase: productUsecase,
		logger:         logger,
		maxFileSize:    maxFileSize,
	}
}

// createProduct
//
//	@Summary		Создание товара
//	@Description	Создаёт пустой товар и возвращает его идентификатор
//	@Tags			products
//	@Produce		json
//	@Success		201	{object}	map[string]string	"Идентификатор товара"
//	@Failure		500	{object}	ErrorResponse	"Ошибка хранилища"
//	@Router			/products [post]
func (p *ProductHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := p.productUsecase.CreateProduct(r.Context())
	if err != nil {
		p.fail(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusCreated, map[string]string{"product_id": productID})
}

// addImages принимает одно или несколько изображений в полях "file" или "images".
// Файлы добавляются по одному: при ошибке уже добавленные остаются в каталоге.
//
//	@Summary		Добавление изображений
//	@Tags			products
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			productID	path		string	true	"Идентификатор товара"
//	@Param			images		formData	file	true	"Изображения товара"
//	@Success		201	{object}	map[string]interface{}	"Пути добавленных изображений"
//	@Failure		400	{object}	ErrorResponse	"Ошибка валидации"
//	@Failure		404	{object}	ErrorResponse	"Товар не найден"
//	@Failure		413	{object}	ErrorResponse	"Файл слишком большой"
//	@Failure		415	{object}	ErrorResponse	"Не изображение"
//	@Failure		422	{object}	ErrorResponse	"Изображение не декодируется"
//	@Failure		502	{object}	ErrorResponse	"Ошибка сервиса эмбеддингов"
//	@Router			/products/{productID}/images [post]
func (p *ProductHandler) addImages(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	files, ok := p.readUpload(w, r, maxImagesPerUpload)
	if !ok {
		return
	}

	paths := make([]string, 0, len(files))
	for i := range files {
		ref, err := p.productUsecase.AddImage(r.Context(), productID, &files[i])
		if err != nil {
			p.fail(w, r, err)
			return
		}
		paths = append(paths, ref.Path())
	}

	WriteSuccess(w, http.StatusCreated, map[string]any{
		"message": "Image added",
		"paths":   paths,
	})
}

// removeImage
//
//	@Summary		Удаление изображения
//	@Description	Удаляет файл изображения и перестраивает индекс
//	@Tags			products
//	@Produce		json
//	@Param			productID	path	string	true	"Идентификатор товара"
//	@Param			filename	path	string	true	"Имя файла"
//	@Success		200	{object}	map[string]string	"Изображение удалено"
//	@Failure		404	{object}	ErrorResponse	"Товар или изображение не найдены"
//	@Router			/products/{productID}/images/{filename} [delete]
func (p *ProductHandler) removeImage(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	filename := chi.URLParam(r, "filename")

	if err := p.productUsecase.RemoveImage(r.Context(), productID, filename); err != nil {
		p.fail(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]string{"message": "Image deleted"})
}

// removeProduct
//
//	@Summary		Удаление товара
//	@Description	Удаляет папку товара и перестраивает индекс
//	@Tags			products
//	@Produce		json
//	@Param			productID	path	string	true	"Идентификатор товара"
//	@Success		200	{object}	map[string]string	"Товар удалён"
//	@Failure		404	{object}	ErrorResponse	"Товар не найден"
//	@Router			/products/{productID} [delete]
func (p *ProductHandler) removeProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	if err := p.productUsecase.RemoveProduct(r.Context(), productID); err != nil {
		p.fail(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// getProduct
//
//	@Summary		Товар и его изображения
//	@Tags			products
//	@Produce		json
//	@Param			productID	path	string	true	"Идентификатор товара"
//	@Success		200	{object}	productResponse
//	@Failure		404	{object}	ErrorResponse	"Товар не найден"
//	@Router			/products/{productID} [get]
func (p *ProductHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := p.productUsecase.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		p.fail(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toProductResponse(product))
}

// listProducts
//
//	@Summary		Список товаров
//	@Tags			products
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"Товары каталога"
//	@Router			/products [get]
func (p *ProductHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := p.productUsecase.ListProducts(r.Context())
	if err != nil {
		p.fail(w, r, err)
		return
	}

	res := make([]productResponse, 0, len(products))
	for i := range products {
		res = append(res, toProductResponse(&products[i]))
	}

	WriteSuccess(w, http.StatusOK, map[string]any{"products": res})
}

// search ищет товары по фото из поля "file". Параметр k — число товаров в выдаче.
//
//	@Summary		Поиск по фото
//	@Tags			search
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Фото-запрос"
//	@Param			k		query		int		false	"Число товаров в выдаче"	default(5)
//	@Success		200	{object}	searchResponse
//	@Failure		400	{object}	ErrorResponse	"Пустой индекс или неверный запрос"
//	@Failure		422	{object}	ErrorResponse	"Изображение не декодируется"
//	@Failure		503	{object}	ErrorResponse	"Индекс требует перестроения"
//	@Router			/search [post]
func (p *ProductHandler) search(w http.ResponseWriter, r *http.Request) {
	k, err := parseK(r.URL.Query().Get("k"))
	if err != nil {
		p.fail(w, r, err)
		return
	}

	files, ok := p.readUpload(w, r, 1)
	if !ok {
		return
	}

	matches, err := p.productUsecase.Search(r.Context(), usecase.NewSearchReq(&files[0], k))
	if err != nil {
		p.fail(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, searchResponse{Matches: matches})
}

// rebuild
//
//	@Summary		Перестроение индекса
//	@Description	Пересобирает каталог и векторный индекс из хранилища
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	rebuildResponse
//	@Failure		500	{object}	ErrorResponse	"Ошибка хранилища или индекса"
//	@Router			/index/rebuild [post]
func (p *ProductHandler) rebuild(w http.ResponseWriter, r *http.Request) {
	res, err := p.productUsecase.Rebuild(r.Context())
	if err != nil {
		p.fail(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, rebuildResponse{
		Products:   res.Products,
		Indexed:    res.Indexed,
		Failed:     res.Failed,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// serveImage отдаёт файл изображения по относительному пути из выдачи поиска.
func (p *ProductHandler) serveImage(w http.ResponseWriter, r *http.Request) {
	data, err := p.productUsecase.ReadImage(r.Context(), chi.URLParam(r, "productID"), chi.URLParam(r, "filename"))
	if err != nil {
		p.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (p *ProductHandler) readUpload(w http.ResponseWriter, r *http.Request, maxCount int) ([]usecase.ProductImage, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, p.maxFileSize*int64(maxCount)+maxMemory)

	if err := ensureMultipartForm(r, maxMemory); err != nil {
		p.fail(w, r, err)
		return nil, false
	}

	files := r.MultipartForm.File["file"]
	files = append(files, r.MultipartForm.File["images"]...)

	images, err := parseImages(files, maxCount, p.maxFileSize)
	if err != nil {
		p.fail(w, r, err)
		return nil, false
	}

	return images, true
}

func (p *ProductHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, _ := ToHTTPResponse(err)
	if code >= http.StatusInternalServerError {
		p.logger.Errorf(err, "%s %s: %d", r.Method, r.URL.Path, code)
	} else {
		p.logger.Warnf("%s %s: %d %s", r.Method, r.URL.Path, code, err.Error())
	}

	WriteError(w, err)
}
