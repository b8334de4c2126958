package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/internal/metrics"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/google/uuid"
)

const (
	DefaultOverFetchFactor = 10
	DefaultPhotoCap        = 5
)

// Options: параметры поиска.
type Options struct {
	OverFetchFactor int
	PhotoCap        int
}

func NewOptions(overFetchFactor int, photoCap int) Options {
	if overFetchFactor <= 0 {
		overFetchFactor = DefaultOverFetchFactor
	}
	if photoCap <= 0 {
		photoCap = DefaultPhotoCap
	}

	return Options{
		OverFetchFactor: overFetchFactor,
		PhotoCap:        photoCap,
	}
}

// ProductUseCase владеет каталогом и векторным индексом как единым целым.
//
// mutateMu сериализует все изменяющие операции (перестроение, добавление и удаление).
// stateMu защищает пару (каталог, индекс): поиск берёт RLock, а очистка, заливка
// и подмена каталога выполняются под Lock, поэтому наполовину перестроенный индекс
// никогда не виден читателям.
type ProductUseCase struct {
	storage ImageStorage
	index   VectorIndex
	builder *IndexBuilder
	vec     *vectorizer
	cache   CacheRepository
	events  EventPublisher
	logger  logger.Logger
	opts    Options

	mutateMu sync.Mutex
	stateMu  sync.RWMutex

	catalog    *Catalog
	stale      bool
	epoch      string
	generation uint64
}

// NewProductUC собирает сервис. cache и events необязательны (nil отключает).
func NewProductUC(
	storage ImageStorage,
	index VectorIndex,
	builder *IndexBuilder,
	decoder ImageDecoder,
	embedder Embedder,
	cache CacheRepository,
	events EventPublisher,
	logger logger.Logger,
	opts Options,
) *ProductUseCase {
	return &ProductUseCase{
		storage: storage,
		index:   index,
		builder: builder,
		vec:     &vectorizer{decoder: decoder, embedder: embedder},
		cache:   cache,
		events:  events,
		logger:  logger,
		opts:    NewOptions(opts.OverFetchFactor, opts.PhotoCap),
		catalog: NewCatalog(),
		epoch:   uuid.NewString()[:8],
	}
}

// CreateProduct создаёт пустой товар и его папку в хранилище.
func (p *ProductUseCase) CreateProduct(ctx context.Context) (string, error) {
	const op = "ProductUseCase.CreateProduct"

	productID := uuid.NewString()

	p.mutateMu.Lock()
	defer p.mutateMu.Unlock()

	if err := p.storage.CreateProduct(ctx, productID); err != nil {
		return "", e.Wrap(op, err)
	}

	p.stateMu.Lock()
	p.catalog.AddProduct(productID)
	p.stateMu.Unlock()

	p.publish(ctx, NewCatalogEvent(EventProductCreated, productID, ""))
	p.logger.Infof("%s: product %s created", op, productID)

	return productID, nil
}

// AddImage сохраняет изображение товара и добавляет его в индекс без полного перестроения.
// Эмбеддинг считается до записи файла, поэтому ошибка декодирования не оставляет файлов.
func (p *ProductUseCase) AddImage(ctx context.Context, productID string, img *ProductImage) (domain.ImageRef, error) {
	const op = "ProductUseCase.AddImage"

	if img == nil || len(img.Data) == 0 {
		return domain.ImageRef{}, e.Wrap(op, e.ErrNoImages)
	}
	if !domain.ValidName(productID) || !p.hasProduct(productID) {
		return domain.ImageRef{}, e.Wrap(op, e.ErrProductNotFound)
	}

	vector, err := p.vec.vectorize(ctx, img.Data)
	if err != nil {
		return domain.ImageRef{}, e.Wrap(op, err)
	}

	p.mutateMu.Lock()
	defer p.mutateMu.Unlock()

	// каталог меняется только под mutateMu, поэтому повторная проверка актуальна
	if !p.hasProduct(productID) {
		return domain.ImageRef{}, e.Wrap(op, e.ErrProductNotFound)
	}

	ref := domain.NewImageRef(productID, newImageFilename(img.Name))
	if err := p.storage.WriteImage(ctx, ref.ProductID, ref.Filename, img.Data); err != nil {
		return domain.ImageRef{}, e.Wrap(op, err)
	}

	entry := domain.NewIndexEntry(uuid.NewString(), vector, domain.NewPayload(ref))

	p.stateMu.Lock()
	if err := p.index.Insert(ctx, *entry); err != nil {
		// удалённый индекс мог применить запись, несмотря на ошибку (например, таймаут)
		if delErr := p.index.Delete(ctx, entry.ID); delErr != nil {
			p.logger.Warnf("%s: failed to roll back entry %s: %v", op, entry.ID, delErr)
		}
		p.stateMu.Unlock()
		if rmErr := p.storage.RemoveImage(ctx, ref.ProductID, ref.Filename); rmErr != nil {
			p.logger.Warnf("%s: failed to remove %s after index error, next rebuild will pick it up: %v",
				op, ref.Path(), rmErr)
		}
		return domain.ImageRef{}, e.Wrap(op, err)
	}
	p.catalog.AddImage(ref)
	p.generation++
	p.stateMu.Unlock()

	metrics.IndexedImages.Inc()
	p.publish(ctx, NewCatalogEvent(EventImageAdded, productID, ref.Path()))

	return ref, nil
}

// RemoveImage удаляет файл изображения и перестраивает индекс.
func (p *ProductUseCase) RemoveImage(ctx context.Context, productID string, filename string) error {
	const op = "ProductUseCase.RemoveImage"

	if !domain.ValidName(productID) {
		return e.Wrap(op, e.ErrProductNotFound)
	}
	if !domain.ValidName(filename) {
		return e.Wrap(op, e.ErrImageNotFound)
	}

	p.mutateMu.Lock()
	defer p.mutateMu.Unlock()

	if !p.hasProduct(productID) {
		return e.Wrap(op, e.ErrProductNotFound)
	}

	exists, err := p.storage.ImageExists(ctx, productID, filename)
	if err != nil {
		return e.Wrap(op, err)
	}
	if !exists {
		return e.Wrap(op, e.ErrImageNotFound)
	}

	if err := p.storage.RemoveImage(ctx, productID, filename); err != nil {
		_ = p.resyncLocked(ctx)
		return e.Wrap(op, err)
	}

	if err := p.resyncLocked(ctx); err != nil {
		return e.Wrap(op, err)
	}

	p.publish(ctx, NewCatalogEvent(EventImageRemoved, productID, domain.NewImageRef(productID, filename).Path()))

	return nil
}

// RemoveProduct удаляет товар со всеми изображениями и перестраивает индекс.
func (p *ProductUseCase) RemoveProduct(ctx context.Context, productID string) error {
	const op = "ProductUseCase.RemoveProduct"

	if !domain.ValidName(productID) {
		return e.Wrap(op, e.ErrProductNotFound)
	}

	p.mutateMu.Lock()
	defer p.mutateMu.Unlock()

	if !p.hasProduct(productID) {
		return e.Wrap(op, e.ErrProductNotFound)
	}

	if err := p.storage.RemoveProduct(ctx, productID); err != nil {
		// часть объектов товара могла уже исчезнуть
		_ = p.resyncLocked(ctx)
		return e.Wrap(op, err)
	}

	if err := p.resyncLocked(ctx); err != nil {
		return e.Wrap(op, err)
	}

	p.publish(ctx, NewCatalogEvent(EventProductRemoved, productID, ""))

	return nil
}

// Rebuild полностью пересобирает каталог и индекс из хранилища.
func (p *ProductUseCase) Rebuild(ctx context.Context) (*RebuildRes, error) {
	const op = "ProductUseCase.Rebuild"

	p.mutateMu.Lock()
	defer p.mutateMu.Unlock()

	res, err := p.rebuildLocked(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return res, nil
}

// resyncLocked перестраивает индекс после изменения хранилища. Отмена запроса
// не прерывает перестроение: файлы уже удалены. Если перестроить не удалось,
// индекс помечается устаревшим до следующего успешного перестроения.
func (p *ProductUseCase) resyncLocked(ctx context.Context) error {
	const op = "ProductUseCase.resync"

	if _, err := p.rebuildLocked(context.WithoutCancel(ctx)); err != nil {
		p.stateMu.Lock()
		p.stale = true
		p.generation++
		p.stateMu.Unlock()

		p.logger.Errorf(err, "%s: index left stale", op)
		return err
	}

	return nil
}

// rebuildLocked вызывается под mutateMu. Эмбеддинги считаются без stateMu,
// так что поиск продолжает обслуживаться по старому состоянию.
func (p *ProductUseCase) rebuildLocked(ctx context.Context) (*RebuildRes, error) {
	const op = "ProductUseCase.rebuild"
	start := time.Now()

	snap, err := p.builder.Scan(ctx)
	if err != nil {
		metrics.Rebuilds.WithLabelValues("failed").Inc()
		return nil, e.Wrap(op, err)
	}

	p.stateMu.Lock()
	flushErr := p.builder.Flush(ctx, p.index, snap.Entries)
	p.catalog = snap.Catalog
	p.stale = flushErr != nil
	p.generation++
	p.stateMu.Unlock()

	if flushErr != nil {
		metrics.Rebuilds.WithLabelValues("failed").Inc()
		p.logger.Errorf(flushErr, "%s: index left stale", op)
		return nil, e.Wrap(op, flushErr)
	}

	res := NewRebuildRes(snap.Catalog.Len(), len(snap.Entries), snap.Failed, time.Since(start))
	metrics.Rebuilds.WithLabelValues("ok").Inc()
	metrics.RebuildDuration.Observe(res.Duration.Seconds())
	metrics.IndexedImages.Set(float64(res.Indexed))
	p.logger.Infof("%s: %d products, %d images indexed, %d skipped in %v",
		op, res.Products, res.Indexed, res.Failed, res.Duration)

	ev := NewCatalogEvent(EventIndexRebuilt, "", "")
	ev.Indexed = res.Indexed
	p.publish(ctx, ev)

	return res, nil
}

// Search ищет товары, изображения которых ближе всего к присланному фото.
func (p *ProductUseCase) Search(ctx context.Context, req *SearchReq) ([]ProductMatch, error) {
	const op = "ProductUseCase.Search"

	if req == nil || req.Image == nil || len(req.Image.Data) == 0 {
		return nil, e.Wrap(op, e.ErrNoImages)
	}
	if req.K <= 0 {
		return nil, e.Wrap(op, e.ErrInvalidK)
	}

	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	vector, err := p.vec.vectorize(ctx, req.Image.Data)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	if p.stale {
		return nil, e.Wrap(op, e.ErrIndexStale)
	}

	size, err := p.index.Size(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if size == 0 {
		return nil, e.Wrap(op, e.ErrIndexEmpty)
	}

	key := p.searchCacheKey(req)
	if matches, ok := p.cachedSearch(ctx, key); ok {
		return matches, nil
	}

	hits, err := p.index.Search(ctx, vector, overFetchLimit(req.K, p.opts.OverFetchFactor, size))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	matches := RankProducts(hits, p.index.Metric(), req.K, p.opts.PhotoCap)
	p.storeSearch(ctx, key, matches)

	return matches, nil
}

// GetProduct возвращает товар из каталога.
func (p *ProductUseCase) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	const op = "ProductUseCase.GetProduct"

	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	product, ok := p.catalog.Product(productID)
	if !ok {
		return nil, e.Wrap(op, e.ErrProductNotFound)
	}

	return product, nil
}

// ListProducts возвращает все товары каталога.
func (p *ProductUseCase) ListProducts(ctx context.Context) ([]domain.Product, error) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	return p.catalog.Products(), nil
}

// ReadImage читает файл изображения товара из хранилища.
func (p *ProductUseCase) ReadImage(ctx context.Context, productID string, filename string) ([]byte, error) {
	const op = "ProductUseCase.ReadImage"

	if !domain.ValidName(productID) || !p.hasProduct(productID) {
		return nil, e.Wrap(op, e.ErrProductNotFound)
	}
	if !domain.ValidName(filename) {
		return nil, e.Wrap(op, e.ErrImageNotFound)
	}

	data, err := p.storage.ReadImage(ctx, productID, filename)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return data, nil
}

func (p *ProductUseCase) hasProduct(productID string) bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	return p.catalog.HasProduct(productID)
}

// searchCacheKey строится по поколению индекса, поэтому любое изменение каталога
// делает старые ключи недостижимыми. Вызывается под stateMu.
func (p *ProductUseCase) searchCacheKey(req *SearchReq) string {
	sum := sha256.Sum256(req.Image.Data)
	return fmt.Sprintf("search:%s:%d:%d:%s", p.epoch, p.generation, req.K, hex.EncodeToString(sum[:]))
}

func (p *ProductUseCase) cachedSearch(ctx context.Context, key string) ([]ProductMatch, bool) {
	if p.cache == nil {
		return nil, false
	}

	matches, ok, err := p.cache.GetSearch(ctx, key)
	if err != nil {
		p.logger.Warnf("search cache get failed: %v", err)
		metrics.SearchCache.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		metrics.SearchCache.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.SearchCache.WithLabelValues("hit").Inc()
	return matches, true
}

func (p *ProductUseCase) storeSearch(ctx context.Context, key string, matches []ProductMatch) {
	if p.cache == nil {
		return
	}

	if err := p.cache.SetSearch(ctx, key, matches); err != nil {
		p.logger.Warnf("search cache set failed: %v", err)
	}
}

// publish отправляет событие, не влияя на результат операции: изменение уже записано.
func (p *ProductUseCase) publish(ctx context.Context, event *CatalogEvent) {
	if p.events == nil {
		return
	}

	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warnf("failed to publish %s event: %v", event.Type, err)
	}
}

// newImageFilename строит имя файла "<uuid hex>_<базовое имя загрузки>".
func newImageFilename(original string) string {
	name := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		name = "image"
	}

	return strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + name
}
