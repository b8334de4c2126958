package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/internal/metrics"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize     = 64
	defaultMaxConcurrent = 4
)

// Snapshot: результат сканирования хранилища: новый каталог и подготовленные записи индекса.
type Snapshot struct {
	Catalog *Catalog
	Entries []domain.IndexEntry
	Failed  int
}

// vectorizer декодирует изображение и получает его эмбеддинг с проверкой размерности и нормы.
type vectorizer struct {
	decoder  ImageDecoder
	embedder Embedder
}

func (v *vectorizer) vectorize(ctx context.Context, data []byte) ([]float32, error) {
	img, err := v.decoder.Decode(data)
	if err != nil {
		if errors.Is(err, e.ErrDecodeFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", e.ErrDecodeFailure, err)
	}

	return v.embed(ctx, img)
}

func (v *vectorizer) embed(ctx context.Context, img *domain.DecodedImage) ([]float32, error) {
	vec, err := v.embedder.Embed(ctx, img)
	if err != nil {
		if errors.Is(err, e.ErrEmbeddingFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", e.ErrEmbeddingFailure, err)
	}

	if len(vec) != v.embedder.Dimension() {
		return nil, fmt.Errorf("%w: %w: got %d, want %d",
			e.ErrEmbeddingFailure, e.ErrDimensionMismatch, len(vec), v.embedder.Dimension())
	}

	unit, err := domain.Normalize(vec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", e.ErrEmbeddingFailure, err)
	}

	return unit, nil
}

// IndexBuilder строит согласованную пару (каталог, индекс) по содержимому хранилища.
type IndexBuilder struct {
	storage       ImageStorage
	vec           *vectorizer
	logger        logger.Logger
	batchSize     int
	maxConcurrent int
}

func NewIndexBuilder(
	storage ImageStorage,
	decoder ImageDecoder,
	embedder Embedder,
	logger logger.Logger,
	batchSize int,
	maxConcurrent int,
) *IndexBuilder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	return &IndexBuilder{
		storage:       storage,
		vec:           &vectorizer{decoder: decoder, embedder: embedder},
		logger:        logger,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
	}
}

type scanResult struct {
	vector []float32
	err    error
}

// Scan обходит папки товаров и их файлы, считает эмбеддинги и возвращает снимок.
// Ошибка отдельного изображения логируется и не прерывает сканирование,
// ошибка перечисления хранилища прерывает его целиком.
func (b *IndexBuilder) Scan(ctx context.Context) (*Snapshot, error) {
	const op = "IndexBuilder.Scan"

	productIDs, err := b.storage.ListProducts(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	catalog := NewCatalog()
	var refs []domain.ImageRef
	for _, productID := range productIDs {
		catalog.AddProduct(productID)

		files, err := b.storage.ListImages(ctx, productID)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		for _, file := range files {
			refs = append(refs, domain.NewImageRef(productID, file))
		}
	}

	results := make([]scanResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrent)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.embedStored(gctx, ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, e.Wrap(op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	snap := &Snapshot{
		Catalog: catalog,
		Entries: make([]domain.IndexEntry, 0, len(refs)),
	}
	for i, ref := range refs {
		res := results[i]
		if res.err != nil {
			snap.Failed++
			metrics.EmbeddingFailures.WithLabelValues(failureStage(res.err)).Inc()
			b.logger.Warnf("%s: skipping %s: %v", op, ref.Path(), res.err)
			continue
		}

		catalog.AddImage(ref)
		snap.Entries = append(snap.Entries, *domain.NewIndexEntry(uuid.NewString(), res.vector, domain.NewPayload(ref)))
	}

	return snap, nil
}

func (b *IndexBuilder) embedStored(ctx context.Context, ref domain.ImageRef) scanResult {
	data, err := b.storage.ReadImage(ctx, ref.ProductID, ref.Filename)
	if err != nil {
		return scanResult{err: err}
	}

	vec, err := b.vec.vectorize(ctx, data)
	if err != nil {
		return scanResult{err: err}
	}

	return scanResult{vector: vec}
}

// Flush очищает индекс и заливает записи батчами по batchSize.
// Последний неполный батч заливается всегда.
func (b *IndexBuilder) Flush(ctx context.Context, index VectorIndex, entries []domain.IndexEntry) error {
	const op = "IndexBuilder.Flush"

	if err := index.Clear(ctx); err != nil {
		return e.Wrap(op, err)
	}

	for start := 0; start < len(entries); start += b.batchSize {
		end := min(start+b.batchSize, len(entries))
		if err := index.Insert(ctx, entries[start:end]...); err != nil {
			return e.Wrap(op, fmt.Errorf("batch [%d:%d]: %w", start, end, err))
		}
		b.logger.Debugf("%s: flushed batch [%d:%d]", op, start, end)
	}

	return nil
}

func failureStage(err error) string {
	switch {
	case errors.Is(err, e.ErrDecodeFailure):
		return "decode"
	case errors.Is(err, e.ErrEmbeddingFailure):
		return "embed"
	default:
		return "read"
	}
}
