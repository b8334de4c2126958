package qdrant

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/clients"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadProductID = "product_id"
	payloadImagePath = "image_path"
)

// EmbeddingRepo: векторный индекс поверх коллекции Qdrant.
// Score в выдаче — в единицах метрики коллекции: косинусная близость или евклидово расстояние.
type EmbeddingRepo struct {
	client *clients.QdrantClient
}

func NewEmbeddingRepo(client *clients.QdrantClient) *EmbeddingRepo {
	return &EmbeddingRepo{
		client: client,
	}
}

// Insert сохраняет записи и дожидается их применения. Id записей — UUID.
func (q *EmbeddingRepo) Insert(ctx context.Context, entries ...domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(entries))
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, entry := range entries {
		if uint64(len(entry.Vector)) != q.client.VectorSize {
			return e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: entry %s has %d, collection has %d",
				e.ErrDimensionMismatch, entry.ID, len(entry.Vector), q.client.VectorSize))
		}
		if _, ok := seen[entry.ID]; ok {
			return e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %s", e.ErrDuplicateEntry, entry.ID))
		}
		seen[entry.ID] = struct{}{}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(entry.ID),
			Vectors: qdrant.NewVectors(entry.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadProductID: entry.Payload.ProductID,
				payloadImagePath: entry.Payload.ImagePath,
			}),
		})
	}

	wait := true
	_, err := q.client.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.client.Collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (q *EmbeddingRepo) Search(ctx context.Context, vector []float32, limit int) ([]domain.Hit, error) {
	if uint64(len(vector)) != q.client.VectorSize {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: query has %d, collection has %d",
			e.ErrDimensionMismatch, len(vector), q.client.VectorSize))
	}
	if limit <= 0 {
		return []domain.Hit{}, nil
	}

	l := uint64(limit)
	resp, err := q.client.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.client.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &l,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	// непустая коллекция всегда возвращает хотя бы одну точку
	if len(resp) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrIndexEmpty)
	}

	return toHits(resp), nil
}

func (q *EmbeddingRepo) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	wait := true
	_, err := q.client.Client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.client.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           &wait,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Clear пересоздаёт коллекцию: это быстрее удаления всех точек и сбрасывает HNSW-граф.
func (q *EmbeddingRepo) Clear(ctx context.Context) error {
	exists, err := q.client.Client.CollectionExists(ctx, q.client.Collection)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if exists {
		if err := q.client.Client.DeleteCollection(ctx, q.client.Collection); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	if err := clients.EnsureCollection(ctx, q.client); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (q *EmbeddingRepo) Size(ctx context.Context) (int, error) {
	exact := true
	count, err := q.client.Client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.client.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return int(count), nil
}

func (q *EmbeddingRepo) Metric() domain.Metric {
	return q.client.Metric
}

func toHits(points []*qdrant.ScoredPoint) []domain.Hit {
	hits := make([]domain.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, domain.Hit{
			ID:    pointID(p.GetId()),
			Score: p.GetScore(),
			Payload: domain.Payload{
				ProductID: p.GetPayload()[payloadProductID].GetStringValue(),
				ImagePath: p.GetPayload()[payloadImagePath].GetStringValue(),
			},
		})
	}

	return hits
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}

	return fmt.Sprintf("%d", id.GetNum())
}
