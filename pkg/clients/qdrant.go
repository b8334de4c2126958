package clients

import (
	"context"
	"fmt"

	config "github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

type QdrantClient struct {
	Client     *qdrant.Client
	Collection string
	VectorSize uint64
	Metric     domain.Metric
}

func NewQdrantClient(cfg *config.QdrantCfg, index *config.IndexCfg) (*QdrantClient, error) {
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.ApiKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &QdrantClient{
		Client:     qdrantClient,
		Collection: cfg.QdrantCollectionName,
		VectorSize: index.VectorSize,
		Metric:     index.Metric,
	}, nil
}

// EnsureCollection создаёт коллекцию с размерностью и метрикой индекса, если её ещё нет.
func EnsureCollection(ctx context.Context, client *QdrantClient) error {
	exists, err := client.Client.CollectionExists(ctx, client.Collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		if err := client.Client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: client.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     client.VectorSize,
				Distance: QdrantDistance(client.Metric),
			}),
		}); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	return nil
}

// QdrantDistance переводит метрику индекса в метрику коллекции Qdrant.
func QdrantDistance(metric domain.Metric) qdrant.Distance {
	if metric == domain.MetricEuclidean {
		return qdrant.Distance_Euclid
	}

	return qdrant.Distance_Cosine
}
