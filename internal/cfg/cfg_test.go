package cfg

import (
	"testing"
	"time"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(logger.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, StorageFS, cfg.Storage.Backend)
	assert.Equal(t, IndexMemory, cfg.Index.Backend)
	assert.Equal(t, domain.MetricCosine, cfg.Index.Metric)
	assert.Equal(t, 64, cfg.Index.BatchSize)
	assert.Equal(t, 10, cfg.Index.OverFetchFactor)
	assert.Equal(t, 5, cfg.Index.PhotoCap)
	assert.Equal(t, MLThumbnail, cfg.Ml.Backend)
	assert.Equal(t, uint64(16*16*3), cfg.Index.VectorSize)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "8080", cfg.Http.Port)
	assert.False(t, cfg.Grpc.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("INDEX_BACKEND", "qdrant")
	t.Setenv("INDEX_METRIC", "euclid")
	t.Setenv("ML_BACKEND", "grpc")
	t.Setenv("INDEX_VECTOR_SIZE", "512")
	t.Setenv("INDEX_BATCH_SIZE", "32")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_SEARCH_TTL", "30s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("GRPC_PORT", "9090")

	cfg, err := Load(logger.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, IndexQdrant, cfg.Index.Backend)
	assert.Equal(t, domain.MetricEuclidean, cfg.Index.Metric)
	assert.Equal(t, uint64(512), cfg.Index.VectorSize)
	assert.Equal(t, 32, cfg.Index.BatchSize)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Redis.SearchTTL)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Grpc.Enabled())
	assert.Equal(t, "tcp", cfg.Grpc.NetworkMode)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown storage backend", "STORAGE_BACKEND", "ftp"},
		{"unknown index backend", "INDEX_BACKEND", "faiss"},
		{"unknown metric", "INDEX_METRIC", "manhattan"},
		{"non-numeric batch size", "INDEX_BATCH_SIZE", "many"},
		{"zero photo cap", "INDEX_PHOTO_CAP", "0"},
		{"bad duration", "ML_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load(logger.NewNopLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MinioRequiresCredentials(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "minio")

	_, err := Load(logger.NewNopLogger())
	require.Error(t, err)

	t.Setenv("MINIO_ROOT_USER", "user")
	t.Setenv("MINIO_ROOT_PASSWORD", "password")

	cfg, err := Load(logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "catalog", cfg.Minio.BucketName)
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("SOME_INT", "x")

	_, err := parseIntEnv("SOME_INT", 1)
	assert.ErrorIs(t, err, e.ErrIncorrectEnvVariable)
}
