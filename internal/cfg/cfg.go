package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

const (
	StorageFS    = "fs"
	StorageMinio = "minio"

	IndexMemory = "memory"
	IndexQdrant = "qdrant"

	MLGRPC      = "grpc"
	MLThumbnail = "thumbnail"
)

type Config struct {
	Storage *StorageCfg
	Index   *IndexCfg
	Minio   *MinIOCfg
	Qdrant  *QdrantCfg
	Redis   *RedisCfg
	Kafka   *KafkaCfg
	Ml      *MLServiceCfg
	Http    *HTTPConfig
	Grpc    *GRPCConfig
	Log     *LogCfg
}

type StorageCfg struct {
	Backend        string // fs или minio
	Root           string // корневая папка каталога для fs
	MaxUploadBytes int64  // лимит размера одного загружаемого файла
}

type IndexCfg struct {
	Backend         string // memory или qdrant
	Metric          domain.Metric
	VectorSize      uint64
	BatchSize       int
	OverFetchFactor int
	PhotoCap        int
	MaxConcurrent   int // параллельность эмбеддинга при перестроении
}

type MinIOCfg struct {
	MinioEndpoint     string // Адрес конечной точки Minio
	BucketName        string // Название бакета каталога
	MinioRootUser     string
	MinioRootPassword string
	MinioUseSSL       bool
}

type QdrantCfg struct {
	Port                 int
	Host                 string
	ApiKey               string
	QdrantCollectionName string
	UseTLS               bool
}

// RedisCfg: кэш результатов поиска. Пустой Addr отключает кэш.
type RedisCfg struct {
	Addr         string
	Password     string
	User         string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SearchTTL    time.Duration
}

func (c *RedisCfg) Enabled() bool {
	return c != nil && c.Addr != ""
}

// KafkaCfg: публикация событий каталога. Пустой список брокеров отключает события.
type KafkaCfg struct {
	Topic             string
	Brokers           []string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

func (c *KafkaCfg) Enabled() bool {
	return c != nil && len(c.Brokers) > 0
}

type MLServiceCfg struct {
	Backend       string // grpc или thumbnail
	Addr          string
	MaxConcurrent int
	MaxRetries    int
	Timeout       time.Duration
	ThumbnailSide int // сторона миниатюры для локального эмбеддера

	BreakerFailures uint32 // транспортных ошибок подряд до размыкания цепи
	BreakerTimeout  time.Duration
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// GRPCConfig: gRPC-интерфейс поиска. Пустой Port отключает сервер.
type GRPCConfig struct {
	Port        string
	NetworkMode string
}

func (c *GRPCConfig) Enabled() bool {
	return c != nil && c.Port != ""
}

type LogCfg struct {
	Level string
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	storage, err := loadStorageCfg()
	if err != nil {
		log.Errorf(err, "invalid storage config")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ml, err := loadMLServiceCfg()
	if err != nil {
		log.Errorf(err, "invalid ml config")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	index, err := loadIndexCfg(ml)
	if err != nil {
		log.Errorf(err, "invalid index config")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(storage)
	if err != nil {
		log.Errorf(err, "invalid minio config")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrant, err := loadQdrantCfg(index)
	if err != nil {
		log.Errorf(err, "invalid qdrant config")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg()
	if err != nil {
		log.Errorf(err, "invalid redis config")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		log.Errorf(err, "invalid kafka config")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig()
	if err != nil {
		log.Errorf(err, "invalid http config")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Storage: storage,
		Index:   index,
		Minio:   minio,
		Qdrant:  qdrant,
		Redis:   redis,
		Kafka:   kafka,
		Ml:      ml,
		Http:    http,
		Grpc: &GRPCConfig{
			Port:        getEnv("GRPC_PORT"),
			NetworkMode: getEnvOrDefault("GRPC_NETWORK_MODE", "tcp"),
		},
		Log: &LogCfg{Level: getEnvOrDefault("LOG_LEVEL", "info")},
	}, nil
}

func loadStorageCfg() (*StorageCfg, error) {
	const (
		defaultBackend        = StorageFS
		defaultRoot           = "./catalog"
		defaultMaxUploadBytes = 10 << 20
	)

	backend := strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", defaultBackend))
	if backend != StorageFS && backend != StorageMinio {
		return nil, envError("STORAGE_BACKEND", backend)
	}

	maxUpload, err := parseIntEnv("STORAGE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil || maxUpload <= 0 {
		return nil, envError("STORAGE_MAX_UPLOAD_BYTES", os.Getenv("STORAGE_MAX_UPLOAD_BYTES"))
	}

	return &StorageCfg{
		Backend:        backend,
		Root:           getEnvOrDefault("STORAGE_ROOT", defaultRoot),
		MaxUploadBytes: int64(maxUpload),
	}, nil
}

func loadIndexCfg(ml *MLServiceCfg) (*IndexCfg, error) {
	const (
		defaultBackend         = IndexMemory
		defaultMetric          = "cosine"
		defaultVectorSize      = 768
		defaultBatchSize       = 64
		defaultOverFetchFactor = 10
		defaultPhotoCap        = 5
		defaultMaxConcurrent   = 4
	)

	backend := strings.ToLower(getEnvOrDefault("INDEX_BACKEND", defaultBackend))
	if backend != IndexMemory && backend != IndexQdrant {
		return nil, envError("INDEX_BACKEND", backend)
	}

	metric, err := domain.ParseMetric(getEnvOrDefault("INDEX_METRIC", defaultMetric))
	if err != nil {
		return nil, e.Wrap("INDEX_METRIC", err)
	}

	// у локального эмбеддера размерность определяется стороной миниатюры
	vectorSize := defaultVectorSize
	if ml.Backend == MLThumbnail {
		vectorSize = ml.ThumbnailSide * ml.ThumbnailSide * 3
	}

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"INDEX_VECTOR_SIZE", &vectorSize, vectorSize},
		{"INDEX_BATCH_SIZE", new(int), defaultBatchSize},
		{"INDEX_OVERFETCH_FACTOR", new(int), defaultOverFetchFactor},
		{"INDEX_PHOTO_CAP", new(int), defaultPhotoCap},
		{"INDEX_MAX_CONCURRENT", new(int), defaultMaxConcurrent},
	}
	for _, v := range ints {
		n, err := parseIntEnv(v.key, v.def)
		if err != nil || n <= 0 {
			return nil, envError(v.key, os.Getenv(v.key))
		}
		*v.dst = n
	}

	return &IndexCfg{
		Backend:         backend,
		Metric:          metric,
		VectorSize:      uint64(vectorSize),
		BatchSize:       *ints[1].dst,
		OverFetchFactor: *ints[2].dst,
		PhotoCap:        *ints[3].dst,
		MaxConcurrent:   *ints[4].dst,
	}, nil
}

func loadMinIOCfg(storage *StorageCfg) (*MinIOCfg, error) {
	const (
		defaultUseSSL   = false
		defaultEndpoint = "minio:9000"
		defaultBucket   = "catalog"
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		return nil, e.Wrap("MINIO_USE_SSL", err)
	}

	cfg := &MinIOCfg{
		MinioEndpoint:     getEnvOrDefault("MINIO_ENDPOINT", defaultEndpoint),
		BucketName:        getEnvOrDefault("BUCKET_NAME", defaultBucket),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
	}

	if storage.Backend == StorageMinio && (cfg.MinioRootUser == "" || cfg.MinioRootPassword == "") {
		return nil, fmt.Errorf("MINIO_ROOT_USER and MINIO_ROOT_PASSWORD are required for minio storage")
	}

	return cfg, nil
}

func loadQdrantCfg(index *IndexCfg) (*QdrantCfg, error) {
	const (
		defaultHost           = "localhost"
		defaultQdrantGRPCPort = 6334
		defaultUseTLS         = false
		defaultCollection     = "product_images"
	)

	port, err := parseIntEnv("QDRANT_GRPC_PORT", defaultQdrantGRPCPort)
	if err != nil {
		return nil, envError("QDRANT_GRPC_PORT", os.Getenv("QDRANT_GRPC_PORT"))
	}

	useTLS, err := strconv.ParseBool(getEnvOrDefault("QDRANT_USE_TLS", strconv.FormatBool(defaultUseTLS)))
	if err != nil {
		return nil, e.Wrap("QDRANT_USE_TLS", err)
	}

	cfg := &QdrantCfg{
		Host:                 getEnvOrDefault("QDRANT_HOST", defaultHost),
		Port:                 port,
		ApiKey:               getEnv("QDRANT__SERVICE__API_KEY"),
		QdrantCollectionName: getEnvOrDefault("COLLECTION_NAME", defaultCollection),
		UseTLS:               useTLS,
	}

	return cfg, nil
}

func loadRedisCfg() (*RedisCfg, error) {
	const (
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultSearchTTL    = 5 * time.Minute
	)

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		return nil, envError("REDIS_DB_ID", os.Getenv("REDIS_DB_ID"))
	}

	maxRetries, err := parseIntEnv("REDIS_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		return nil, envError("REDIS_MAX_RETRIES", os.Getenv("REDIS_MAX_RETRIES"))
	}

	dialTimeout, err := parseDurationEnv("REDIS_DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		return nil, e.Wrap("REDIS_DIAL_TIMEOUT", err)
	}

	readTimeout, err := parseDurationEnv("REDIS_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		return nil, e.Wrap("REDIS_READ_TIMEOUT", err)
	}

	writeTimeout, err := parseDurationEnv("REDIS_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		return nil, e.Wrap("REDIS_WRITE_TIMEOUT", err)
	}

	searchTTL, err := parseDurationEnv("REDIS_SEARCH_TTL", defaultSearchTTL)
	if err != nil {
		return nil, e.Wrap("REDIS_SEARCH_TTL", err)
	}

	return &RedisCfg{
		Addr:         getEnv("REDIS_ADDR"),
		Password:     getEnv("REDIS_PASSWORD"),
		User:         getEnv("REDIS_USER"),
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		SearchTTL:    searchTTL,
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultTopic             = "catalog-events"
		defaultPartitions        = 3
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
	)

	var brokers []string
	for _, b := range strings.Split(getEnv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, envError("KAFKA_PARTITIONS", os.Getenv("KAFKA_PARTITIONS"))
	}

	replicationFactor, err := parseIntEnv("KAFKA_REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, envError("KAFKA_REPLICATION_FACTOR", os.Getenv("KAFKA_REPLICATION_FACTOR"))
	}

	return &KafkaCfg{
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

func loadMLServiceCfg() (*MLServiceCfg, error) {
	const (
		defaultBackend       = MLThumbnail
		defaultHost          = "ml-service"
		defaultPort          = "50051"
		defaultMaxConcurrent = 8
		defaultMaxRetries    = 3
		defaultTimeout       = 10 * time.Second
		defaultThumbnailSide = 16

		defaultBreakerFailures = 5
		defaultBreakerTimeout  = 30 * time.Second
	)

	backend := strings.ToLower(getEnvOrDefault("ML_BACKEND", defaultBackend))
	if backend != MLGRPC && backend != MLThumbnail {
		return nil, envError("ML_BACKEND", backend)
	}

	addr := getEnv("ML_ADDR")
	if addr == "" {
		addr = getEnvOrDefault("ML_HOST", defaultHost) + ":" + getEnvOrDefault("ML_PORT", defaultPort)
	}

	maxConcurrent, err := parseIntEnv("ML_MAX_CONCURRENT", defaultMaxConcurrent)
	if err != nil || maxConcurrent <= 0 {
		return nil, envError("ML_MAX_CONCURRENT", os.Getenv("ML_MAX_CONCURRENT"))
	}

	maxRetries, err := parseIntEnv("ML_MAX_RETRIES", defaultMaxRetries)
	if err != nil || maxRetries < 0 {
		return nil, envError("ML_MAX_RETRIES", os.Getenv("ML_MAX_RETRIES"))
	}

	timeout, err := parseDurationEnv("ML_TIMEOUT", defaultTimeout)
	if err != nil {
		return nil, e.Wrap("ML_TIMEOUT", err)
	}

	side, err := parseIntEnv("ML_THUMBNAIL_SIDE", defaultThumbnailSide)
	if err != nil || side <= 0 {
		return nil, envError("ML_THUMBNAIL_SIDE", os.Getenv("ML_THUMBNAIL_SIDE"))
	}

	breakerFailures, err := parseIntEnv("ML_BREAKER_FAILURES", defaultBreakerFailures)
	if err != nil || breakerFailures <= 0 {
		return nil, envError("ML_BREAKER_FAILURES", os.Getenv("ML_BREAKER_FAILURES"))
	}

	breakerTimeout, err := parseDurationEnv("ML_BREAKER_TIMEOUT", defaultBreakerTimeout)
	if err != nil {
		return nil, e.Wrap("ML_BREAKER_TIMEOUT", err)
	}

	return &MLServiceCfg{
		Backend:         backend,
		Addr:            addr,
		MaxConcurrent:   maxConcurrent,
		MaxRetries:      maxRetries,
		Timeout:         timeout,
		ThumbnailSide:   side,
		BreakerFailures: uint32(breakerFailures),
		BreakerTimeout:  breakerTimeout,
	}, nil
}

func loadHTTPConfig() (*HTTPConfig, error) {
	const (
		defaultPort         = "8080"
		defaultReadTimeout  = 15 * time.Second
		defaultWriteTimeout = 60 * time.Second
		defaultIdleTimeout  = 60 * time.Second
	)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		return nil, e.Wrap("HTTP_READ_TIMEOUT", err)
	}

	// перестроение по запросу удаления может идти долго
	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		return nil, e.Wrap("HTTP_WRITE_TIMEOUT", err)
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		return nil, e.Wrap("KEEP_ALIVE", err)
	}

	return &HTTPConfig{
		Port:         getEnvOrDefault("HTTP_PORT", defaultPort),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

func envError(key, value string) error {
	return fmt.Errorf("%w: %s=%q", e.ErrIncorrectEnvVariable, key, value)
}
