package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/photo-search/internal/cfg"
	v1Grpc "github.com/DRSN-tech/photo-search/internal/delivery/v1/grpc"
	v1Http "github.com/DRSN-tech/photo-search/internal/delivery/v1/http"
	"github.com/DRSN-tech/photo-search/internal/infrastructure/imaging"
	"github.com/DRSN-tech/photo-search/internal/infrastructure/kafka"
	ml_service "github.com/DRSN-tech/photo-search/internal/infrastructure/ml-service"
	"github.com/DRSN-tech/photo-search/internal/repository/localfs"
	"github.com/DRSN-tech/photo-search/internal/repository/memory"
	s3Repo "github.com/DRSN-tech/photo-search/internal/repository/minio"
	qdrantRepo "github.com/DRSN-tech/photo-search/internal/repository/qdrant"
	"github.com/DRSN-tech/photo-search/internal/repository/redis"
	"github.com/DRSN-tech/photo-search/internal/usecase"
	"github.com/DRSN-tech/photo-search/pkg/clients"
	"github.com/DRSN-tech/photo-search/pkg/closer"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	initTimeout     = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

type App struct {
	cfg       *config.Config
	logger    logger.Logger
	closer    *closer.Closer
	productUC *usecase.ProductUseCase
	httpSrv   *v1Http.Server
	grpcSrv   *v1Grpc.GRPCServer
}

// NewApp поднимает хранилище, индекс, эмбеддер и HTTP-сервер согласно конфигурации.
// Ресурсы регистрируются в closer в порядке создания и закрываются в обратном.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: log,
		closer: closer.NewCloser(0),
	}

	if err := a.init(); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := a.closer.Close(ctx); closeErr != nil {
			log.Warnf("cleanup after failed init: %v", closeErr)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return a, nil
}

func (a *App) init() error {
	storage, err := a.initStorage()
	if err != nil {
		return err
	}

	embedder, err := a.initEmbedder()
	if err != nil {
		return err
	}
	if uint64(embedder.Dimension()) != a.cfg.Index.VectorSize {
		a.logger.Warnf("embedder dimension %d differs from INDEX_VECTOR_SIZE %d, using %d",
			embedder.Dimension(), a.cfg.Index.VectorSize, embedder.Dimension())
		a.cfg.Index.VectorSize = uint64(embedder.Dimension())
	}

	index, err := a.initIndex()
	if err != nil {
		return err
	}

	cache, err := a.initCache()
	if err != nil {
		return err
	}

	publisher := a.initPublisher()

	decoder := imaging.NewDecoder(imaging.DefaultMaxPixels)
	builder := usecase.NewIndexBuilder(storage, decoder, embedder, a.logger,
		a.cfg.Index.BatchSize, a.cfg.Index.MaxConcurrent)

	a.productUC = usecase.NewProductUC(
		storage,
		index,
		builder,
		decoder,
		embedder,
		cache,
		publisher,
		a.logger,
		usecase.NewOptions(a.cfg.Index.OverFetchFactor, a.cfg.Index.PhotoCap),
	)

	r := chi.NewRouter()
	router := v1Http.NewRouter(r, a.logger)
	router.Init(a.productUC, a.cfg.Storage.MaxUploadBytes)
	a.httpSrv = v1Http.NewServer(r, a.cfg.Http)
	a.closer.Add("http server", a.httpSrv.Stop)

	if a.cfg.Grpc.Enabled() {
		a.grpcSrv = v1Grpc.NewGRPCServer(a.cfg.Grpc, a.cfg.Storage.MaxUploadBytes, a.logger)
		a.grpcSrv.RegisterServices(a.productUC)
		a.closer.Add("grpc server", a.grpcSrv.Stop)
	}

	return nil
}

func (a *App) initStorage() (usecase.ImageStorage, error) {
	if a.cfg.Storage.Backend == config.StorageFS {
		repo, err := localfs.NewImageRepo(a.cfg.Storage.Root)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		a.logger.Infof("catalog storage: %s", a.cfg.Storage.Root)
		return repo, nil
	}

	minioClient, err := clients.NewMinIOClient(a.cfg.Minio)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := clients.EnsureBucket(ctx, minioClient, a.cfg.Minio.BucketName); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	a.logger.Infof("catalog storage: minio %s/%s", a.cfg.Minio.MinioEndpoint, a.cfg.Minio.BucketName)
	return s3Repo.NewImageRepo(minioClient, a.cfg.Minio), nil
}

func (a *App) initEmbedder() (usecase.Embedder, error) {
	if a.cfg.Ml.Backend == config.MLThumbnail {
		a.logger.Infof("embedder: thumbnail %dx%d", a.cfg.Ml.ThumbnailSide, a.cfg.Ml.ThumbnailSide)
		return imaging.NewThumbnailEmbedder(a.cfg.Ml.ThumbnailSide), nil
	}

	conn, err := grpc.NewClient(
		a.cfg.Ml.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.Add("ml grpc conn", func(ctx context.Context) error { return conn.Close() })

	a.logger.Infof("embedder: ml-service %s", a.cfg.Ml.Addr)
	return ml_service.NewMLService(conn, a.cfg.Ml, int(a.cfg.Index.VectorSize), a.logger), nil
}

func (a *App) initIndex() (usecase.VectorIndex, error) {
	if a.cfg.Index.Backend == config.IndexMemory {
		a.logger.Infof("vector index: memory, metric %s", a.cfg.Index.Metric)
		return memory.NewVectorIndex(a.cfg.Index.Metric, int(a.cfg.Index.VectorSize)), nil
	}

	qdrantClient, err := clients.NewQdrantClient(a.cfg.Qdrant, a.cfg.Index)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.Add("qdrant", func(ctx context.Context) error { return qdrantClient.Client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := clients.EnsureCollection(ctx, qdrantClient); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	a.logger.Infof("vector index: qdrant collection %s, metric %s", qdrantClient.Collection, qdrantClient.Metric)
	return qdrantRepo.NewEmbeddingRepo(qdrantClient), nil
}

// initCache возвращает nil, если кэш не настроен.
func (a *App) initCache() (usecase.CacheRepository, error) {
	if !a.cfg.Redis.Enabled() {
		return nil, nil
	}

	redisClient := clients.NewRedisClient(a.cfg.Redis)
	a.closer.Add("redis", redisClient.Close)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := redisClient.WaitReady(ctx); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return redis.NewCacheRepo(redisClient, a.cfg.Redis, a.logger), nil
}

// initPublisher возвращает nil, если Kafka не настроена. Недоступный брокер не мешает старту.
func (a *App) initPublisher() usecase.EventPublisher {
	if !a.cfg.Kafka.Enabled() {
		return nil
	}

	producer := kafka.NewProducer(a.logger, a.cfg.Kafka)
	a.closer.Add("kafka producer", producer.Close)

	if err := producer.EnsureTopic(initTimeout); err != nil {
		a.logger.Warnf("kafka topic %s is not ready: %v", a.cfg.Kafka.Topic, err)
	}

	return producer
}

// Run строит индекс по хранилищу, запускает HTTP-сервер и ждёт сигнала остановки.
func (a *App) Run() error {
	rebuildCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := a.productUC.Rebuild(rebuildCtx)
	if err != nil {
		a.logger.Errorf(err, "initial index build failed")
		return err
	}
	a.logger.Infof("initial index: %d products, %d images, %d skipped", res.Products, res.Indexed, res.Failed)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if a.grpcSrv != nil {
		go func() {
			a.logger.Infof("gRPC server started on port %s", a.cfg.Grpc.Port)
			if err := a.grpcSrv.Start(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.closer.Close(ctx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
	}

	a.logger.Infof("Application shutdown complete")
	_ = a.logger.Sync()

	return appErr
}
