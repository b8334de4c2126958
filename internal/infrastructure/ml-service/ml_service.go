package ml_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/jitter"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	gobreaker "github.com/sony/gobreaker/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// VectorizeMethod: полное имя метода ML-сервиса. Запрос — BytesValue с байтами изображения,
// ответ — Struct с полями "vector" (список чисел) и "model_version".
const VectorizeMethod = "/drsn.ml.v1.MachineLearningService/VectorizeImage"

const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// MLService клиент для взаимодействия с внешним ML-сервисом
type MLService struct {
	conn       grpc.ClientConnInterface
	dimension  int
	maxRetries int
	timeout    time.Duration
	backoff    jitter.Backoff
	sem        chan struct{}
	breaker    *gobreaker.CircuitBreaker[[]float32]
	logger     logger.Logger
}

func NewMLService(conn grpc.ClientConnInterface, cfg *cfg.MLServiceCfg, dimension int, logger logger.Logger) *MLService {
	return &MLService{
		conn:       conn,
		dimension:  dimension,
		maxRetries: max(cfg.MaxRetries, 1),
		timeout:    cfg.Timeout,
		backoff:    jitter.NewBackoff(500*time.Millisecond, 10*time.Second, jitter.DefaultJitter),
		sem:        make(chan struct{}, max(cfg.MaxConcurrent, 1)),
		breaker:    newBreaker(cfg, logger),
		logger:     logger,
	}
}

// newBreaker размыкает цепь после серии транспортных ошибок подряд.
// Отказы сервиса по конкретному изображению цепь не размыкают.
func newBreaker(cfg *cfg.MLServiceCfg, logger logger.Logger) *gobreaker.CircuitBreaker[[]float32] {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	return gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:        "ml-service",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("%s circuit breaker: %s -> %s", name, from, to)
		},
	})
}

func (m *MLService) Dimension() int {
	return m.dimension
}

// Embed выполняет векторизацию изображения с retry-логикой и экспоненциальной задержкой.
// Одновременных запросов к сервису не больше MaxConcurrent.
func (m *MLService) Embed(ctx context.Context, img *domain.DecodedImage) ([]float32, error) {
	const op = "MLService.Embed"

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		return nil, e.Wrap(op, ctx.Err())
	}

	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		vector, err := m.breaker.Execute(func() ([]float32, error) {
			return m.vectorize(ctx, img.Data)
		})
		if err == nil {
			return vector, nil
		}
		lastErr = err

		if breakerOpen(err) || !retryable(err) || attempt == m.maxRetries-1 {
			break
		}

		sleepTime := m.backoff.Next(attempt)
		m.logger.Warnf("vectorization failed, retrying in %v (attempt %d): %v", sleepTime, attempt+1, err)
		select {
		case <-time.After(sleepTime):
		case <-ctx.Done():
			return nil, e.Wrap(op, ctx.Err())
		}
	}

	return nil, e.Wrap(op, fmt.Errorf("%w: %w", e.ErrEmbeddingFailure, lastErr))
}

func (m *MLService) vectorize(ctx context.Context, data []byte) ([]float32, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	res := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, VectorizeMethod, wrapperspb.Bytes(data), res); err != nil {
		return nil, err
	}

	return parseVector(res)
}

func parseVector(res *structpb.Struct) ([]float32, error) {
	list := res.GetFields()["vector"].GetListValue()
	if list == nil {
		return nil, status.Error(codes.Internal, "response has no vector")
	}

	vector := make([]float32, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
			return nil, status.Error(codes.Internal, "vector contains a non-number value")
		}
		vector = append(vector, float32(v.GetNumberValue()))
	}

	return vector, nil
}

func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// retryable: повторяем только временные ошибки транспорта.
func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
