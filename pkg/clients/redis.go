package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/jitter"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

// RedisClient: соединение с кэшем выдачи поиска.
type RedisClient struct {
	Client *r.Client
	ready  jitter.Backoff
}

func NewRedisClient(cfg *cfg.RedisCfg) *RedisClient {
	client := r.NewClient(&r.Options{
		Addr:         cfg.Addr,
		Username:     cfg.User,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &RedisClient{
		Client: client,
		ready:  jitter.NewBackoff(100*time.Millisecond, 2*time.Second, jitter.DefaultJitter),
	}
}

// WaitReady пингует сервер, пока он не ответит или не истечёт ctx.
func (c *RedisClient) WaitReady(ctx context.Context) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.Client.Ping(ctx).Err()
		if lastErr == nil {
			return nil
		}

		select {
		case <-time.After(c.ready.Next(attempt)):
		case <-ctx.Done():
			return e.Wrap(whereami.WhereAmI(), fmt.Errorf("redis is not ready after %d attempts: %w", attempt+1, lastErr))
		}
	}
}

func (c *RedisClient) Close(ctx context.Context) error {
	return c.Client.Close()
}
