package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/internal/usecase"
	"github.com/DRSN-tech/photo-search/pkg/clients"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

// searchModelVersion меняется при несовместимом изменении формата записи кэша.
const searchModelVersion = 1

type matchRedisModel struct {
	ProductID string   `json:"product_id"`
	Score     float32  `json:"score"`
	Photos    []string `json:"photos"`
}

type searchRedisModel struct {
	Version int               `json:"v"`
	Matches []matchRedisModel `json:"matches"`
}

// CacheRepo кэширует выдачу поиска в Redis.
type CacheRepo struct {
	client *clients.RedisClient
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, cfg *cfg.RedisCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// GetSearch возвращает закэшированную выдачу. Промах и запись старого формата — (nil, false, nil).
func (c *CacheRepo) GetSearch(ctx context.Context, key string) ([]usecase.ProductMatch, bool, error) {
	data, err := c.client.Client.Get(ctx, key).Bytes()
	if errors.Is(err, r.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, e.Wrap(whereami.WhereAmI(), err)
	}

	matches, err := decodeSearch(data)
	if err != nil {
		c.logger.Warnf("Redis unmarshal failed for %s, dropping entry: %v", key, e.Wrap(whereami.WhereAmI(), err))
		if err := c.client.Client.Del(ctx, key).Err(); err != nil {
			c.logger.Warnf("Redis del failed: %v", e.Wrap(whereami.WhereAmI(), err))
		}
		return nil, false, nil
	}

	return matches, true, nil
}

// SetSearch сохраняет выдачу с TTL из конфигурации.
func (c *CacheRepo) SetSearch(ctx context.Context, key string, matches []usecase.ProductMatch) error {
	data, err := encodeSearch(matches)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := c.client.Client.Set(ctx, key, data, c.cfg.SearchTTL).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func encodeSearch(matches []usecase.ProductMatch) ([]byte, error) {
	model := searchRedisModel{
		Version: searchModelVersion,
		Matches: make([]matchRedisModel, 0, len(matches)),
	}
	for _, m := range matches {
		model.Matches = append(model.Matches, matchRedisModel{
			ProductID: m.ProductID,
			Score:     m.Score,
			Photos:    m.Photos,
		})
	}

	return json.Marshal(model)
}

func decodeSearch(data []byte) ([]usecase.ProductMatch, error) {
	var model searchRedisModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	if model.Version != searchModelVersion {
		return nil, fmt.Errorf("unsupported cache model version %d", model.Version)
	}

	matches := make([]usecase.ProductMatch, 0, len(model.Matches))
	for _, m := range model.Matches {
		matches = append(matches, usecase.NewProductMatch(m.ProductID, m.Score, m.Photos))
	}

	return matches, nil
}
