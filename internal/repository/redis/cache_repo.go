package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/repository/redis/converter"
	"github.com/DRSN-tech/visual-matcher/pkg/clients"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

const embeddingKeyPrefix = "embedding:"

// CacheRepo кэширует векторы изображений запросов, чтобы повторный поиск по той же картинке
// не обращался к ML-сервису.
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

// GetEmbedding возвращает вектор из кэша. Промах и повреждённая запись возвращают (nil, nil).
func (c *CacheRepo) GetEmbedding(ctx context.Context, key string) (*domain.Embedding, error) {
	redisKey := embeddingKey(key)

	data, err := c.client.Client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, r.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var model converter.EmbeddingRedisModel
	if err := json.Unmarshal(data, &model); err != nil || len(model.Vector) == 0 {
		c.logger.Warnf("Corrupted embedding in cache, key=%s: %v", redisKey, err)
		if err := c.client.Client.Del(ctx, redisKey).Err(); err != nil {
			c.logger.Warnf("Redis del failed: %v", e.Wrap(whereami.WhereAmI(), err))
		}
		return nil, nil
	}

	return converter.ToDomain(&model), nil
}

// SetEmbedding сохраняет вектор с TTL из конфигурации.
func (c *CacheRepo) SetEmbedding(ctx context.Context, key string, embedding *domain.Embedding) error {
	data, err := json.Marshal(converter.ToRedisModel(embedding, time.Now()))
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := c.client.Client.Set(ctx, embeddingKey(key), data, c.cfg.EmbeddingTTL).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// embeddingKey возвращает Redis-ключ для хэша изображения
func embeddingKey(hash string) string {
	return embeddingKeyPrefix + hash
}
