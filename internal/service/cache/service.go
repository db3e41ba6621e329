package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return &CacheService{
		client: client,
		logger: logger,
	}, nil
}

// Get unmarshals the cached value into dest. A missing key is not an error;
// dest is left untouched and ok is false.
func (c *CacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return false, errors.NewCacheError("get failed", "get", key, err)
	}

	if dest != nil {
		if err := json.Unmarshal([]byte(value), dest); err != nil {
			c.logger.Error("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
			return false, errors.NewCacheError("unmarshal failed", "get", key, err)
		}
	}
	return true, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}

	if err := c.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("set failed", "set", key, err)
	}
	return nil
}

func (c *CacheService) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.NewCacheError("delete failed", "delete", keys[0], err)
	}
	return nil
}

func (c *CacheService) Close() error {
	return c.client.Close()
}
