package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ForecastCache holds recently computed model forecasts so repeated dashboard
// loads do not call the forecaster again.
type ForecastCache interface {
	Get(ctx context.Context, storeId int64, start string, days int, dest interface{}) (bool, error)
	Set(ctx context.Context, storeId int64, start string, days int, value interface{}) error
	InvalidateStore(ctx context.Context, storeId int64) error
}

type RedisForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisForecastCache(client *redis.Client, ttl time.Duration) *RedisForecastCache {
	return &RedisForecastCache{client: client, ttl: ttl}
}

func forecastKey(storeId int64, start string, days int) string {
	return fmt.Sprintf("kitchen:store:%d:forecast:%v:%d", storeId, start, days)
}

func storeKeysKey(storeId int64) string {
	return fmt.Sprintf("kitchen:store:%d:forecast_keys", storeId)
}

func (c *RedisForecastCache) Get(ctx context.Context, storeId int64, start string, days int, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, forecastKey(storeId, start, days)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("error decoding cached forecast: %w", err)
	}
	return true, nil
}

func (c *RedisForecastCache) Set(ctx context.Context, storeId int64, start string, days int, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key := forecastKey(storeId, start, days)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, storeKeysKey(storeId), key)
	pipe.Expire(ctx, storeKeysKey(storeId), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateStore drops every cached forecast of the store, called whenever
// its sales history changes.
func (c *RedisForecastCache) InvalidateStore(ctx context.Context, storeId int64) error {
	keys, err := c.client.SMembers(ctx, storeKeysKey(storeId)).Result()
	if err != nil {
		return err
	}
	pipe := c.client.Pipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, storeKeysKey(storeId))
	_, err = pipe.Exec(ctx)
	return err
}

type NoopForecastCache struct{}

func (NoopForecastCache) Get(ctx context.Context, storeId int64, start string, days int, dest interface{}) (bool, error) {
	return false, nil
}

func (NoopForecastCache) Set(ctx context.Context, storeId int64, start string, days int, value interface{}) error {
	return nil
}

func (NoopForecastCache) InvalidateStore(ctx context.Context, storeId int64) error {
	return nil
}

// NewForecastCache connects to redis when a url is configured and falls back
// to a no-op cache otherwise.
func NewForecastCache(ctx context.Context, redisUrl string, ttl time.Duration) (ForecastCache, error) {
	if redisUrl == "" {
		return NoopForecastCache{}, nil
	}

	opts, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to reach redis: %w", err)
	}

	return NewRedisForecastCache(client, ttl), nil
}
