package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var errRedisUnavailable = errors.New("redis client not initialized")

// RedisService is optional: without REDIS_ADDR no client is created and
// callers fall back to in-process state.
type RedisService struct {
	appContext.DefaultService
	redis    *redis.Client
	cacheTTL time.Duration
}

const REDIS_SVC = "redis_svc"

func NewRedisService(client *redis.Client, cacheTTL time.Duration) *RedisService {
	return &RedisService{redis: client, cacheTTL: cacheTTL}
}

func (svc RedisService) Id() string {
	return REDIS_SVC
}

func (svc *RedisService) Configure(ctx *appContext.Context) error {
	svc.cacheTTL = shared.GetEnvDuration("PROGRESS_CACHE_TTL", 24*time.Hour)
	svc.initRedisClient()
	return svc.DefaultService.Configure(ctx)
}

func (svc *RedisService) Start() error {
	if svc.redis == nil {
		log.Printf("REDIS_ADDR not set, using in-memory progress cache")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := svc.redis.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func (svc *RedisService) Shutdown() {
	if svc.redis != nil {
		_ = svc.redis.Close()
	}
}

func (svc *RedisService) initRedisClient() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return
	}

	redisPassword := os.Getenv("REDIS_PASSWORD")

	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			redisDB = db
		}
	}

	svc.redis = redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
}

func (svc *RedisService) GetClient() *redis.Client {
	return svc.redis
}

func (svc *RedisService) Available() bool {
	return svc != nil && svc.redis != nil
}

// IncrementWindow bumps a fixed-window counter, setting its expiry on the
// first hit, and returns the count and remaining window.
func (svc *RedisService) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if svc.redis == nil {
		return 0, 0, errRedisUnavailable
	}

	count, err := svc.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := svc.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	remaining, err := svc.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if remaining < 0 {
		// Lost its expiry; start a fresh window.
		_ = svc.redis.Expire(ctx, key, window).Err()
		remaining = window
	}
	return count, remaining, nil
}

// CacheFactory returns a redis-backed cache factory, or the in-memory one
// when redis is not configured.
func (svc *RedisService) CacheFactory() session.CacheFactory {
	if !svc.Available() {
		return session.MemoryCacheFactory
	}
	return func(deviceID, userID string) session.ProgressCache {
		return NewRedisProgressCache(svc.redis, deviceID, userID, svc.cacheTTL)
	}
}

// RedisProgressCache stores one session's progress records. Keys written are
// tracked in an index set so Clear never scans the keyspace.
type RedisProgressCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisProgressCache(client *redis.Client, deviceID, userID string, ttl time.Duration) *RedisProgressCache {
	return &RedisProgressCache{
		client: client,
		prefix: fmt.Sprintf("progress-cache:%s:%s", deviceID, userID),
		ttl:    ttl,
	}
}

func (c *RedisProgressCache) entryKey(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisProgressCache) indexKey() string {
	return c.prefix + ":index"
}

// Get treats a malformed entry as a miss.
func (c *RedisProgressCache) Get(ctx context.Context, key string) (*model.ProgressRecord, bool, error) {
	raw, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rec model.ProgressRecord
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		log.WithField("key", key).Debug("Ignoring malformed cached progress")
		return nil, false, nil
	}
	return &rec, true, nil
}

func (c *RedisProgressCache) Set(ctx context.Context, key string, rec model.ProgressRecord) error {
	raw, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cached progress: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.entryKey(key), raw, c.ttl)
	pipe.SAdd(ctx, c.indexKey(), key)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.indexKey(), c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisProgressCache) Delete(ctx context.Context, key string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.entryKey(key))
	pipe.SRem(ctx, c.indexKey(), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisProgressCache) Clear(ctx context.Context) error {
	members, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, c.entryKey(m))
	}
	keys = append(keys, c.indexKey())
	return c.client.Del(ctx, keys...).Err()
}
