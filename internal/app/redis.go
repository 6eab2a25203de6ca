package app

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/momoclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "shesaves"

// redisKeyspace builds colon-separated keys under one service prefix.
type redisKeyspace string

func newRedisKeyspace(prefix string) redisKeyspace {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = defaultRedisKeyPrefix
	}
	return redisKeyspace(p)
}

func (k redisKeyspace) key(parts ...string) string {
	return string(k) + ":" + strings.Join(parts, ":")
}

// RedisTokenCache shares MoMo access tokens between replicas.
type RedisTokenCache struct {
	client redis.UniversalClient
	keys   redisKeyspace
}

func NewRedisTokenCache(client redis.UniversalClient, prefix string) *RedisTokenCache {
	return &RedisTokenCache{client: client, keys: newRedisKeyspace(prefix)}
}

func (c *RedisTokenCache) key(product momoclient.Product) string {
	return c.keys.key("momo", "token", string(product))
}

// GetToken returns the cached token and its remaining TTL. A miss is a zero TTL.
func (c *RedisTokenCache) GetToken(ctx context.Context, product momoclient.Product) (string, time.Duration, error) {
	key := c.key(product)
	pipe := c.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, err
	}

	token, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	ttl, err := ttlCmd.Result()
	if err != nil || ttl <= 0 {
		// Keys without an expiry are not trusted.
		return "", 0, err
	}
	return token, ttl, nil
}

func (c *RedisTokenCache) SetToken(ctx context.Context, product momoclient.Product, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(product), token, ttl).Err()
}

func (c *RedisTokenCache) DeleteToken(ctx context.Context, product momoclient.Product) error {
	return c.client.Del(ctx, c.key(product)).Err()
}

// RedisInitiationCounter counts payment initiations per user in fixed windows
// aligned to the epoch. Each window has its own key, so a counter never
// outlives its window and the retry delay follows from the clock alone.
type RedisInitiationCounter struct {
	client redis.UniversalClient
	keys   redisKeyspace
	now    func() time.Time
}

func NewRedisInitiationCounter(client redis.UniversalClient, prefix string) *RedisInitiationCounter {
	return &RedisInitiationCounter{client: client, keys: newRedisKeyspace(prefix), now: time.Now}
}

func (c *RedisInitiationCounter) key(kind domain.PaymentKind, userID uuid.UUID, window int64) string {
	return c.keys.key("initiations", string(kind), userID.String(), strconv.FormatInt(window, 10))
}

// CountInitiation records one initiation and returns the count in the current
// window together with the time left until the window closes.
func (c *RedisInitiationCounter) CountInitiation(ctx context.Context, kind domain.PaymentKind, userID uuid.UUID, window time.Duration) (int, time.Duration, error) {
	if c == nil || c.client == nil || window <= 0 {
		return 0, 0, nil
	}
	if window < time.Second {
		window = time.Second
	}

	index, remaining := initiationWindow(c.now(), window)
	key := c.key(kind, userID, index)

	var incr *redis.IntCmd
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.PExpire(ctx, key, remaining+time.Second)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return int(incr.Val()), remaining, nil
}

// initiationWindow returns the index of the window containing now and the time
// left before it ends.
func initiationWindow(now time.Time, window time.Duration) (int64, time.Duration) {
	size := window.Milliseconds()
	ms := now.UnixMilli()
	index := ms / size
	return index, time.Duration((index+1)*size-ms) * time.Millisecond
}
