package pending

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding contentID -> pageID entries.
const DefaultRedisKey = "searchsync:pending-deletions"

const pingTimeout = 5 * time.Second

// ErrEmptyAddress is returned when no Redis address is configured.
var ErrEmptyAddress = errors.New("redis address is required")

// RedisOptions configures the connection used by a RedisTracker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisTracker keeps entries in a Redis hash so that several hook receivers
// behind a load balancer see the same pending deletions.
type RedisTracker struct {
	client *redis.Client
	key    string
}

// DialRedis connects to Redis and verifies the connection.
func DialRedis(opts RedisOptions) (*RedisTracker, error) {
	if opts.Addr == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisTracker(client, opts.Key), nil
}

func NewRedisTracker(client *redis.Client, key string) *RedisTracker {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisTracker{client: client, key: key}
}

func (t *RedisTracker) Record(ctx context.Context, contentID, pageID int64) error {
	if err := t.client.HSet(ctx, t.key, field(contentID), pageID).Err(); err != nil {
		return fmt.Errorf("record pending deletion %d: %w", contentID, err)
	}
	return nil
}

func (t *RedisTracker) Peek(ctx context.Context, contentID int64) (int64, bool, error) {
	pageID, err := t.client.HGet(ctx, t.key, field(contentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read pending deletion %d: %w", contentID, err)
	}
	return pageID, true, nil
}

func (t *RedisTracker) Take(ctx context.Context, contentID int64) (int64, bool, error) {
	var get *redis.StringCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, t.key, field(contentID))
		pipe.HDel(ctx, t.key, field(contentID))
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("take pending deletion %d: %w", contentID, err)
	}
	pageID, err := get.Int64()
	if err != nil {
		return 0, false, fmt.Errorf("decode pending deletion %d: %w", contentID, err)
	}
	return pageID, true, nil
}

func (t *RedisTracker) Len(ctx context.Context) (int, error) {
	n, err := t.client.HLen(ctx, t.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count pending deletions: %w", err)
	}
	return int(n), nil
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}

func field(contentID int64) string {
	return strconv.FormatInt(contentID, 10)
}
