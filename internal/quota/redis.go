package quota

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the shared counter store
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	KeyPrefix   string
}

// DefaultRedisConfig reads REDIS_URL, REDIS_PASSWORD, REDIS_DB and REDIS_KEY_PREFIX.
func DefaultRedisConfig() RedisConfig {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	prefix := os.Getenv("REDIS_KEY_PREFIX")
	if prefix == "" {
		prefix = "slotgw:"
	}
	return RedisConfig{
		Addr:        os.Getenv("REDIS_URL"),
		Password:    os.Getenv("REDIS_PASSWORD"),
		DB:          db,
		DialTimeout: 5 * time.Second,
		KeyPrefix:   prefix,
	}
}

// Redis shares counts across gateway instances. Keys expire two days after
// their bucket starts.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedis connects and pings. Addr may be host:port or a redis:// URL.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	var opts *redis.Options
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client, keyPrefix: cfg.KeyPrefix, now: time.Now}, nil
}

func (r *Redis) key(day string, slotID int) string {
	return fmt.Sprintf("%squota:%s:%d", r.keyPrefix, day, slotID)
}

func (r *Redis) Incr(ctx context.Context, slotID int) (int64, error) {
	key := r.key(Day(r.now()), slotID)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("quota incr pipeline failed: %w", err)
	}
	return incr.Val(), nil
}

func (r *Redis) Snapshot(ctx context.Context, slotIDs []int) (map[int]int64, error) {
	out := make(map[int]int64, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	day := Day(r.now())
	keys := make([]string, len(slotIDs))
	for i, id := range slotIDs {
		keys[i] = r.key(day, id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("quota snapshot failed: %w", err)
	}
	for i, v := range vals {
		out[slotIDs[i]] = 0
		if s, ok := v.(string); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				out[slotIDs[i]] = n
			}
		}
	}
	return out, nil
}

// Ping checks the connection for health reporting.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
