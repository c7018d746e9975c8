package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/hot/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis-backed library
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis keeps the library in Redis so several processes share one
// knowledge base. Each entry is a hash; a sorted set keeps insertion order
// and a hash maps entry IDs to keys.
type Redis struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// upsertScript increments reuse_count and overwrites category in one step.
// KEYS: entry hash, order zset, id index. ARGV: id, key, text, category, now (unix nanos).
var upsertScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], 'reuse_count', 1)
if n == 1 then
  redis.call('HSET', KEYS[1], 'id', ARGV[1], 'key', ARGV[2], 'text', ARGV[3], 'created_at', ARGV[5])
  redis.call('ZADD', KEYS[2], ARGV[5], ARGV[2])
  redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
end
redis.call('HSET', KEYS[1], 'category', ARGV[4], 'updated_at', ARGV[5])
return redis.call('HGETALL', KEYS[1])
`)

// NewRedis connects to Redis and checks the connection
func NewRedis(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "hot"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	logger.Info("redis library initialized",
		zap.String("addr", cfg.Addr),
		zap.String("prefix", cfg.KeyPrefix),
	)

	return &Redis{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger.With(zap.String("component", "library")),
		now:    time.Now,
	}, nil
}

// Close closes the Redis client
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) entryKey(key string) string { return r.prefix + ":library:entry:" + key }
func (r *Redis) orderKey() string           { return r.prefix + ":library:order" }
func (r *Redis) idsKey() string             { return r.prefix + ":library:ids" }

// ListEntries returns the whole library in fetch order
func (r *Redis) ListEntries(ctx context.Context) ([]domain.LibraryEntry, error) {
	return r.SearchEntries(ctx, LibraryQuery{})
}

// SearchEntries loads every entry and filters client-side
func (r *Redis) SearchEntries(ctx context.Context, q LibraryQuery) ([]domain.LibraryEntry, error) {
	keys, err := r.client.ZRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, r.entryKey(k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries := make([]domain.LibraryEntry, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// order index outlived its entry
			r.logger.Warn("dangling library index", zap.String("key", keys[i]))
			continue
		}
		e, err := decodeEntry(fields)
		if err != nil {
			return nil, fmt.Errorf("decode entry %q: %w", keys[i], err)
		}
		entries = append(entries, *e)
	}

	return filterEntries(entries, q), nil
}

// UpsertEntry inserts or increments the entry for key atomically
func (r *Redis) UpsertEntry(ctx context.Context, key, text string, cat domain.Category) (*domain.LibraryEntry, error) {
	now := strconv.FormatInt(r.now().UnixNano(), 10)
	res, err := upsertScript.Run(ctx, r.client,
		[]string{r.entryKey(key), r.orderKey(), r.idsKey()},
		uuid.New().String(), key, text, string(cat), now,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("upsert entry: %w", err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	return decodeEntry(fields)
}

// GetEntry retrieves an entry by ID
func (r *Redis) GetEntry(ctx context.Context, id string) (*domain.LibraryEntry, error) {
	key, err := r.client.HGet(ctx, r.idsKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	fields, err := r.client.HGetAll(ctx, r.entryKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("get entry %s: %w", id, ErrNotFound)
	}
	return decodeEntry(fields)
}

// SetEntryCategory reclassifies an entry without counting a reuse
func (r *Redis) SetEntryCategory(ctx context.Context, id string, cat domain.Category) (*domain.LibraryEntry, error) {
	e, err := r.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	now := r.now()
	err = r.client.HSet(ctx, r.entryKey(e.Key),
		"category", string(cat),
		"updated_at", strconv.FormatInt(now.UnixNano(), 10),
	).Err()
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	e.Category = cat
	e.UpdatedAt = time.Unix(0, now.UnixNano())
	return e, nil
}

// DeleteEntry removes an entry and its index records
func (r *Redis) DeleteEntry(ctx context.Context, id string) error {
	e, err := r.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.entryKey(e.Key))
		pipe.ZRem(ctx, r.orderKey(), e.Key)
		pipe.HDel(ctx, r.idsKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func decodeEntry(fields map[string]string) (*domain.LibraryEntry, error) {
	reuse, err := strconv.Atoi(fields["reuse_count"])
	if err != nil {
		return nil, fmt.Errorf("reuse_count: %w", err)
	}
	created, err := parseNanos(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updated, err := parseNanos(fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &domain.LibraryEntry{
		ID:         fields["id"],
		Key:        fields["key"],
		Text:       fields["text"],
		Category:   domain.Category(fields["category"]),
		ReuseCount: reuse,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}, nil
}

func parseNanos(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}
