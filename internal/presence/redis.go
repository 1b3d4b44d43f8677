package presence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "hop:presence:connections"

// registerScript swaps the mapping and returns the previous value in one step.
const registerScript = `
local prev = redis.call('HGET', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if prev == ARGV[2] then return '' end
return prev or ''
`

// releaseScript deletes the mapping only if it still points at ARGV[2].
const releaseScript = `
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
  return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`

type cmdable interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisRegistry keeps every mapping in one Redis hash so all instances
// share a single view of who is online.
type RedisRegistry struct {
	store cmdable
	key   string
}

// NewRedisRegistry connects to url and verifies the connection.
func NewRedisRegistry(ctx context.Context, url string) (*RedisRegistry, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisRegistry{store: client, key: DefaultRedisKey}, client, nil
}

func (r *RedisRegistry) Register(ctx context.Context, userID uuid.UUID, connID string) (string, error) {
	prev, err := r.store.Eval(ctx, registerScript, []string{r.key}, userID.String(), connID).Text()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("register connection: %w", err)
	}
	return prev, nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, userID uuid.UUID) error {
	if err := r.store.HDel(ctx, r.key, userID.String()).Err(); err != nil {
		return fmt.Errorf("unregister connection: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Release(ctx context.Context, userID uuid.UUID, connID string) (bool, error) {
	n, err := r.store.Eval(ctx, releaseScript, []string{r.key}, userID.String(), connID).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("release connection: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	connID, err := r.store.HGet(ctx, r.key, userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup connection: %w", err)
	}
	return connID, true, nil
}

func (r *RedisRegistry) Snapshot(ctx context.Context) ([]Entry, error) {
	all, err := r.store.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot connections: %w", err)
	}
	entries := make([]Entry, 0, len(all))
	for field, connID := range all {
		userID, err := uuid.Parse(field)
		if err != nil {
			// not ours; skip rather than fail the whole fan-out
			continue
		}
		entries = append(entries, Entry{UserID: userID, ConnectionID: connID})
	}
	sortEntries(entries)
	return entries, nil
}

// Reset drops every mapping. Called at boot by a single-instance deployment.
func (r *RedisRegistry) Reset(ctx context.Context) error {
	if err := r.store.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("reset connections: %w", err)
	}
	return nil
}

var _ Registry = (*RedisRegistry)(nil)
