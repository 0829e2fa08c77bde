package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"moviesims/internal/config"
	"moviesims/pkg/types"
)

const (
	redisWorkerIndexKey  = "workers:index"
	redisWorkerKeyPrefix = "worker:"
	redisWriteTimeout    = 2 * time.Second
	redisWorkerTTL       = 5 * time.Minute
)

// WorkerInfo is the registry view of a connected worker.
type WorkerInfo struct {
	ID          string            `json:"id"`
	Addr        string            `json:"addr"`
	Concurrency int               `json:"concurrency"`
	State       types.WorkerState `json:"state"`
	LastSeen    time.Time         `json:"last_seen"`
}

// Registry publishes worker membership outside the coordinator process.
type Registry interface {
	Register(ctx context.Context, w WorkerInfo) error
	Touch(ctx context.Context, id string, state types.WorkerState, seen time.Time) error
	Remove(ctx context.Context, id string) error
}

// NewRedisClient builds a client from the redis section of the config.
// An empty address returns nil: the registry is optional.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisRegistry keeps one hash per worker plus an index set. Worker hashes
// expire unless heartbeats keep refreshing them.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: redisWorkerTTL}
}

func (r *RedisRegistry) Register(ctx context.Context, w WorkerInfo) error {
	ctx, cancel := context.WithTimeout(ctx, redisWriteTimeout)
	defer cancel()

	key := redisWorkerKeyPrefix + w.ID
	fields := map[string]interface{}{
		"worker_id":   w.ID,
		"concurrency": w.Concurrency,
		"state":       w.State.String(),
		"last_seen":   w.LastSeen.UnixMilli(),
		"addr":        w.Addr,
	}

	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("cluster: registering worker %s: %w", w.ID, err)
	}
	if err := r.client.SAdd(ctx, redisWorkerIndexKey, w.ID).Err(); err != nil {
		return fmt.Errorf("cluster: indexing worker %s: %w", w.ID, err)
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("cluster: setting ttl for worker %s: %w", w.ID, err)
	}
	return nil
}

func (r *RedisRegistry) Touch(ctx context.Context, id string, state types.WorkerState, seen time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, redisWriteTimeout)
	defer cancel()

	key := redisWorkerKeyPrefix + id
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "state", state.String(), "last_seen", seen.UnixMilli())
		p.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cluster: refreshing worker %s: %w", id, err)
	}
	return nil
}

func (r *RedisRegistry) Remove(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, redisWriteTimeout)
	defer cancel()

	if err := r.client.Del(ctx, redisWorkerKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("cluster: removing worker %s: %w", id, err)
	}
	if err := r.client.SRem(ctx, redisWorkerIndexKey, id).Err(); err != nil {
		return fmt.Errorf("cluster: unindexing worker %s: %w", id, err)
	}
	return nil
}
