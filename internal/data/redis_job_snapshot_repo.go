package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

const (
	// DefaultSnapshotKeyPrefix namespaces job snapshots.
	DefaultSnapshotKeyPrefix = "jobqueue:job:"
	// DefaultSnapshotTTL bounds how long a snapshot outlives its last update.
	DefaultSnapshotTTL = 24 * time.Hour

	purgeScanCount = 200
)

// RedisJobSnapshotRepo mirrors the latest state of each job to Redis as JSON.
// It implements core.JobSnapshotStore.
type RedisJobSnapshotRepo struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisJobSnapshotRepoOptions configures a RedisJobSnapshotRepo.
type RedisJobSnapshotRepoOptions struct {
	KeyPrefix string        // Optional: defaults to DefaultSnapshotKeyPrefix
	TTL       time.Duration // Optional: defaults to DefaultSnapshotTTL
}

// NewRedisJobSnapshotRepo creates a new RedisJobSnapshotRepo with the given Redis client.
func NewRedisJobSnapshotRepo(client redis.UniversalClient, opts RedisJobSnapshotRepoOptions) *RedisJobSnapshotRepo {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultSnapshotKeyPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultSnapshotTTL
	}
	return &RedisJobSnapshotRepo{client: client, prefix: opts.KeyPrefix, ttl: opts.TTL}
}

// Key returns the Redis key holding the snapshot for id.
func (r *RedisJobSnapshotRepo) Key(id string) string {
	return r.prefix + id
}

// Save writes the job as JSON and refreshes its TTL.
func (r *RedisJobSnapshotRepo) Save(ctx context.Context, job model.Job) error {
	if job.ID == "" {
		return ErrJobIDRequired
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := r.client.Set(ctx, r.Key(job.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns the snapshot for id, or nil if none exists. Payload and Result come back in
// their generic JSON form.
func (r *RedisJobSnapshotRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, ErrJobIDRequired
	}
	raw, err := r.client.Get(ctx, r.Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Purge deletes every snapshot under the key prefix and returns how many were removed.
// Cluster clients are scanned master by master.
func (r *RedisJobSnapshotRepo) Purge(ctx context.Context) (int, error) {
	cluster, ok := r.client.(*redis.ClusterClient)
	if !ok {
		return r.purgeNode(ctx, r.client)
	}

	var total atomic.Int64
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		n, err := r.purgeNode(ctx, node)
		total.Add(int64(n))
		return err
	})
	return int(total.Load()), err
}

func (r *RedisJobSnapshotRepo) purgeNode(ctx context.Context, c redis.Cmdable) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, r.prefix+"*", purgeScanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := deleteKeys(ctx, c, keys)
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// deleteKeys issues one DEL per key in a pipeline so keys in different slots never share a command.
func deleteKeys(ctx context.Context, c redis.Cmdable, keys []string) (int, error) {
	pipe := c.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	var n int
	for _, cmd := range cmds {
		n += int(cmd.Val())
	}
	return n, nil
}

