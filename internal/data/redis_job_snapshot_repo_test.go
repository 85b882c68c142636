package data

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	"github.com/target/mmk-jobqueue/internal/testutil"
)

func TestNewRedisJobSnapshotRepo_Defaults(t *testing.T) {
	repo := NewRedisJobSnapshotRepo(nil, RedisJobSnapshotRepoOptions{})
	assert.Equal(t, DefaultSnapshotKeyPrefix+"abc", repo.Key("abc"))
	assert.Equal(t, DefaultSnapshotTTL, repo.ttl)

	repo = NewRedisJobSnapshotRepo(nil, RedisJobSnapshotRepoOptions{KeyPrefix: "x:", TTL: time.Minute})
	assert.Equal(t, "x:abc", repo.Key("abc"))
	assert.Equal(t, time.Minute, repo.ttl)
}

func TestRedisJobSnapshotRepo_RequiresID(t *testing.T) {
	repo := NewRedisJobSnapshotRepo(nil, RedisJobSnapshotRepoOptions{})
	require.ErrorIs(t, repo.Save(context.Background(), model.Job{}), ErrJobIDRequired)
	_, err := repo.Get(context.Background(), "")
	require.ErrorIs(t, err, ErrJobIDRequired)
}

func TestRedisJobSnapshotRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	defer client.Close()

	prefix := fmt.Sprintf("test:jobqueue:%d:", time.Now().UnixNano())
	repo := NewRedisJobSnapshotRepo(client, RedisJobSnapshotRepoOptions{KeyPrefix: prefix, TTL: 5 * time.Minute})
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		job := testutil.NewJob().WithPriority(7).WithPartitionKey("tenant-a").Completed(map[string]any{"ok": true}).Build()
		require.NoError(t, repo.Save(ctx, job))

		got, err := repo.Get(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.Equal(t, 7, got.Priority)
		assert.Equal(t, "tenant-a", got.PartitionKey)
		assert.Equal(t, map[string]any{"ok": true}, got.Result)
		assert.Equal(t, map[string]any{"url": "https://example.com"}, got.Payload)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, job.CompletedAt.Equal(*got.CompletedAt))

		ttl := client.TTL(ctx, repo.Key(job.ID)).Val()
		assert.True(t, ttl > 0 && ttl <= 5*time.Minute)
	})

	t.Run("save overwrites", func(t *testing.T) {
		b := testutil.NewJob()
		pending := b.Build()
		require.NoError(t, repo.Save(ctx, pending))
		failed := b.Failed("boom").Build()
		require.NoError(t, repo.Save(ctx, failed))

		got, err := repo.Get(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		assert.Equal(t, "boom", got.ErrorMessage())
	})

	t.Run("get missing", func(t *testing.T) {
		got, err := repo.Get(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("get corrupt", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, repo.Key("corrupt"), "{not json", time.Minute).Err())
		_, err := repo.Get(ctx, "corrupt")
		var syntaxErr *json.SyntaxError
		assert.ErrorAs(t, err, &syntaxErr)
	})

	t.Run("purge only touches prefix", func(t *testing.T) {
		for range 5 {
			require.NoError(t, repo.Save(ctx, testutil.NewJob().Build()))
		}
		require.NoError(t, client.Set(ctx, "unrelated:key", "keep", time.Minute).Err())

		n, err := repo.Purge(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 5)

		left, _, err := client.Scan(ctx, 0, prefix+"*", 100).Result()
		require.NoError(t, err)
		assert.Empty(t, left)
		assert.Equal(t, "keep", client.Get(ctx, "unrelated:key").Val())

		n, err = repo.Purge(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
