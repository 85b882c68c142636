package testutil

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestRedisAddr returns TEST_REDIS_ADDR, falling back to REDIS_ADDR (set by CI) and then the
// local compose test port.
func TestRedisAddr() string {
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return getEnvOrDefault("REDIS_ADDR", "localhost:56379")
}

// SetupTestRedis connects to the test Redis and closes the client when the test ends. Tests
// are expected to namespace their keys; the database is not flushed.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	db := 1
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			db = i
		}
	}

	addr := TestRedisAddr()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		closeAndLog(t, "redis client", client)
		if requireRedis() {
			t.Fatalf("redis not available at %s: %v", addr, err)
		}
		t.Skip("redis not available at", addr, err)
	}

	t.Cleanup(func() { closeAndLog(t, "redis client", client) })
	return client
}
