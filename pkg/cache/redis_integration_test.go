//go:build integration

package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container and returns a client
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_Partition(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	store := NewRedisStore(client)
	ctx := context.Background()

	if err := store.Set(ctx, "k1", []byte("v1"), time.Minute, "repo"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ttl, err := client.TTL(ctx, "repo").Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("partition TTL = %v, want (0, 1m]", ttl)
	}

	exists, err := store.Exists(ctx, "repo")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v, want true", exists, err)
	}

	if err := store.Invalidate(ctx, "repo"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := store.Get(ctx, "k1", "repo"); err != ErrCacheMiss {
		t.Errorf("Get() after Invalidate error = %v, want ErrCacheMiss", err)
	}
}

func TestContentCache_Integration_MissThenHit(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	ttl := 30 * time.Second
	c := NewContentCache(NewRedisStore(client), Options{TTL: &ttl})
	ctx := context.Background()

	calls := 0
	handler := func(context.Context, *http.Request) (Response, error) {
		calls++
		return Redirect(http.StatusTemporaryRedirect, "https://blobs.example/sha256:abc"), nil
	}

	for i, want := range []string{StatusMiss, StatusHit} {
		resp, err := c.Serve(ctx, newRequest("GET", "http://localhost/v2/repo/blobs/sha256:abc"), "repo", handler)
		if err != nil {
			t.Fatalf("request %d: Serve() error = %v", i, err)
		}
		if got := resp.Header().Get(StatusHeader); got != want {
			t.Errorf("request %d: %s = %q, want %q", i, StatusHeader, got, want)
		}
		if got := resp.Header().Get("Location"); got != "https://blobs.example/sha256:abc" {
			t.Errorf("request %d: Location = %q", i, got)
		}
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}
