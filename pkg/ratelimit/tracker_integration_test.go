//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func newRedisTracker(t *testing.T) (*Tracker, *redis.Client, func()) {
	redisClient, cleanup := setupRedis(t)
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return NewTracker(NewRedisStore(redisClient), logger), redisClient, cleanup
}

func TestTracker_Integration_GetState(t *testing.T) {
	tracker, _, cleanup := newRedisTracker(t)
	defer cleanup()
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != DefaultRemaining {
		t.Errorf("Default Remaining = %d, want %d", state.Remaining, DefaultRemaining)
	}
	if !state.IsHealthy {
		t.Error("Default state should be healthy")
	}

	headers := http.Header{}
	headers.Set(HeaderRemaining, "75")
	headers.Set(HeaderReset, "120")

	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after update error = %v", err)
	}
	if state.Remaining != 75 {
		t.Errorf("Remaining = %d, want 75", state.Remaining)
	}
	if !state.IsHealthy {
		t.Error("State with 75 remaining should be healthy")
	}

	expected := 120 * time.Second
	actual := state.TimeUntilReset()
	tolerance := 5 * time.Second
	if actual < expected-tolerance || actual > expected+tolerance {
		t.Errorf("TimeUntilReset = %v, want approximately %v", actual, expected)
	}
}

func TestTracker_Integration_KeysExpire(t *testing.T) {
	tracker, redisClient, cleanup := newRedisTracker(t)
	defer cleanup()
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(HeaderRemaining, "40")
	headers.Set(HeaderReset, "30")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ttl, err := redisClient.TTL(ctx, RedisKeyRemaining).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= time.Minute || ttl > 90*time.Second {
		t.Errorf("TTL = %v, want between 1m and 90s", ttl)
	}
}

func TestTracker_Integration_ShouldAllowRequest(t *testing.T) {
	tests := []struct {
		name    string
		remain  string
		allowed bool
	}{
		{"healthy", "90", true},
		{"warning", "15", true},
		{"critical", "3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, _, cleanup := newRedisTracker(t)
			defer cleanup()
			tracker.ThrottleDelay = 50 * time.Millisecond
			ctx := context.Background()

			headers := http.Header{}
			headers.Set(HeaderRemaining, tt.remain)
			headers.Set(HeaderReset, "60")
			if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.allowed {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.allowed)
			}
		})
	}
}

func TestTracker_Integration_StateReset(t *testing.T) {
	tracker, _, cleanup := newRedisTracker(t)
	defer cleanup()
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(HeaderRemaining, "3")
	headers.Set(HeaderReset, "2")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	if allowed, _ := tracker.ShouldAllowRequest(ctx); allowed {
		t.Fatal("ShouldAllowRequest() = true before reset, want false")
	}

	time.Sleep(3 * time.Second)

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("ShouldAllowRequest() = false after window reset, want true")
	}
}
