//go:build integration

package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/RNFS/fetchpipe/pkg/client"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
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

	redisClient := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		redisClient.Close()
		redisContainer.Terminate(ctx)
	}

	return redisClient, cleanup
}

func TestRedisSink_Integration_CountsOutcomes(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	sink, err := NewRedisSink(redisClient, "fetchpipe-test")
	if err != nil {
		t.Fatalf("NewRedisSink failed: %v", err)
	}

	results := []client.Result{
		{Item: client.NewWorkItem("http://a"), Outcome: client.OutcomeSuccess, Attempts: 1},
		{Item: client.NewWorkItem("http://b"), Outcome: client.OutcomeSuccess, Attempts: 2},
		{Item: client.NewWorkItem("http://c"), Outcome: client.OutcomeTimeout, Attempts: 3, Err: errors.New("timed out")},
		{Item: client.NewWorkItem("http://d"), Outcome: client.OutcomeFailure, Attempts: 3, Err: errors.New("exhausted")},
	}
	for _, result := range results {
		if err := sink.Report(ctx, result); err != nil {
			t.Fatalf("Report failed: %v", err)
		}
	}

	counts, err := sink.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[client.OutcomeSuccess] != 2 {
		t.Errorf("success count = %d, want 2", counts[client.OutcomeSuccess])
	}
	if counts[client.OutcomeTimeout] != 1 {
		t.Errorf("timeout count = %d, want 1", counts[client.OutcomeTimeout])
	}
	if counts[client.OutcomeFailure] != 1 {
		t.Errorf("failure count = %d, want 1", counts[client.OutcomeFailure])
	}
}

func TestRedisSink_Integration_StoresLastError(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	sink, err := NewRedisSink(redisClient, "fetchpipe-test")
	if err != nil {
		t.Fatalf("NewRedisSink failed: %v", err)
	}

	item := client.NewWorkItem("http://broken")
	result := client.Result{
		Item:     item,
		Outcome:  client.OutcomeFailure,
		Attempts: 3,
		Err:      errors.New("connection refused"),
	}
	if err := sink.Report(ctx, result); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	stored, err := redisClient.Get(ctx, "fetchpipe-test:last_error:"+item.ID).Result()
	if err != nil {
		t.Fatalf("Get last error failed: %v", err)
	}
	if stored != "connection refused" {
		t.Errorf("stored error = %q, want %q", stored, "connection refused")
	}

	ttl, err := redisClient.TTL(ctx, "fetchpipe-test:last_error:"+item.ID).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 24*time.Hour {
		t.Errorf("last error TTL = %v, want within 24h", ttl)
	}
}

func TestRedisSink_Integration_Reset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	sink, err := NewRedisSink(redisClient, "fetchpipe-test")
	if err != nil {
		t.Fatalf("NewRedisSink failed: %v", err)
	}

	if err := sink.Report(ctx, client.Result{Item: client.NewWorkItem("http://a"), Outcome: client.OutcomeSuccess}); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if err := sink.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	counts, err := sink.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[client.OutcomeSuccess] != 0 {
		t.Errorf("success count after reset = %d, want 0", counts[client.OutcomeSuccess])
	}
}
