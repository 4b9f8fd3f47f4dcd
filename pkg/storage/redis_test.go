package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// setupRedisClientTest creates a miniredis instance and returns the client and cleanup function
func setupRedisClientTest(t *testing.T) (*RedisClient, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	config := DefaultConfig()
	config.RedisURL = "redis://" + mr.Addr()

	client, err := NewRedisClient(config)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return client, mr, cleanup
}

func TestNewRedisClient_Success(t *testing.T) {
	client, _, cleanup := setupRedisClientTest(t)
	defer cleanup()

	if client.GetClient() == nil {
		t.Fatal("Expected underlying redis client to be non-nil")
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if client.GetPoolStats() == nil {
		t.Fatal("Expected pool stats")
	}
}

func TestNewRedisClient_MissingURL(t *testing.T) {
	if _, err := NewRedisClient(Config{}); err == nil {
		t.Fatal("Expected error for empty Redis URL")
	}
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	if _, err := NewRedisClient(Config{RedisURL: "invalid://url"}); err == nil {
		t.Fatal("Expected error for invalid Redis URL")
	}
}

func TestNewRedisClient_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisClient(Config{RedisURL: "redis://" + addr}); err == nil {
		t.Fatal("Expected connection error")
	}
}

func TestNewRedisClient_WithCustomConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(Config{
		RedisURL:        "redis://" + mr.Addr(),
		RedisDB:         2,
		RedisMaxRetries: 5,
		RedisPoolSize:   20,
	})
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}
	defer client.Close()

	opts := client.GetClient().Options()
	if opts.DB != 2 {
		t.Errorf("Expected DB 2, got %d", opts.DB)
	}
	if opts.MaxRetries != 5 {
		t.Errorf("Expected MaxRetries 5, got %d", opts.MaxRetries)
	}
	if opts.PoolSize != 20 {
		t.Errorf("Expected PoolSize 20, got %d", opts.PoolSize)
	}

	if err := client.GetClient().Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	mr.Select(2)
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("Expected key in db 2, got %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default bolt", DefaultConfig(), false},
		{"postgres without url", Config{Backend: BackendPostgres}, true},
		{"postgres", Config{Backend: BackendPostgres, PostgresURL: "postgres://localhost/joboost"}, false},
		{"bolt without path", Config{Backend: BackendBolt}, true},
		{"unknown", Config{Backend: "sqlite"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
