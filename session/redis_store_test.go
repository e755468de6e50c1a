package session

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// Runs against a live server when SOUNDY_TEST_REDIS (host:port) is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SOUNDY_TEST_REDIS")
	if addr == "" {
		t.Skip("SOUNDY_TEST_REDIS not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisStore(client, "soundy:test:session:"+t.Name())
	defer store.Clear(ctx)

	creds := Credentials{UserID: "u1", AccessToken: "a1", RefreshToken: "r1"}
	if err := store.Save(ctx, creds); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if loaded != creds {
		t.Errorf("expected %+v, got %+v", creds, loaded)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}
