package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"Soundy/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	alice := &model.User{Name: "alice", Email: "alice@example.com", PasswordHash: "h"}
	if err := repo.CreateUser(ctx, alice); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if alice.ID == "" {
		t.Fatalf("expected an id to be assigned")
	}

	t.Run("Lookups", func(t *testing.T) {
		for name, lookup := range map[string]func() (*model.User, error){
			"id":    func() (*model.User, error) { return repo.GetUserByID(ctx, alice.ID) },
			"name":  func() (*model.User, error) { return repo.GetUserByName(ctx, "alice") },
			"email": func() (*model.User, error) { return repo.GetUserByEmail(ctx, "ALICE@example.com") },
		} {
			u, err := lookup()
			if err != nil {
				t.Fatalf("lookup by %s failed: %v", name, err)
			}
			if u.ID != alice.ID {
				t.Fatalf("lookup by %s returned %s, expected %s", name, u.ID, alice.ID)
			}
		}
	})

	t.Run("Duplicates", func(t *testing.T) {
		err := repo.CreateUser(ctx, &model.User{Name: "alice", Email: "other@example.com"})
		if !errors.Is(err, ErrDuplicateUser) {
			t.Fatalf("expected ErrDuplicateUser for a taken name, got %v", err)
		}
		err = repo.CreateUser(ctx, &model.User{Name: "bob", Email: "alice@example.com"})
		if !errors.Is(err, ErrDuplicateUser) {
			t.Fatalf("expected ErrDuplicateUser for a taken email, got %v", err)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, err := repo.GetUserByName(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.GetUserByEmail(ctx, ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for an empty email, got %v", err)
		}
	})

	t.Run("Returned Users Are Copies", func(t *testing.T) {
		u, _ := repo.GetUserByID(ctx, alice.ID)
		u.Name = "mallory"
		again, _ := repo.GetUserByID(ctx, alice.ID)
		if again.Name != "alice" {
			t.Fatalf("expected stored user to be unchanged, got %s", again.Name)
		}
	})
}

func testTokenRepository(t *testing.T, repo RefreshTokenRepository) {
	ctx := context.Background()
	token := uuid.NewString()

	if err := repo.Save(ctx, token, "u1", time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	userID, err := repo.Consume(ctx, token)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("expected u1, got %s", userID)
	}
	if _, err := repo.Consume(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a consumed token to be gone, got %v", err)
	}

	revoked := uuid.NewString()
	repo.Save(ctx, revoked, "u1", time.Minute)
	if err := repo.Revoke(ctx, revoked); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := repo.Consume(ctx, revoked); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a revoked token to be gone, got %v", err)
	}
}

func TestMemoryTrackRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTrackRepository()

	first := &model.Track{ID: "t1", Title: "First", AuthorID: "u1", Duration: 2}
	if err := repo.CreateTrack(ctx, first); err != nil {
		t.Fatalf("CreateTrack failed: %v", err)
	}
	time.Sleep(time.Millisecond)
	second := &model.Track{Title: "Second", AuthorID: "u2"}
	if err := repo.CreateTrack(ctx, second); err != nil {
		t.Fatalf("CreateTrack failed: %v", err)
	}
	if second.ID == "" {
		t.Fatalf("expected an id to be assigned")
	}

	t.Run("By ID", func(t *testing.T) {
		got, err := repo.GetTrackByID(ctx, "t1")
		if err != nil {
			t.Fatalf("GetTrackByID failed: %v", err)
		}
		if got.Title != "First" || got.Duration != 2 {
			t.Fatalf("unexpected track %+v", got)
		}
		if _, err := repo.GetTrackByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Duplicate ID", func(t *testing.T) {
		if err := repo.CreateTrack(ctx, &model.Track{ID: "t1", Title: "Again"}); err == nil {
			t.Fatalf("expected an error for a taken id")
		}
	})

	t.Run("Listing", func(t *testing.T) {
		all, _ := repo.ListTracks(ctx)
		if len(all) != 2 || all[0].ID != second.ID {
			t.Fatalf("expected both tracks newest first, got %+v", all)
		}
		mine, _ := repo.GetTracksByAuthor(ctx, "u1")
		if len(mine) != 1 || mine[0].ID != "t1" {
			t.Fatalf("expected only t1 for u1, got %+v", mine)
		}
		none, _ := repo.GetTracksByAuthor(ctx, "u9")
		if none == nil || len(none) != 0 {
			t.Fatalf("expected an empty list, got %#v", none)
		}
	})
}

func TestMemoryTokenRepository(t *testing.T) {
	testTokenRepository(t, NewMemoryTokenRepository())

	t.Run("Expired", func(t *testing.T) {
		repo := NewMemoryTokenRepository().(*memoryTokenRepository)
		repo.Save(context.Background(), "old", "u1", time.Minute)
		repo.now = func() time.Time { return time.Now().Add(time.Hour) }
		if _, err := repo.Consume(context.Background(), "old"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for an expired token, got %v", err)
		}
	})
}

// Runs against a live server when SOUNDY_TEST_REDIS (host:port) is set.
func TestRedisTokenRepository(t *testing.T) {
	addr := os.Getenv("SOUNDY_TEST_REDIS")
	if addr == "" {
		t.Skip("SOUNDY_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	testTokenRepository(t, NewRedisTokenRepository(client, "soundy:test:refresh:"))
}
