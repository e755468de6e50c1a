package session

import (
	"context"
	"errors"
	"testing"
)

type failingStore struct {
	MemoryStore
	saveErr  error
	clearErr error
}

func (f *failingStore) Save(ctx context.Context, creds Credentials) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, creds)
}

func (f *failingStore) Clear(ctx context.Context) error {
	f.MemoryStore.Clear(ctx)
	return f.clearErr
}

func TestState(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{UserID: "u1", AccessToken: "a1", RefreshToken: "r1"}

	t.Run("Set Persists All Three Values", func(t *testing.T) {
		store := NewMemoryStore()
		state := NewState(store)

		if err := state.Set(ctx, creds); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !state.IsAuthenticated() {
			t.Error("expected authenticated state")
		}

		stored, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("expected stored credentials, got %v", err)
		}
		if stored != creds {
			t.Errorf("expected %+v, got %+v", creds, stored)
		}
	})

	t.Run("Set Rejects Partial Credentials", func(t *testing.T) {
		state := NewState(nil)
		err := state.Set(ctx, Credentials{UserID: "u1", AccessToken: "a1"})
		if !errors.Is(err, ErrIncomplete) {
			t.Errorf("expected ErrIncomplete, got %v", err)
		}
		if state.IsAuthenticated() {
			t.Error("partial credentials must not authenticate")
		}
	})

	t.Run("Set Keeps Previous Session When Store Fails", func(t *testing.T) {
		store := &failingStore{}
		state := NewState(store)
		if err := state.Set(ctx, creds); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		store.saveErr = errors.New("disk full")
		err := state.Set(ctx, Credentials{UserID: "u1", AccessToken: "a2", RefreshToken: "r2"})
		if err == nil {
			t.Fatal("expected save error")
		}
		if state.AccessToken() != "a1" {
			t.Errorf("expected previous token to survive, got %s", state.AccessToken())
		}
	})

	t.Run("Restore", func(t *testing.T) {
		store := NewMemoryStore()
		store.Save(ctx, creds)

		state := NewState(store)
		ok, err := state.Restore(ctx)
		if err != nil || !ok {
			t.Fatalf("expected restored session, got ok=%v err=%v", ok, err)
		}
		if state.UserID() != "u1" || state.RefreshToken() != "r1" {
			t.Errorf("unexpected credentials %+v", state.Credentials())
		}
	})

	t.Run("Restore Wipes Partial Record", func(t *testing.T) {
		store := NewMemoryStore()
		store.Save(ctx, Credentials{AccessToken: "a1"})

		state := NewState(store)
		ok, err := state.Restore(ctx)
		if err != nil || ok {
			t.Fatalf("expected no session, got ok=%v err=%v", ok, err)
		}
		if _, err := store.Load(ctx); !errors.Is(err, ErrNoSession) {
			t.Errorf("expected partial record to be removed, got %v", err)
		}
	})

	t.Run("Restore Without Session", func(t *testing.T) {
		state := NewState(nil)
		ok, err := state.Restore(ctx)
		if err != nil || ok {
			t.Errorf("expected ok=false err=nil, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Clear Runs Hooks Once", func(t *testing.T) {
		state := NewState(nil)
		state.Set(ctx, creds)

		calls := 0
		state.OnClear(func() { calls++ })

		if err := state.Clear(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := state.Clear(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected hook to run once, ran %d times", calls)
		}
		if state.IsAuthenticated() || state.AccessToken() != "" {
			t.Error("expected anonymous state after clear")
		}
	})

	t.Run("Clear Empties Memory When Store Fails", func(t *testing.T) {
		store := &failingStore{clearErr: errors.New("read-only")}
		state := NewState(store)
		state.Set(ctx, creds)

		if err := state.Clear(ctx); err == nil {
			t.Error("expected store error")
		}
		if state.IsAuthenticated() {
			t.Error("expected in-memory session to be cleared")
		}
	})
}
