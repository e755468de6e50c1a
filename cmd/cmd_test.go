package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"Soundy/config"
	"Soundy/storage"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"login", "register", "logout", "whoami", "play", "server", "ingest", "redis"}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("expected command %q to be registered", name)
		}
	}
}

func TestNewOutput(t *testing.T) {
	cfg = &config.Config{}

	out, err := newOutput("headless", nil)
	if err != nil {
		t.Fatalf("expected a headless output, got %v", err)
	}
	out.Close()

	if _, err := newOutput("speakers", nil); err == nil {
		t.Fatalf("expected an error for an unknown output")
	}
}

func TestNewSessionEnv(t *testing.T) {
	t.Run("File Store", func(t *testing.T) {
		cfg = &config.Config{
			APIURL:       "http://localhost:8085/api",
			SessionStore: "file",
			SessionFile:  filepath.Join(t.TempDir(), "session.json"),
		}
		env, err := newSessionEnv()
		if err != nil {
			t.Fatalf("newSessionEnv failed: %v", err)
		}
		defer env.Close()
		if env.state.IsAuthenticated() {
			t.Fatalf("expected an anonymous session")
		}
		if env.client.BaseURL() != cfg.APIURL {
			t.Fatalf("expected base %s, got %s", cfg.APIURL, env.client.BaseURL())
		}
	})

	t.Run("Unknown Store", func(t *testing.T) {
		cfg = &config.Config{SessionStore: "cookie"}
		if _, err := newSessionEnv(); err == nil {
			t.Fatalf("expected an error for an unknown session store")
		}
	})
}

func TestOpenBackend(t *testing.T) {
	t.Run("In Memory", func(t *testing.T) {
		cfg = &config.Config{
			UserStore:  "memory",
			TokenStore: "memory",
			MediaStore: "local",
			MediaDir:   t.TempDir(),
		}
		b, err := openBackend(context.Background())
		if err != nil {
			t.Fatalf("openBackend failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.media.(*storage.LocalStore); !ok {
			t.Fatalf("expected a local media store, got %T", b.media)
		}
		if b.users == nil || b.tokens == nil || b.tracks == nil {
			t.Fatalf("expected user, token and track stores")
		}
	})

	t.Run("Unknown Stores", func(t *testing.T) {
		tests := []config.Config{
			{UserStore: "postgres", TokenStore: "memory", MediaStore: "local"},
			{UserStore: "memory", TokenStore: "etcd", MediaStore: "local"},
			{UserStore: "memory", TokenStore: "memory", MediaStore: "s3"},
		}
		for _, tt := range tests {
			c := tt
			c.MediaDir = t.TempDir()
			cfg = &c
			if _, err := openBackend(context.Background()); err == nil {
				t.Errorf("expected an error for %+v", c)
			}
		}
	})
}
