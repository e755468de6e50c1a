package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Soundy/model"
	"Soundy/session"
)

func newSession(t *testing.T, access string) (*session.State, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	state := session.NewState(store)
	if access != "" {
		if err := state.Set(context.Background(), session.Credentials{UserID: "u1", AccessToken: access, RefreshToken: "r1"}); err != nil {
			t.Fatalf("failed to seed session: %v", err)
		}
	}
	return state, store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClientAuthorization(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	state, _ := newSession(t, "a1")
	c := New(srv.URL, state)

	t.Run("Attaches Bearer Token", func(t *testing.T) {
		var out map[string]string
		if err := c.Get(context.Background(), "/tracks", &out); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotAuth.Load() != "Bearer a1" {
			t.Errorf("expected bearer header, got %v", gotAuth.Load())
		}
		if out["ok"] != "yes" {
			t.Errorf("unexpected body %v", out)
		}
	})

	t.Run("SkipAuth Omits Token", func(t *testing.T) {
		if err := c.Post(context.Background(), "/auth/signin", model.LoginRequest{Username: "alex"}, nil, SkipAuth()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotAuth.Load() != "" {
			t.Errorf("expected no authorization header, got %v", gotAuth.Load())
		}
	})
}

func TestClientResponses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/json-error", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "username already taken"})
	})
	mux.HandleFunc("/text-error", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/bad-json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	state, _ := newSession(t, "a1")
	c := New(srv.URL, state)
	ctx := context.Background()

	t.Run("204 Skips Decoding", func(t *testing.T) {
		out := map[string]string{"kept": "value"}
		if err := c.Delete(ctx, "/empty", &out); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out["kept"] != "value" {
			t.Error("expected output to be untouched")
		}
	})

	t.Run("JSON Error Message", func(t *testing.T) {
		err := c.Get(ctx, "/json-error", nil)
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("expected HTTPError, got %v", err)
		}
		if httpErr.Status != http.StatusConflict || httpErr.Message != "username already taken" {
			t.Errorf("unexpected error %+v", httpErr)
		}
	})

	t.Run("Status Line Message", func(t *testing.T) {
		err := c.Get(ctx, "/text-error", nil)
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("expected HTTPError, got %v", err)
		}
		if httpErr.Message != "500 Internal Server Error" {
			t.Errorf("expected status line, got %q", httpErr.Message)
		}
		if StatusCode(err) != http.StatusInternalServerError {
			t.Errorf("expected StatusCode 500, got %d", StatusCode(err))
		}
	})

	t.Run("Undecodable Body", func(t *testing.T) {
		var out map[string]string
		err := c.Get(ctx, "/bad-json", &out)
		if err == nil {
			t.Fatal("expected decode error")
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			t.Error("decode failures are not HTTP errors")
		}
	})

	t.Run("Network Error", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()

		err := New(dead.URL, state).Get(ctx, "/anything", nil)
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("expected NetworkError, got %v", err)
		}
	})
}

// refreshServer issues 401 for every token except the current one and counts traffic.
type refreshServer struct {
	mu           sync.Mutex
	current      string
	next         string
	refreshCalls int
	dataCalls    int
	staleHits    int
	failRefresh  bool
	refreshGate  func()
	dataPayload  any
}

func (s *refreshServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("refresh must be sent without a bearer token")
		}
		var body model.RefreshRequest
		json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.refreshCalls++
		fail := s.failRefresh
		gate := s.refreshGate
		s.mu.Unlock()

		if gate != nil {
			gate()
		}
		if fail || body.RefreshToken != "r1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "refresh token revoked"})
			return
		}

		s.mu.Lock()
		s.current = s.next
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, model.AuthResponse{UserID: "u1", AccessToken: s.next, RefreshToken: "r2"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.dataCalls++
		ok := r.Header.Get("Authorization") == "Bearer "+s.current
		if !ok {
			s.staleHits++
		}
		payload := s.dataPayload
		s.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
			return
		}
		if payload == nil {
			payload = map[string]string{"path": r.URL.Path}
		}
		writeJSON(w, http.StatusOK, payload)
	})
	return mux
}

func (s *refreshServer) counts() (refresh, data, stale int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls, s.dataCalls, s.staleHits
}

func TestSingleFlightRefresh(t *testing.T) {
	const n = 8

	rs := &refreshServer{current: "fresh", next: "fresh"}
	arrived := make(chan struct{})
	var once sync.Once
	rs.refreshGate = func() {
		// hold the refresh until every request has been rejected once
		deadline := time.After(2 * time.Second)
		for {
			_, _, stale := rs.counts()
			if stale >= n {
				once.Do(func() { close(arrived) })
				return
			}
			select {
			case <-deadline:
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
	srv := httptest.NewServer(rs.handler(t))
	defer srv.Close()

	state, store := newSession(t, "stale")
	c := New(srv.URL, state)

	var wg sync.WaitGroup
	errs := make([]error, n)
	results := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Get(context.Background(), "/tracks", &results[i])
		}(i)
	}
	wg.Wait()

	select {
	case <-arrived:
	default:
		t.Fatal("not every request reached the server before the refresh completed")
	}

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: expected no error, got %v", i, err)
		}
		if results[i]["path"] != "/tracks" {
			t.Errorf("request %d: unexpected result %v", i, results[i])
		}
	}

	refresh, data, _ := rs.counts()
	if refresh != 1 {
		t.Errorf("expected exactly one refresh call, got %d", refresh)
	}
	if data != 2*n {
		t.Errorf("expected each request to be replayed exactly once (%d calls), got %d", 2*n, data)
	}

	stored, _ := store.Load(context.Background())
	if stored.AccessToken != "fresh" || stored.RefreshToken != "r2" || stored.UserID != "u1" {
		t.Errorf("expected rotated tokens to be persisted, got %+v", stored)
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	const n = 5

	rs := &refreshServer{current: "fresh", next: "fresh", failRefresh: true}
	rs.refreshGate = func() {
		deadline := time.After(2 * time.Second)
		for {
			if _, _, stale := rs.counts(); stale >= n {
				return
			}
			select {
			case <-deadline:
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
	srv := httptest.NewServer(rs.handler(t))
	defer srv.Close()

	state, store := newSession(t, "stale")
	cleared := 0
	state.OnClear(func() { cleared++ })
	c := New(srv.URL, state)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Get(context.Background(), "/user/me", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrAuthExpired) {
			t.Errorf("request %d: expected ErrAuthExpired, got %v", i, err)
		}
	}
	if state.IsAuthenticated() {
		t.Error("expected session to be cleared")
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected store to be cleared, got %v", err)
	}
	if cleared != 1 {
		t.Errorf("expected one clear notification, got %d", cleared)
	}
	if refresh, _, _ := rs.counts(); refresh != 1 {
		t.Errorf("expected one refresh call, got %d", refresh)
	}
}

func TestExpiredTokenScenario(t *testing.T) {
	rs := &refreshServer{
		current:     "a2",
		next:        "a2",
		dataPayload: model.User{ID: "u1", Name: "alex"},
	}
	srv := httptest.NewServer(rs.handler(t))
	defer srv.Close()

	state, _ := newSession(t, "a1")
	c := New(srv.URL, state)

	var user model.User
	if err := c.Get(context.Background(), "/user/me", &user); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("expected user u1, got %+v", user)
	}

	refresh, data, _ := rs.counts()
	// one rejected call, then exactly refresh + retry
	if refresh != 1 || data != 2 {
		t.Errorf("expected 1 refresh and 1 retry after the 401, got refresh=%d data=%d", refresh, data-1)
	}
}

func TestUnrecoverable401AfterRefresh(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, model.AuthResponse{UserID: "u1", AccessToken: "a2", RefreshToken: "r2"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "nope"})
	})
	srv2 := httptest.NewServer(mux)
	defer srv2.Close()

	state, _ := newSession(t, "a1")
	err := New(srv2.URL, state).Get(context.Background(), "/user/me", nil)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if state.IsAuthenticated() {
		t.Error("expected session to be cleared after a 401 on the retry")
	}
	if refreshCalls.Load() != 1 {
		t.Errorf("expected a single refresh, got %d", refreshCalls.Load())
	}
}

func TestUploadReplaysBodyAfterRefresh(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	current := "a2"

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.AuthResponse{UserID: "u1", AccessToken: current, RefreshToken: "r2"})
	})
	mux.HandleFunc("/track/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart body, got %v", err)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected file part, got %v", err)
			return
		}
		data, _ := io.ReadAll(file)

		mu.Lock()
		bodies = append(bodies, r.FormValue("title")+":"+string(data))
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+current {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "expired"})
			return
		}
		writeJSON(w, http.StatusCreated, model.Track{ID: "t1", Title: r.FormValue("title")})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	state, _ := newSession(t, "a1")
	form := NewForm().AddField("title", "Chill Vibes").AddFile("file", "song.mp3", strings.NewReader("ID3-audio"))

	var track model.Track
	if err := New(srv.URL, state).Upload(context.Background(), "/track/upload", form, &track); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if track.ID != "t1" {
		t.Errorf("unexpected track %+v", track)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("expected original and replayed upload, got %d", len(bodies))
	}
	for i, b := range bodies {
		if b != "Chill Vibes:ID3-audio" {
			t.Errorf("attempt %d: body not replayed intact: %q", i, b)
		}
	}
}

func TestWaiterHonoursContext(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, model.AuthResponse{UserID: "u1", AccessToken: "a2", RefreshToken: "r2"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a2" {
			writeJSON(w, http.StatusUnauthorized, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	state, _ := newSession(t, "a1")
	c := New(srv.URL, state)

	leaderDone := make(chan error, 1)
	go func() { leaderDone <- c.Get(context.Background(), "/a", nil) }()

	// wait until the leader holds the refresh
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		refreshing := c.refreshing
		c.mu.Unlock()
		if refreshing || time.Now().After(deadline) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Get(ctx, "/b", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected waiter to give up with its context, got %v", err)
	}

	close(release)
	if err := <-leaderDone; err != nil {
		t.Errorf("expected leader to succeed, got %v", err)
	}
}
