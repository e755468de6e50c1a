// Package server is a development backend speaking the API the session client and the player
// expect: signin/signup/signout/refresh-token, user and track lookups and token-protected HLS
// media.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"Soundy/core/auth"
	"Soundy/logger"
	"Soundy/repository"
	"Soundy/storage"

	"github.com/gorilla/mux"
)

// Deps are the stores and token manager behind the API.
type Deps struct {
	Users      repository.UserRepository
	Tokens     repository.RefreshTokenRepository
	Tracks     repository.TrackRepository
	Media      storage.MediaStore
	JWT        *auth.TokenManager
	RefreshTTL time.Duration
}

// APIHandler serves the /api routes.
type APIHandler struct {
	userRepo   repository.UserRepository
	tokenRepo  repository.RefreshTokenRepository
	trackRepo  repository.TrackRepository
	media      storage.MediaStore
	jwt        *auth.TokenManager
	refreshTTL time.Duration
}

func NewAPIHandler(deps Deps) *APIHandler {
	if deps.RefreshTTL <= 0 {
		deps.RefreshTTL = 30 * 24 * time.Hour
	}
	if deps.Tracks == nil {
		deps.Tracks = repository.NewMemoryTrackRepository()
	}
	return &APIHandler{
		userRepo:   deps.Users,
		tokenRepo:  deps.Tokens,
		trackRepo:  deps.Tracks,
		media:      deps.Media,
		jwt:        deps.JWT,
		refreshTTL: deps.RefreshTTL,
	}
}

// Router builds the gorilla/mux router with every endpoint mounted under /api.
func (h *APIHandler) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(corsMiddleware, logMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	// 用户认证相关的API端点
	api.HandleFunc("/auth/signin", h.SigninHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/signup", h.SignupHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/signout", h.SignoutHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh-token", h.RefreshTokenHandler).Methods(http.MethodPost)

	// 用户相关的API端点
	api.HandleFunc("/user/me", h.AuthMiddleware(h.MeHandler)).Methods(http.MethodGet)
	api.HandleFunc("/user/{id}", h.AuthMiddleware(h.GetUserHandler)).Methods(http.MethodGet)

	// 曲目相关的API端点
	api.HandleFunc("/tracks", h.AuthMiddleware(h.GetTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id}", h.AuthMiddleware(h.GetTrackHandler)).Methods(http.MethodGet)
	api.HandleFunc("/track", h.AuthMiddleware(h.CreateTrackHandler)).Methods(http.MethodPost)
	api.HandleFunc("/track/author/{id}", h.AuthMiddleware(h.GetAuthorTracksHandler)).Methods(http.MethodGet)

	// HLS 媒体文件
	api.HandleFunc("/file/track/{id}/"+storage.ManifestName, h.MediaAuthMiddleware(h.ManifestHandler)).Methods(http.MethodGet)
	api.HandleFunc("/file/track/{id}/{segment}", h.MediaAuthMiddleware(h.SegmentHandler)).Methods(http.MethodGet)

	return router
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] 服务启动", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("[Server] 正在关闭服务...", logger.String("addr", addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("[Server] 服务已停止", logger.String("addr", addr))
	return nil
}
