package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"Soundy/core/auth"
	"Soundy/logger"
)

type contextKey int

const claimsKey contextKey = iota

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Debug("[Server] 请求完成",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.String("requestId", r.Header.Get("X-Request-ID")),
			logger.Duration("elapsed", time.Since(start)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware requires a valid bearer access token.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}
		h.serveWithToken(w, r, token, next)
	}
}

// MediaAuthMiddleware accepts the access token as ?token= (manifests) or as a bearer header
// (segments).
func (h *APIHandler) MediaAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			var ok bool
			if token, ok = bearerToken(r); !ok {
				writeError(w, http.StatusUnauthorized, "Access token is required")
				return
			}
		}
		h.serveWithToken(w, r, token, next)
	}
}

func (h *APIHandler) serveWithToken(w http.ResponseWriter, r *http.Request, token string, next http.HandlerFunc) {
	claims, err := h.jwt.ParseToken(token)
	if err != nil {
		logger.Debug("[Auth] Token校验失败", logger.ErrorField(err))
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	ctx := context.WithValue(r.Context(), claimsKey, claims)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("[Server] 写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
