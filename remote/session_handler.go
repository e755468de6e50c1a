package remote

import (
	"encoding/json"
	"errors"
	"net/http"

	"Soundy/client"
	"Soundy/logger"
	"Soundy/model"
	"Soundy/services"
)

type sessionStatus struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user,omitempty"`
}

// StatusHandler reports whether a user is signed in, with the user record when reachable.
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !h.session.IsAuthenticated() {
		writeJSON(w, http.StatusOK, sessionStatus{})
		return
	}

	user, err := h.session.Current(r.Context())
	switch {
	case errors.Is(err, client.ErrAuthExpired), errors.Is(err, services.ErrNotAuthenticated):
		writeJSON(w, http.StatusOK, sessionStatus{})
	case err != nil:
		logger.Warn("[Remote] 获取当前用户失败", logger.ErrorField(err))
		writeJSON(w, http.StatusOK, sessionStatus{Authenticated: h.session.IsAuthenticated()})
	default:
		writeJSON(w, http.StatusOK, sessionStatus{Authenticated: true, User: user})
	}
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	resp, err := h.session.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		status := client.StatusCode(err)
		if status < 400 {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": resp.UserID})
}

// LogoutHandler clears the session. Playback is torn down by the session's clear hook.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		logger.Error("[Remote] 注销失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
