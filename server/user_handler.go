package server

import (
	"errors"
	"net/http"

	"Soundy/logger"
	"Soundy/repository"

	"github.com/gorilla/mux"
)

// MeHandler returns the user behind the access token.
func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	h.writeUser(w, r, claims.UserID, claims.UserID)
}

// GetUserHandler returns the user with the given id.
func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	h.writeUser(w, r, mux.Vars(r)["id"], claims.UserID)
}

func (h *APIHandler) writeUser(w http.ResponseWriter, r *http.Request, id, currentID string) {
	user, err := h.userRepo.GetUserByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		logger.Error("[User] 查询用户失败", logger.String("userId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user.IsCurrentUser = user.ID == currentID
	writeJSON(w, http.StatusOK, user)
}
