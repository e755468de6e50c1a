package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"Soundy/core/auth"
	"Soundy/logger"
	"Soundy/model"
	"Soundy/repository"

	"github.com/google/uuid"
)

// SigninHandler handles user login requests. The username may also be an email address.
func (h *APIHandler) SigninHandler(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("[Login] 解析请求体失败", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username/Email and password are required")
		return
	}

	// 查询用户 - 支持用户名或邮箱登录
	var user *model.User
	var err error
	if strings.Contains(req.Username, "@") {
		user, err = h.userRepo.GetUserByEmail(r.Context(), req.Username)
	} else {
		user, err = h.userRepo.GetUserByName(r.Context(), req.Username)
	}
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("[Login] 用户不存在", logger.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "Invalid username/email or password")
		return
	}
	if err != nil {
		logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Warn("[Login] 密码验证失败", logger.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "Invalid username/email or password")
		return
	}

	resp, err := h.issueTokens(r.Context(), user)
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("[Login] 登录成功", logger.String("username", user.Name))
	writeJSON(w, http.StatusOK, resp)
}

// SignupHandler creates an account and signs it in.
func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Password == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Username, email and password are required")
		return
	}
	if strings.Contains(req.Username, "@") {
		writeError(w, http.StatusBadRequest, "Username must not contain @")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("[Register] 密码加密失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := &model.User{
		Name:         req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if req.Bio != "" {
		user.Bio = &req.Bio
	}

	err = h.userRepo.CreateUser(r.Context(), user)
	if errors.Is(err, repository.ErrDuplicateUser) {
		writeError(w, http.StatusConflict, "Username or email already exists")
		return
	}
	if err != nil {
		logger.Error("[Register] 创建用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp, err := h.issueTokens(r.Context(), user)
	if err != nil {
		logger.Error("[Register] 生成Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	resp.Message = "User registered successfully"

	logger.Info("[Register] 注册成功", logger.String("username", user.Name), logger.String("userId", user.ID))
	writeJSON(w, http.StatusCreated, resp)
}

// SignoutHandler revokes a refresh token. Unknown tokens are not an error.
func (h *APIHandler) SignoutHandler(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	if err := h.tokenRepo.Revoke(r.Context(), req.RefreshToken); err != nil {
		logger.Error("[Logout] 注销Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshTokenHandler exchanges a refresh token for a new token pair. The presented token is
// consumed, so every refresh token works once.
func (h *APIHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	userID, err := h.tokenRepo.Consume(r.Context(), req.RefreshToken)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("[Auth] 刷新Token无效或已过期")
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err != nil {
		logger.Error("[Auth] 读取刷新Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := h.userRepo.GetUserByID(r.Context(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "User no longer exists")
		return
	}
	if err != nil {
		logger.Error("[Auth] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp, err := h.issueTokens(r.Context(), user)
	if err != nil {
		logger.Error("[Auth] 生成Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Debug("[Auth] 刷新Token成功", logger.String("userId", user.ID))
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) issueTokens(ctx context.Context, user *model.User) (*model.AuthResponse, error) {
	access, err := h.jwt.GenerateToken(user.ID, user.Name)
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()
	if err := h.tokenRepo.Save(ctx, refresh, user.ID, h.refreshTTL); err != nil {
		return nil, err
	}
	return &model.AuthResponse{
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
