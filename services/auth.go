// Package services wraps the REST endpoints the player and the CLI consume. Every call goes
// through the session-aware client.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"Soundy/client"
	"Soundy/logger"
	"Soundy/model"
	"Soundy/session"
)

// ErrNotAuthenticated is returned by calls that need a signed-in user when there is none.
var ErrNotAuthenticated = errors.New("not authenticated")

// Auth signs users in and out and keeps the session state in step.
type Auth struct {
	c     *client.Client
	state *session.State
}

func NewAuth(c *client.Client) *Auth {
	return &Auth{c: c, state: c.Session()}
}

// Login 使用用户名密码登录，成功后持久化三项会话数据
func (a *Auth) Login(ctx context.Context, username, password string) (*model.AuthResponse, error) {
	req := model.LoginRequest{Username: username, Password: password}

	var resp model.AuthResponse
	if err := a.c.Post(ctx, "/auth/signin", req, &resp, client.SkipAuth()); err != nil {
		logger.Warn("[Login] 登录失败", logger.String("username", username), logger.ErrorField(err))
		return nil, err
	}
	if err := a.install(ctx, &resp); err != nil {
		return nil, err
	}

	logger.Info("[Login] 登录成功", logger.String("username", username), logger.String("userId", resp.UserID))
	return &resp, nil
}

// Register creates an account and signs it in.
func (a *Auth) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := a.c.Post(ctx, "/auth/signup", req, &resp, client.SkipAuth()); err != nil {
		logger.Warn("[Register] 注册失败", logger.String("username", req.Username), logger.ErrorField(err))
		return nil, err
	}
	if err := a.install(ctx, &resp); err != nil {
		return nil, err
	}

	logger.Info("[Register] 注册成功", logger.String("username", req.Username), logger.String("userId", resp.UserID))
	return &resp, nil
}

func (a *Auth) install(ctx context.Context, resp *model.AuthResponse) error {
	creds := session.Credentials{
		UserID:       resp.UserID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if err := a.state.Set(ctx, creds); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Logout revokes the refresh token on a best-effort basis and always clears the local session.
func (a *Auth) Logout(ctx context.Context) error {
	refreshToken := a.state.RefreshToken()
	if refreshToken != "" {
		err := a.c.Post(ctx, "/auth/signout", model.RefreshRequest{RefreshToken: refreshToken}, nil, client.SkipAuth())
		if err != nil {
			logger.Warn("[Logout] 服务端注销失败，继续清除本地会话", logger.ErrorField(err))
		}
	}
	return a.state.Clear(ctx)
}

// Restore rehydrates a persisted session at cold start and validates it by fetching the user
// record. A session that fails validation is cleared. It returns nil, nil when there is nothing
// to restore.
func (a *Auth) Restore(ctx context.Context) (*model.User, error) {
	ok, err := a.state.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	userID := a.state.UserID()
	var user model.User
	if err := a.c.Get(ctx, "/user/"+url.PathEscape(userID), &user); err != nil {
		logger.Warn("[Session] 会话校验失败，清除本地会话", logger.String("userId", userID), logger.ErrorField(err))
		if clearErr := a.state.Clear(ctx); clearErr != nil {
			logger.Error("[Session] 清除会话失败", logger.ErrorField(clearErr))
		}
		return nil, err
	}

	logger.Info("[Session] 会话已恢复", logger.String("userId", userID))
	return &user, nil
}

// Current returns the signed-in user, or ErrNotAuthenticated.
func (a *Auth) Current(ctx context.Context) (*model.User, error) {
	if !a.state.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	var user model.User
	if err := a.c.Get(ctx, "/user/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *Auth) IsAuthenticated() bool {
	return a.state.IsAuthenticated()
}
