package client

import (
	"context"
	"fmt"

	"Soundy/logger"
	"Soundy/model"
	"Soundy/session"
)

// awaitToken returns a token to retry with after a 401 on a request that carried sent.
//
// The in-flight check, the waiter enqueue and the flag set happen under one lock, before any
// network call, so exactly one caller starts a refresh. Everyone else either joins the waiter
// queue or, if a refresh already finished since their request left, reuses the current token.
func (c *Client) awaitToken(ctx context.Context, sent string) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if current := c.state.AccessToken(); current != "" && current != sent {
		c.mu.Unlock()
		return current, nil
	}

	c.refreshing = true
	c.mu.Unlock()

	token, err := c.refresh(ctx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	// FIFO; each channel is buffered so a waiter that gave up never blocks the rest.
	for _, w := range waiters {
		w <- refreshResult{token: token, err: err}
	}
	if len(waiters) > 0 {
		logger.Debug("[Client] 唤醒等待刷新的请求", logger.Int("waiters", len(waiters)), logger.Bool("ok", err == nil))
	}

	return token, err
}

// refresh exchanges the refresh token for a new pair. It runs detached from the caller's
// cancellation so a single abandoned request cannot fail every waiter.
func (c *Client) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	refreshToken := c.state.RefreshToken()
	if refreshToken == "" {
		c.expire(ctx)
		return "", fmt.Errorf("%w: no refresh token", ErrAuthExpired)
	}

	logger.Info("[Client] 访问令牌过期，开始刷新")

	var resp model.AuthResponse
	err := c.Post(ctx, refreshPath, model.RefreshRequest{RefreshToken: refreshToken}, &resp, SkipAuth())
	if err != nil {
		logger.Warn("[Client] 刷新令牌失败", logger.ErrorField(err))
		c.expire(ctx)
		return "", fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		logger.Warn("[Client] 刷新响应缺少令牌")
		c.expire(ctx)
		return "", fmt.Errorf("%w: refresh response missing tokens", ErrAuthExpired)
	}

	userID := resp.UserID
	if userID == "" {
		userID = c.state.UserID()
	}
	creds := session.Credentials{
		UserID:       userID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if err := c.state.Set(ctx, creds); err != nil {
		logger.Error("[Client] 保存新令牌失败", logger.ErrorField(err))
		c.expire(ctx)
		return "", fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}

	logger.Info("[Client] 令牌刷新成功", logger.String("userId", userID))
	return resp.AccessToken, nil
}

func (c *Client) expire(ctx context.Context) {
	if err := c.state.Clear(context.WithoutCancel(ctx)); err != nil {
		logger.Error("[Client] 清除会话失败", logger.ErrorField(err))
	}
}
