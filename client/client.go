// Package client is the session-aware HTTP client shared by every REST service. It attaches the
// bearer token, renews it once on 401 with a single coordinated refresh, and replays the failed
// request with the new token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"Soundy/logger"
	"Soundy/session"

	"github.com/google/uuid"
)

const (
	refreshPath     = "/auth/refresh-token"
	maxErrorBody    = 64 << 10
	defaultTimeout  = 30 * time.Second
	defaultRefreshT = 15 * time.Second
)

// Client performs authenticated calls against the REST API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	state          *session.State
	refreshTimeout time.Duration
	userAgent      string

	// refresh coordination
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRefreshTimeout bounds the token refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client for baseURL (e.g. http://localhost:8085/api) bound to state.
func New(baseURL string, state *session.State, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: defaultTimeout},
		state:          state,
		refreshTimeout: defaultRefreshT,
		userAgent:      "soundy",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the state the client reads tokens from.
func (c *Client) Session() *session.State {
	return c.state
}

type callOptions struct {
	skipAuth bool
	query    url.Values
	header   http.Header
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

// SkipAuth sends the call without a bearer token and disables 401 handling.
func SkipAuth() CallOption {
	return func(o *callOptions) {
		o.skipAuth = true
	}
}

// WithQuery appends query parameters to the path.
func WithQuery(q url.Values) CallOption {
	return func(o *callOptions) {
		o.query = q
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Set(key, value)
	}
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	opts        callOptions
}

// Get issues GET path and decodes the JSON response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any, opts ...CallOption) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out, opts)
}

// Post issues POST path with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out, opts)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return c.doJSON(ctx, http.MethodPatch, path, body, out, opts)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...CallOption) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out, opts)
}

// Upload posts a multipart form. The encoded body is kept so it can be replayed after a refresh.
func (c *Client) Upload(ctx context.Context, path string, form *Form, out any, opts ...CallOption) error {
	body, contentType, err := form.encode()
	if err != nil {
		return err
	}
	req := &request{
		method:      http.MethodPost,
		path:        path,
		body:        body,
		contentType: contentType,
		opts:        buildOptions(opts),
	}
	return c.do(ctx, req, out)
}

func buildOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, opts []CallOption) error {
	req := &request{
		method: method,
		path:   path,
		opts:   buildOptions(opts),
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		req.body = data
		req.contentType = "application/json"
	}
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req *request, out any) error {
	var token string
	if !req.opts.skipAuth {
		token = c.state.AccessToken()
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.opts.skipAuth {
		discard(resp)

		fresh, err := c.awaitToken(ctx, token)
		if err != nil {
			return err
		}

		resp, err = c.send(ctx, req, fresh)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			logger.Warn("[Client] 刷新后请求仍被拒绝，清除会话",
				logger.String("method", req.method),
				logger.String("path", req.path))
			c.expire(ctx)
			return ErrAuthExpired
		}
	}

	return c.decode(req, resp, out)
}

func (c *Client) send(ctx context.Context, req *request, token string) (*http.Response, error) {
	target := c.baseURL + req.path
	if len(req.opts.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.opts.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", req.method, req.path, err)
	}

	for key, values := range req.opts.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn("[Client] 请求失败",
			logger.String("method", req.method),
			logger.String("path", req.path),
			logger.String("requestId", requestID),
			logger.ErrorField(err))
		return nil, &NetworkError{Method: req.method, URL: target, Err: err}
	}

	logger.Debug("[Client] 请求完成",
		logger.String("method", req.method),
		logger.String("path", req.path),
		logger.String("requestId", requestID),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))
	return resp, nil
}

func (c *Client) decode(req *request, resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp)
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: req.method, URL: c.baseURL + req.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// newHTTPError takes the message from a JSON body ("message" or "error") and falls back to the
// status line.
func newHTTPError(resp *http.Response) *HTTPError {
	httpErr := &HTTPError{Status: resp.StatusCode, Message: resp.Status}
	if httpErr.Message == "" {
		httpErr.Message = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return httpErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return httpErr
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return httpErr
	}
	switch {
	case payload.Message != "":
		httpErr.Message = payload.Message
	case payload.Error != "":
		httpErr.Message = payload.Error
	}
	return httpErr
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
