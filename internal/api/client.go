package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/nft-marketplace/client/internal/metrics"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const refreshPath = "/api/v1/users/refreshToken"

// TokenStore holds the bearer tokens the client attaches to requests.
type TokenStore interface {
	Tokens() models.Tokens
	SetTokens(ctx context.Context, tokens models.Tokens) error
}

// Client talks to the marketplace REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	getRetries int
	getExec    failsafe.Executor[*http.Response]
	refreshes  singleflight.Group
	log        *zap.Logger

	mu             sync.RWMutex
	onUnauthorized func(ctx context.Context)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithGetRetries sets how many times an idempotent GET is retried on
// network errors and 5xx responses. POST requests are never retried.
func WithGetRetries(n int) Option {
	return func(c *Client) { c.getRetries = n }
}

func NewClient(baseURL string, tokens TokenStore, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens:     tokens,
		getRetries: 2,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.getRetries < 0 {
		c.getRetries = 0
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(_ *http.Response, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		WithBackoff(200*time.Millisecond, 3*time.Second).
		WithMaxRetries(c.getRetries).
		Build()
	c.getExec = failsafe.With[*http.Response](retry)

	return c
}

// OnUnauthorized registers the forced-logout hook called when a refresh fails
// or a replayed request is rejected again.
func (c *Client) OnUnauthorized(fn func(ctx context.Context)) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	noRefresh   bool
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func jsonRequest(method, path string, payload any) (request, error) {
	r := request{method: method, path: path}
	if payload == nil {
		return r, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return r, err
	}
	r.body = b
	r.contentType = "application/json"
	return r, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, request{method: http.MethodGet, path: path, query: query}, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	r, err := jsonRequest(http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return c.do(ctx, r, out)
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	token := c.tokens.Tokens().AccessToken

	status, body, err := c.send(ctx, r, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !r.noRefresh {
		fresh, err := c.refresh(ctx, token)
		if err != nil {
			c.log.Warn("token refresh failed, forcing logout", zap.String("path", r.path), zap.Error(err))
			c.unauthorized(ctx)
			return ErrUnauthorized
		}

		// replay exactly once
		status, body, err = c.send(ctx, r, fresh)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			c.log.Warn("request rejected after token refresh, forcing logout", zap.String("path", r.path))
			c.unauthorized(ctx)
			return ErrUnauthorized
		}
	}

	return decode(r.path, status, body, out)
}

func (c *Client) send(ctx context.Context, r request, token string) (int, []byte, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var lastStatus *statusError
	attempt := func() (*http.Response, error) {
		var body io.Reader
		if r.body != nil {
			body = bytes.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, target, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", uuid.New().String())
		if r.contentType != "" {
			req.Header.Set("Content-Type", r.contentType)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if r.method == http.MethodGet && resp.StatusCode >= 500 {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastStatus = &statusError{status: resp.StatusCode, body: b}
			return nil, lastStatus
		}
		return resp, nil
	}

	var resp *http.Response
	var err error
	if r.method == http.MethodGet {
		resp, err = c.getExec.WithContext(ctx).Get(attempt)
	} else {
		resp, err = attempt()
	}
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			lastStatus = se
		}
		if lastStatus != nil && ctx.Err() == nil {
			metrics.ObserveAPIResponse(r.method, lastStatus.status)
			return lastStatus.status, lastStatus.body, nil
		}
		metrics.ObserveAPIResponse(r.method, 0)
		return 0, nil, fmt.Errorf("marketplace api unavailable: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response: %w", r.path, err)
	}
	metrics.ObserveAPIResponse(r.method, resp.StatusCode)
	return resp.StatusCode, b, nil
}

func decode(path string, status int, body []byte, out any) error {
	if status >= 200 && status < 300 && len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var env envelope
	jsonErr := json.Unmarshal(body, &env)

	if status < 200 || status >= 300 {
		msg := strings.TrimSpace(string(body))
		if jsonErr == nil && env.Error != "" {
			msg = env.Error
		}
		return &Error{Status: status, Message: msg, Path: path}
	}
	if jsonErr != nil {
		return fmt.Errorf("decode %s response: %w", path, jsonErr)
	}
	if env.Success != nil && !*env.Success {
		return &Error{Status: status, Message: env.Error, Path: path}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}

// refresh exchanges the refresh token once per rejected access token;
// concurrent 401s share the same exchange.
func (c *Client) refresh(ctx context.Context, rejected string) (string, error) {
	v, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		current := c.tokens.Tokens()
		if current.AccessToken != "" && current.AccessToken != rejected {
			// another caller refreshed already
			return current.AccessToken, nil
		}
		if current.RefreshToken == "" {
			return "", errors.New("no refresh token")
		}

		fresh, err := c.RefreshToken(ctx, current.RefreshToken)
		if err != nil {
			return "", err
		}
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = current.RefreshToken
		}
		if err := c.tokens.SetTokens(ctx, *fresh); err != nil {
			return "", fmt.Errorf("persist refreshed tokens: %w", err)
		}
		c.log.Debug("access token refreshed")
		return fresh.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) unauthorized(ctx context.Context) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}
