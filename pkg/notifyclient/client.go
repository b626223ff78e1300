// Package notifyclient is a Go client for the notification API. Every
// request goes through a resilience.Governor, so callers get debouncing,
// an in-flight cap, retries and a circuit breaker without asking.
package notifyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jwalitptl/contract-admin/pkg/circuitbreaker"
	"github.com/jwalitptl/contract-admin/pkg/resilience"
)

const apiPrefix = "/api/v1"

type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	streamHTTP *http.Client
	governor   *resilience.Governor
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithGovernor replaces the governor built from Config.
func WithGovernor(g *resilience.Governor) Option {
	return func(c *Client) { c.governor = g }
}

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		// No client timeout: the stream stays open until cancelled.
		streamHTTP: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.governor == nil {
		c.governor = NewGovernor(cfg, c.logger)
	}
	return c
}

// NewGovernor builds the default request governor for cfg.
func NewGovernor(cfg Config, logger *zap.Logger) *resilience.Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:      "notification-api",
		Threshold: cfg.BreakerThreshold,
		Cooldown:  cfg.BreakerCooldown,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", string(from)),
				zap.String("to", string(to)))
		},
	})
	limiter := resilience.NewLimiter(resilience.LimiterConfig{
		Debounce:    cfg.Debounce,
		MaxInFlight: cfg.MaxInFlight,
	})
	retrier := resilience.NewRetrier(resilience.DefaultRetryPolicy(), nil, logger)
	return resilience.NewGovernor(breaker, limiter, retrier, logger)
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends one request through the governor. key identifies the logical
// request for debouncing; identical requests should share a key.
func (c *Client) do(ctx context.Context, key, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	raw, err := c.governor.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 300 {
			return nil, &resilience.StatusError{StatusCode: resp.StatusCode, Body: data}
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) List(ctx context.Context, page, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	path := "/notifications?" + q.Encode()

	var p Page
	if err := c.do(ctx, "GET "+path, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var res struct {
		UnreadCount int `json:"unreadCount"`
	}
	if err := c.do(ctx, "GET unread-count", http.MethodGet, "/notifications/unread-count", nil, &res); err != nil {
		return 0, err
	}
	return res.UnreadCount, nil
}

func (c *Client) MarkRead(ctx context.Context, id uuid.UUID) error {
	path := "/notifications/" + id.String() + "/read"
	return c.do(ctx, "PATCH "+path, http.MethodPatch, path, nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var res struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, "PATCH read-all", http.MethodPatch, "/notifications/read-all", nil, &res); err != nil {
		return 0, err
	}
	return res.Updated, nil
}

func (c *Client) DeleteAll(ctx context.Context) (int64, error) {
	return c.delete(ctx, "/notifications")
}

func (c *Client) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	return c.delete(ctx, "/notifications?older_than_days="+strconv.Itoa(days))
}

func (c *Client) delete(ctx context.Context, path string) (int64, error) {
	var res struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, "DELETE "+path, http.MethodDelete, path, nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

func (c *Client) CanReceive(ctx context.Context, contractID int64) (bool, error) {
	path := "/contracts/" + strconv.FormatInt(contractID, 10) + "/access"
	var res struct {
		CanReceive bool `json:"canReceive"`
	}
	if err := c.do(ctx, "GET "+path, http.MethodGet, path, nil, &res); err != nil {
		return false, err
	}
	return res.CanReceive, nil
}

// Register binds an open stream connection to userID.
func (c *Client) Register(ctx context.Context, userID int64, connectionID string) error {
	body := map[string]interface{}{"user_id": userID, "connection_id": connectionID}
	return c.do(ctx, "POST register "+connectionID, http.MethodPost, "/notifications/stream/register", body, nil)
}

// Broadcast asks the server to notify every user, or only admins.
func (c *Client) Broadcast(ctx context.Context, title, message, audience string) error {
	body := map[string]string{"title": title, "message": message, "audience": audience}
	key := "POST broadcast " + audience + " " + title
	return c.do(ctx, key, http.MethodPost, "/admin/notifications/broadcast", body, nil)
}
