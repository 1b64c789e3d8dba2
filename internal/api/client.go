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
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimeout       = 15 * time.Second
	DefaultHealthTimeout = 2 * time.Second
)

// Error is a non-2xx response. Message is the server's human-readable reason.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an *Error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithHealthTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.healthTimeout = d
		}
	}
}

// Client talks to the recording server's REST endpoints.
type Client struct {
	baseURL       string
	token         string
	http          *http.Client
	healthTimeout time.Duration
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:         strings.TrimSpace(token),
		http:          &http.Client{Timeout: DefaultTimeout},
		healthTimeout: DefaultHealthTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type StartResult struct {
	SessionID string `json:"sessionId"`
}

type Settings struct {
	Hotkey   string          `json:"hotkey"`
	Features map[string]bool `json:"features"`
}

type HistoryQuery struct {
	Search   string
	Sort     string
	Page     int
	PageSize int
}

type HistoryEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
}

type HistoryPage struct {
	Items []HistoryEntry `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
}

func (c *Client) StartSession(ctx context.Context) (StartResult, error) {
	var out StartResult
	if err := c.do(ctx, http.MethodPost, "/api/session/start", nil, &out); err != nil {
		return StartResult{}, fmt.Errorf("start session: %w", err)
	}
	return out, nil
}

// StopSession asks the server to stop. Completion is reported over the
// websocket as session_finished or error.
func (c *Client) StopSession(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/session/stop", nil, nil); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var out Settings
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out); err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, q HistoryQuery) (HistoryPage, error) {
	params := url.Values{}
	if q.Search != "" {
		params.Set("q", q.Search)
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}

	path := "/api/history"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out HistoryPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return HistoryPage{}, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// Health probes the server and gives up after the health timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	if err := c.do(ctx, http.MethodGet, "/api/health", nil, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return parseError(res)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))

	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}
	return &Error{Status: res.StatusCode, Message: msg}
}
