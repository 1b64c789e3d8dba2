package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/hub"
	"github.com/sjawhar/ghost-wispr-live/internal/logging"
	"github.com/sjawhar/ghost-wispr-live/internal/observability"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
	"github.com/sjawhar/ghost-wispr-live/internal/transport"
)

// Channel is what views need from the shared connection. Views never own it.
type Channel interface {
	IsConnected() bool
	Subscribe(hub.Handler) func()
	Send(v any)
}

type Options struct {
	URL         string
	Token       string
	Dialer      transport.Dialer
	Backoff     transport.Backoff
	MaxAttempts int
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
}

// Client owns one transport and one hub for its whole lifetime.
type Client struct {
	id      string
	manager *transport.Manager
	hub     *hub.Hub
	log     zerolog.Logger
}

var _ Channel = (*Client)(nil)

func New(opts Options) (*Client, error) {
	wsURL, err := transport.NormalizeURL(opts.URL)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	wsURL, err = withClientID(wsURL, id)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = transport.NewWSDialer(opts.Token)
	}

	manager := transport.New(transport.Options{
		URL:         wsURL,
		Dialer:      dialer,
		Backoff:     opts.Backoff,
		MaxAttempts: opts.MaxAttempts,
		Logger:      logging.Component(opts.Logger, "transport"),
		Metrics:     opts.Metrics,
	})
	h := hub.New(manager, logging.Component(opts.Logger, "hub"), opts.Metrics)
	manager.OnMessage(h.Dispatch)

	return &Client{
		id:      id,
		manager: manager,
		hub:     h,
		log:     logging.Component(opts.Logger, "client"),
	}, nil
}

func withClientID(raw, id string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("client", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Start(ctx context.Context) {
	c.log.Info().Str("client_id", c.id).Msg("starting live connection")
	c.manager.Start(ctx)
}

func (c *Client) Close() error {
	return c.manager.Close()
}

func (c *Client) Done() <-chan struct{} {
	return c.manager.Done()
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) IsConnected() bool {
	return c.manager.IsConnected()
}

func (c *Client) Subscribe(handler hub.Handler) func() {
	return c.hub.Subscribe(handler)
}

func (c *Client) SubscribeChan(size int) (<-chan protocol.Message, func()) {
	return c.hub.SubscribeChan(size)
}

func (c *Client) Send(v any) {
	c.hub.Send(v)
}

// OnStateChange forwards connection state transitions.
func (c *Client) OnStateChange(callback func(transport.State)) {
	c.manager.OnStateChange(callback)
}

func (c *Client) State() transport.State {
	return c.manager.State()
}

func (c *Client) Attempt() int {
	return c.manager.Attempt()
}

func (c *Client) LastError() error {
	return c.manager.LastError()
}
