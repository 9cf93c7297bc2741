// Package ripple provides the official Go SDK for the Ripple realtime
// messaging service.
//
// Covers the realtime connectivity layer: connection lifecycle, presence
// tracking, message stream normalization, and typing indicators.
//
// Example:
//
//	client := ripple.NewClient("rp-token-...")
//
//	rt := client.Realtime()
//	rt.OnStatusChange(func(c ripple.StatusChange) { log.Println(c.Status) })
//
//	if err := rt.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	rt.JoinChannels(ctx, "general")
//
//	sub := rt.SubscribeChannel("general", ripple.StreamHandlers{
//		OnNew: func(msg *ripple.Message) { fmt.Println(msg.Content) },
//	}, nil)
//	defer sub.Close()
package ripple

import (
	"log/slog"
	"strings"
	"time"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
)

var environments = map[Environment]string{
	Production: "https://ripple.chat",
}

const DefaultEndpoint = "https://ripple.chat"

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token    string
	endpoint string
	logger   *slog.Logger

	heartbeatInterval    time.Duration
	maxReconnectAttempts int
	reconnectBaseDelay   time.Duration
	manualResumeDelay    time.Duration
}

type ClientOption func(*Client)

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.endpoint = u
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func WithHeartbeatInterval(interval time.Duration) ClientOption {
	return func(c *Client) { c.heartbeatInterval = interval }
}

func WithReconnectPolicy(maxAttempts int, baseDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxReconnectAttempts = maxAttempts
		c.reconnectBaseDelay = baseDelay
	}
}

func WithManualResumeDelay(delay time.Duration) ClientOption {
	return func(c *Client) { c.manualResumeDelay = delay }
}

// NewClient creates a new Ripple client.
// token is the session access token; without one Connect refuses to dial.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:    token,
		endpoint: DefaultEndpoint,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetToken sets or updates the access token.
// Useful after a token refresh; realtime managers created afterwards use
// the new token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Realtime creates a realtime connection manager bound to this client's
// endpoint and token. Call Connect to establish the connection.
func (c *Client) Realtime() *Realtime {
	cfg := RealtimeConfig{
		Token:                c.token,
		HeartbeatInterval:    c.heartbeatInterval,
		MaxReconnectAttempts: c.maxReconnectAttempts,
		ReconnectBaseDelay:   c.reconnectBaseDelay,
		ManualResumeDelay:    c.manualResumeDelay,
		Logger:               c.logger,
	}
	return newRealtime(c.endpoint, &cfg)
}
