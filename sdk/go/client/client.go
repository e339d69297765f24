// Package client talks to a behaviour inspection server: agent snapshots and
// the template over HTTP, live bus events over a websocket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/events/bus"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/internal/runner"
	"github.com/zeusync/behaviour/internal/server"
)

// Client represents a connection to an inspection server
type Client struct {
	base *url.URL
	http *http.Client

	// websocket feed
	conn   *websocket.Conn
	connMu sync.Mutex

	handlers     map[string][]EventHandler
	handlerMutex sync.RWMutex

	connected atomic.Bool
	closed    atomic.Bool
	done      chan struct{}

	config Config
	logger log.Log

	workerGroup sync.WaitGroup
}

// Config holds configuration for the client
type Config struct {
	// ServerURL is the http base, e.g. http://127.0.0.1:8080.
	ServerURL string
	Token     string

	RequestTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int

	// EventFilter narrows the websocket feed to event types with this prefix.
	EventFilter string

	LogLevel log.Level
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerURL:            "http://127.0.0.1:8080",
		RequestTimeout:       10 * time.Second,
		ReconnectInterval:    time.Second,
		MaxReconnectAttempts: 5,
		LogLevel:             log.LevelInfo,
	}
}

// EventHandler receives every envelope whose type matches the registration.
type EventHandler func(env server.Envelope) error

// Health is the /healthz body.
type Health struct {
	Status string `json:"status"`
	Agents int    `json:"agents"`
	Ticks  uint64 `json:"ticks"`
}

// NewClient creates a client; nothing is dialled until Connect.
func NewClient(config Config) (*Client, error) {
	base, err := url.Parse(config.ServerURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: server url %q", ErrInvalidConfig, config.ServerURL)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultClientConfig().RequestTimeout
	}

	c := &Client{
		base:     base,
		http:     &http.Client{Timeout: config.RequestTimeout},
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
		config:   config,
		logger:   log.New(config.LogLevel).With(log.String("component", "client")),
	}
	return c, nil
}

// Health fetches /healthz.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.get(ctx, "/healthz", &h)
	return h, err
}

// Agents lists every live agent.
func (c *Client) Agents(ctx context.Context) ([]runner.AgentSnapshot, error) {
	var out []runner.AgentSnapshot
	err := c.get(ctx, "/agents", &out)
	return out, err
}

// Agent fetches one agent by id.
func (c *Client) Agent(ctx context.Context, id string) (runner.AgentSnapshot, error) {
	var out runner.AgentSnapshot
	err := c.get(ctx, "/agents/"+url.PathEscape(id), &out)
	return out, err
}

// Template fetches the definition new agents are cloned from.
func (c *Client) Template(ctx context.Context) (*bt.Definition, error) {
	var def bt.Definition
	if err := c.get(ctx, "/tree", &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
}

// OnEvent registers a handler for an exact event type, or for every event
// when typ is bus.Wildcard.
func (c *Client) OnEvent(typ string, handler EventHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()

	c.handlers[typ] = append(c.handlers[typ], handler)
	c.logger.Debug("Event handler registered", log.String("type", typ))
}

// Connect opens the websocket feed and starts dispatching events.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}
	if err := c.dial(ctx); err != nil {
		return err
	}

	c.workerGroup.Add(1)
	go func() {
		defer c.workerGroup.Done()
		c.receiver()
	}()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	if c.config.EventFilter != "" {
		q.Set("type", c.config.EventFilter)
	}
	if c.config.Token != "" {
		q.Set("token", c.config.Token)
	}
	u.RawQuery = q.Encode()

	c.logger.Info("Connecting to server", log.String("addr", u.Host))
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		c.logger.Error("Failed to connect to server", log.String("addr", u.Host), log.Error(err))
		return err
	}

	c.connMu.Lock()
	if c.closed.Load() {
		c.connMu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	c.logger.Info("Connected to server", log.String("remote_addr", conn.RemoteAddr().String()))
	return nil
}

// receiver reads envelopes until the client closes, reconnecting when the
// server drops the connection.
func (c *Client) receiver() {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		var env server.Envelope
		err := conn.ReadJSON(&env)
		if err == nil {
			c.dispatch(env)
			continue
		}

		c.connected.Store(false)
		if c.closed.Load() {
			return
		}
		c.logger.Warn("Connection lost, attempting to reconnect", log.Error(err))
		if !c.reconnect() {
			return
		}
	}
}

func (c *Client) reconnect() bool {
	for attempt := 1; attempt <= c.config.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return false
		case <-time.After(c.config.ReconnectInterval):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info("Reconnected successfully", log.Int("attempt", attempt))
			return true
		}
		c.logger.Error("Reconnection failed", log.Int("attempt", attempt), log.Error(err))
	}
	c.logger.Error(ErrReconnectFailed.Error())
	return false
}

func (c *Client) dispatch(env server.Envelope) {
	c.handlerMutex.RLock()
	handlers := append(append([]EventHandler(nil), c.handlers[env.Type]...), c.handlers[bus.Wildcard]...)
	c.handlerMutex.RUnlock()

	for _, h := range handlers {
		if err := h(env); err != nil {
			c.logger.Error("Event handler error", log.String("type", env.Type), log.Error(err))
		}
	}
}

// IsConnected returns true while the websocket feed is open.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Close stops the feed and releases resources. It is safe to call twice.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	c.workerGroup.Wait()
	c.connected.Store(false)
	c.logger.Info("Client closed")
	return nil
}
