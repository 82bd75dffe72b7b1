package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/events"
)

// WebSocketConfig holds configuration for the room WebSocket connection
type WebSocketConfig struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendBuffer       int
	ReconnectWait    time.Duration
}

// DefaultWebSocketConfig returns default WebSocket configuration
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendBuffer:       256,
		ReconnectWait:    2 * time.Second,
	}
}

// WebSocketClient is a Transport over a single WebSocket connection to the
// room server.
type WebSocketClient struct {
	config WebSocketConfig
	clock  clockwork.Clock
	dialer *websocket.Dialer
	events chan *events.Envelope

	mu        sync.Mutex
	send      chan []byte
	connID    string
	onConnect ConnectHandler
}

// NewWebSocketClient creates a new WebSocket transport
func NewWebSocketClient(config WebSocketConfig, clock clockwork.Clock) *WebSocketClient {
	defaults := DefaultWebSocketConfig(config.URL)
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = defaults.ReconnectWait
	}
	return &WebSocketClient{
		config: config,
		clock:  clock,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		events: make(chan *events.Envelope, DefaultEventBuffer),
	}
}

// OnConnect implements Transport.
func (c *WebSocketClient) OnConnect(fn ConnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// Events implements Transport.
func (c *WebSocketClient) Events() <-chan *events.Envelope {
	return c.events
}

// Run implements Transport.
func (c *WebSocketClient) Run(ctx context.Context) error {
	defer close(c.events)

	log.Info().Str("url", c.config.URL).Msg("room transport started")

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.config.URL, c.config.Header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("url", c.config.URL).Msg("failed to dial room server")
		} else {
			c.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			log.Info().Msg("room transport shutting down")
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.config.ReconnectWait):
		}
	}
}

// Send implements Transport.
func (c *WebSocketClient) Send(env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", env.Type, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		log.Warn().
			Str("connection_id", c.connID).
			Str("event_type", string(env.Type)).
			Msg("send buffer full, dropping message")
		return ErrSendBufferFull
	}
}

// serve runs one connection until it fails or ctx is done.
func (c *WebSocketClient) serve(ctx context.Context, conn *websocket.Conn) {
	id := connectionID()
	send := make(chan []byte, c.config.SendBuffer)

	c.mu.Lock()
	c.send = send
	c.connID = id
	onConnect := c.onConnect
	c.mu.Unlock()

	log.Info().
		Str("connection_id", id).
		Str("url", c.config.URL).
		Msg("WebSocket connection established")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(id, conn, send)
	}()

	readerDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readerDone:
		}
	}()

	if onConnect != nil {
		onConnect()
	}
	c.readPump(ctx, id, conn)
	close(readerDone)

	c.mu.Lock()
	c.send = nil
	close(send)
	c.mu.Unlock()
	<-writerDone

	log.Info().Str("connection_id", id).Msg("WebSocket connection closed")
}

// writePump handles sending messages to the WebSocket connection
func (c *WebSocketClient) writePump(id string, conn *websocket.Conn, send <-chan []byte) {
	ticker := c.clock.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if !ok {
				// Channel was closed
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *WebSocketClient) readPump(ctx context.Context, id string, conn *websocket.Conn) {
	conn.SetReadLimit(c.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", id).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		env, err := events.Decode(message)
		if err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", id).
				Msg("dropping malformed room event")
			continue
		}
		env.ReceivedAt = c.clock.Now()

		select {
		case c.events <- env:
		case <-ctx.Done():
			return
		}
	}
}
