package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/deckcast/go/internal/viewer/events"
)

// NATSConfig holds configuration for the NATS room transport
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string // e.g., "deckcast.rooms"
	Room          string
	// Stream, when set, replays the last event of each type from JetStream
	// on connect before following live events. Empty uses a core NATS
	// subscription.
	Stream        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS transport configuration
func DefaultNATSConfig(room string) NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "deckcast-viewer",
		SubjectPrefix: "deckcast.rooms",
		Room:          room,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// EventSubject is where the room server publishes events of type t.
func (c NATSConfig) EventSubject(t events.Type) string {
	return fmt.Sprintf("%s.%s.events.%s", c.SubjectPrefix, c.Room, t)
}

// EventFilter matches every event subject of the room.
func (c NATSConfig) EventFilter() string {
	return fmt.Sprintf("%s.%s.events.>", c.SubjectPrefix, c.Room)
}

// CommandSubject is where clients publish events of type t.
func (c NATSConfig) CommandSubject(t events.Type) string {
	return fmt.Sprintf("%s.%s.commands.%s", c.SubjectPrefix, c.Room, t)
}

// NATSClient is a Transport over NATS subjects.
type NATSClient struct {
	config NATSConfig
	clock  clockwork.Clock
	events chan *events.Envelope

	mu        sync.Mutex
	nc        *nats.Conn
	onConnect ConnectHandler
}

// NewNATSClient creates a new NATS transport
func NewNATSClient(config NATSConfig, clock clockwork.Clock) *NATSClient {
	return &NATSClient{
		config: config,
		clock:  clock,
		events: make(chan *events.Envelope, DefaultEventBuffer),
	}
}

// OnConnect implements Transport.
func (c *NATSClient) OnConnect(fn ConnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// Events implements Transport.
func (c *NATSClient) Events() <-chan *events.Envelope {
	return c.events
}

// Run implements Transport.
func (c *NATSClient) Run(ctx context.Context) error {
	defer close(c.events)

	opts := []nats.Option{
		nats.Name(c.config.Name),
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			c.connected()
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	stop, err := c.subscribe(ctx, nc)
	if err != nil {
		return err
	}
	defer stop()

	c.mu.Lock()
	c.nc = nc
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.nc = nil
		c.mu.Unlock()
	}()

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("filter", c.config.EventFilter()).
		Str("stream", c.config.Stream).
		Msg("room transport started")

	c.connected()

	<-ctx.Done()
	log.Info().Msg("room transport shutting down")
	return ctx.Err()
}

// subscribe follows the room's event subjects and returns a function that
// stops delivery.
func (c *NATSClient) subscribe(ctx context.Context, nc *nats.Conn) (func(), error) {
	if c.config.Stream == "" {
		sub, err := nc.Subscribe(c.config.EventFilter(), func(msg *nats.Msg) {
			c.deliver(ctx, msg.Subject, msg.Data)
		})
		if err != nil {
			return nil, fmt.Errorf("subscribe to %s: %w", c.config.EventFilter(), err)
		}
		return func() {
			if err := sub.Unsubscribe(); err != nil {
				log.Warn().Err(err).Msg("failed to unsubscribe from room events")
			}
		}, nil
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	consumer, err := js.OrderedConsumer(ctx, c.config.Stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{c.config.EventFilter()},
		DeliverPolicy:  jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer: %w", err)
	}
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		c.deliver(ctx, msg.Subject(), msg.Data())
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	return consumeCtx.Stop, nil
}

// deliver decodes one message. Handlers run on one goroutine per
// subscription, so delivery order is preserved.
func (c *NATSClient) deliver(ctx context.Context, subject string, data []byte) {
	env, err := events.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("dropping malformed room event")
		return
	}
	if want := subject[strings.LastIndexByte(subject, '.')+1:]; string(env.Type) != want {
		log.Warn().
			Str("subject", subject).
			Str("event_type", string(env.Type)).
			Msg("event type does not match subject")
	}
	env.ReceivedAt = c.clock.Now()

	select {
	case c.events <- env:
	case <-ctx.Done():
	}
}

func (c *NATSClient) connected() {
	c.mu.Lock()
	fn := c.onConnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Send implements Transport.
func (c *NATSClient) Send(env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", env.Type, err)
	}

	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()

	if nc == nil || !nc.IsConnected() {
		return ErrNotConnected
	}
	if err := nc.Publish(c.config.CommandSubject(env.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}
