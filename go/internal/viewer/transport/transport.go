// Package transport connects a viewer to its room. Delivery is at least
// once and in server order; both implementations reconnect on their own and
// call the connect handler after every (re)connect so the session can
// re-join.
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mcdev12/deckcast/go/internal/viewer/events"
)

var (
	// ErrNotConnected is returned by Send while there is no live connection.
	ErrNotConnected = errors.New("transport not connected")
	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
)

// ConnectHandler runs after each successful (re)connect, before any inbound
// event of that connection is delivered.
type ConnectHandler func()

// Transport is a room connection.
type Transport interface {
	// Run connects and keeps reconnecting until ctx is done. The Events
	// channel is closed when Run returns.
	Run(ctx context.Context) error
	// Send queues an outbound event without blocking.
	Send(env *events.Envelope) error
	// Events delivers inbound events in arrival order.
	Events() <-chan *events.Envelope
	// OnConnect sets the connect handler. It must be called before Run.
	OnConnect(fn ConnectHandler)
}

// DefaultEventBuffer is the inbound queue length.
const DefaultEventBuffer = 256

func connectionID() string {
	return uuid.New().String()[:8]
}
