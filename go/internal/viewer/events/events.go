// Package events defines the room wire protocol shared by every transport.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the wire structure of every room event, in both directions.
type Envelope struct {
	ID   string          `json:"id,omitempty"` // Event UUID, set by the sender when known
	Type Type            `json:"type"`         // Event type
	Data json.RawMessage `json:"data"`         // Event-specific payload

	// ReceivedAt is stamped by the transport on arrival.
	ReceivedAt time.Time `json:"-"`
}

// Type identifies a room event.
type Type string

// Events pushed by the room server.
const (
	TypeSync          Type = "sync"
	TypeReset         Type = "reset"
	TypePDFChanged    Type = "pdf_changed"
	TypePointerUpdate Type = "pointer_update"
	TypePointerHide   Type = "pointer_hide"
	TypeTimerUpdate   Type = "timer_update"
	TypeLockDenied    Type = "lock_denied"
)

// Events emitted by clients. pointer_hide is used in both directions.
const (
	TypeJoin           Type = "join"
	TypeStep           Type = "step"
	TypeGoto           Type = "goto"
	TypeLock           Type = "lock"
	TypeUnlock         Type = "unlock"
	TypeForceUnlock    Type = "force_unlock"
	TypePointerMove    Type = "pointer_move"
	TypeTimerStart     Type = "timer_start"
	TypeTimerStop      Type = "timer_stop"
	TypeTimerReset     Type = "timer_reset"
	TypeReportNumPages Type = "report_num_pages"
)

// New builds an envelope carrying payload.
func New(t Type, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return &Envelope{Type: t, Data: data}, nil
}

// Decode parses a raw wire message into an envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("event has no type")
	}
	return &env, nil
}

// ParsePayload parses the data of an inbound event into its payload struct.
// Unknown types return nil, nil. An empty data field decodes as the zero
// payload.
func ParsePayload(env *Envelope) (any, error) {
	switch env.Type {
	case TypeSync:
		return decode[SyncPayload](env)
	case TypeReset:
		return decode[ResetPayload](env)
	case TypePDFChanged:
		return decode[PDFChangedPayload](env)
	case TypePointerUpdate:
		return decode[PointerUpdatePayload](env)
	case TypePointerHide:
		return decode[PointerHidePayload](env)
	case TypeTimerUpdate:
		return decode[TimerUpdatePayload](env)
	case TypeLockDenied:
		return decode[LockDeniedPayload](env)
	default:
		return nil, nil // Not a client-bound event
	}
}

func decode[T any](env *Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return payload, nil
}
