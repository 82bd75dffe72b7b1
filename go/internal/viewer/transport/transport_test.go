package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/deckcast/go/internal/viewer/events"
)

// roomServer is a minimal room server: it answers every join with a sync
// and records everything clients send.
type roomServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []*events.Envelope
	conns    []*websocket.Conn
	joined   chan struct{}
}

func newRoomServer(t *testing.T) (*roomServer, *httptest.Server) {
	rs := &roomServer{t: t, joined: make(chan struct{}, 8)}
	srv := httptest.NewServer(http.HandlerFunc(rs.serve))
	t.Cleanup(srv.Close)
	return rs, srv
}

func (rs *roomServer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := rs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rs.t.Errorf("upgrade: %v", err)
		return
	}
	rs.mu.Lock()
	rs.conns = append(rs.conns, conn)
	rs.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := events.Decode(raw)
		if err != nil {
			rs.t.Errorf("server decode: %v", err)
			return
		}
		rs.mu.Lock()
		rs.received = append(rs.received, env)
		rs.mu.Unlock()

		if env.Type == events.TypeJoin {
			reply, _ := events.New(events.TypeSync, events.SyncPayload{CurrentPage: 3})
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
			rs.joined <- struct{}{}
		}
	}
}

func (rs *roomServer) dropAll() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, c := range rs.conns {
		c.Close()
	}
	rs.conns = nil
}

func (rs *roomServer) types() []events.Type {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var out []events.Type
	for _, env := range rs.received {
		out = append(out, env.Type)
	}
	return out
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func nextEvent(t *testing.T, c Transport) *events.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func newTestClient(srv *httptest.Server) *WebSocketClient {
	cfg := DefaultWebSocketConfig(wsURL(srv))
	cfg.ReconnectWait = 10 * time.Millisecond
	return NewWebSocketClient(cfg, clockwork.NewRealClock())
}

func joinOnConnect(c Transport) {
	c.OnConnect(func() {
		env, _ := events.New(events.TypeJoin, events.RoomPayload{Room: "r1"})
		c.Send(env)
	})
}

func TestWebSocketClientJoinAndReceive(t *testing.T) {
	rs, srv := newRoomServer(t)
	client := newTestClient(srv)
	joinOnConnect(client)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	waitFor(t, rs.joined, "join")
	env := nextEvent(t, client)
	if env.Type != events.TypeSync {
		t.Fatalf("first event = %s, want sync", env.Type)
	}
	if env.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not stamped")
	}
	payload, err := events.ParsePayload(env)
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if got := payload.(events.SyncPayload).CurrentPage; got != 3 {
		t.Errorf("current page = %d, want 3", got)
	}

	step, _ := events.New(events.TypeStep, events.StepPayload{Room: "r1", Delta: 1})
	if err := client.Send(step); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(rs.types()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	want := []events.Type{events.TypeJoin, events.TypeStep}
	got := rs.types()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("server received %v, want %v", got, want)
	}

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, ok := <-client.Events(); ok {
		t.Error("events channel still open after Run returned")
	}
}

func TestWebSocketClientRejoinsAfterReconnect(t *testing.T) {
	rs, srv := newRoomServer(t)
	client := newTestClient(srv)
	joinOnConnect(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, rs.joined, "first join")
	nextEvent(t, client)

	rs.dropAll()

	waitFor(t, rs.joined, "second join")
	if env := nextEvent(t, client); env.Type != events.TypeSync {
		t.Errorf("event after reconnect = %s, want sync", env.Type)
	}

	joins := 0
	for _, typ := range rs.types() {
		if typ == events.TypeJoin {
			joins++
		}
	}
	if joins != 2 {
		t.Errorf("joins = %d, want 2", joins)
	}
}

func TestWebSocketClientSendBeforeConnect(t *testing.T) {
	client := NewWebSocketClient(DefaultWebSocketConfig("ws://127.0.0.1:0"), clockwork.NewRealClock())
	env, _ := events.New(events.TypeStep, events.StepPayload{Room: "r1", Delta: 1})
	if err := client.Send(env); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() = %v, want ErrNotConnected", err)
	}
}

func TestNATSSubjects(t *testing.T) {
	cfg := DefaultNATSConfig("r1")

	if got, want := cfg.EventSubject(events.TypeSync), "deckcast.rooms.r1.events.sync"; got != want {
		t.Errorf("EventSubject() = %q, want %q", got, want)
	}
	if got, want := cfg.EventFilter(), "deckcast.rooms.r1.events.>"; got != want {
		t.Errorf("EventFilter() = %q, want %q", got, want)
	}
	if got, want := cfg.CommandSubject(events.TypeStep), "deckcast.rooms.r1.commands.step"; got != want {
		t.Errorf("CommandSubject() = %q, want %q", got, want)
	}
}

func TestNATSClientSendBeforeConnect(t *testing.T) {
	client := NewNATSClient(DefaultNATSConfig("r1"), clockwork.NewRealClock())
	env, _ := events.New(events.TypeStep, events.StepPayload{Room: "r1", Delta: 1})
	if err := client.Send(env); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() = %v, want ErrNotConnected", err)
	}
}

func TestNATSClientRunFailsWithoutServer(t *testing.T) {
	cfg := DefaultNATSConfig("r1")
	cfg.URL = "nats://127.0.0.1:1"
	client := NewNATSClient(cfg, clockwork.NewRealClock())

	if err := client.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded without a server")
	}
	if _, ok := <-client.Events(); ok {
		t.Error("events channel still open after Run returned")
	}
}
