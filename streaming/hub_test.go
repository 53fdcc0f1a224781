package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/coti-io/coti-explorer-api-sub000/notify"
)

type sink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (s *sink) send(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.frames = append(s.frames, b)
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *sink) last() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out map[string]any
	if len(s.frames) > 0 {
		json.Unmarshal(s.frames[len(s.frames)-1], &out)
	}
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_SendToRoomAndBroadcast(t *testing.T) {
	hub := startHub(t)
	a, b := &sink{}, &sink{}
	hub.Register(NewClient("a", a.send))
	hub.Register(NewClient("b", b.send))

	if err := hub.Join("a", "address:aa"); err != nil {
		t.Fatal(err)
	}
	if err := hub.Join("x", "address:aa"); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("expected unknown connection, got %v", err)
	}

	ctx := context.Background()
	if err := hub.SendToRoom(ctx, "address:aa", "addressTransactions/aa", map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, func() bool { return a.count() == 1 })
	if got := a.last()["event"]; got != "addressTransactions/aa" {
		t.Errorf("unexpected event %v", got)
	}
	if b.count() != 0 {
		t.Error("non-member must not receive room events")
	}

	if err := hub.Broadcast(ctx, "transactions", json.RawMessage(`{"hash":"h"}`)); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, func() bool { return a.count() == 2 && b.count() == 1 })
	data, _ := b.last()["data"].(map[string]any)
	if data["hash"] != "h" {
		t.Errorf("raw payload must be forwarded as is, got %v", b.last())
	}
}

func TestHub_WriteFailureUnregisters(t *testing.T) {
	hub := startHub(t)
	broken := &sink{fail: true}
	hub.Register(NewClient("a", broken.send))
	hub.Join("a", "topic:transactions")

	if err := hub.SendToRoom(context.Background(), "topic:transactions", "transactionsTotal", 1); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, func() bool { return hub.Connections() == 0 })
	if len(hub.Members("topic:transactions")) != 0 {
		t.Error("rooms must be released with the connection")
	}
}

func TestHub_SendWhenStopped(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	if err := hub.Broadcast(context.Background(), "transactions", nil); err == nil {
		t.Error("expected error from stopped hub")
	}
	hub.Unregister(NewClient("a", (&sink{}).send))
}

func TestSession_Protocol(t *testing.T) {
	hub := startHub(t)
	logger, _ := test.NewNullLogger()
	registry := NewRegistry(hub, logger)
	out := &sink{}
	client := NewClient("c1", out.send)
	hub.Register(client)
	if err := registry.Connect("c1"); err != nil {
		t.Fatal(err)
	}
	s := NewSession(client, registry, logger)

	s.Handle([]byte(`{"id":"1","operation":"ping"}`))
	if out.last()["status"] != "pong" || out.last()["id"] != "1" {
		t.Errorf("unexpected ping reply %v", out.last())
	}

	s.Handle([]byte(`{"id":"2","operation":"subscribe"}`))
	if out.last()["error"] == nil {
		t.Errorf("empty subscribe must be rejected, got %v", out.last())
	}

	s.Handle([]byte(`{"id":"3","operation":"subscribe","address":"AA","activeWallets":true}`))
	if out.last()["status"] != "subscribed" {
		t.Fatalf("unexpected subscribe reply %v", out.last())
	}
	if len(hub.Members("address:aa")) != 1 || len(hub.Members("topic:activeWallets")) != 1 {
		t.Error("hub membership must mirror the registry")
	}

	s.Handle([]byte(`{"id":"4","operation":"unsubscribe","activeWallets":true}`))
	if out.last()["status"] != "unsubscribed" {
		t.Fatalf("unexpected unsubscribe reply %v", out.last())
	}
	if len(hub.Members("topic:activeWallets")) != 0 || len(hub.Members("address:aa")) != 1 {
		t.Error("only the named room must be left")
	}

	s.Handle([]byte(`{"id":"5","operation":"configure"}`))
	if out.last()["error"] != "unknown operation: configure" {
		t.Errorf("unexpected reply %v", out.last())
	}
	s.Handle([]byte(`not json`))
	if out.last()["error"] == nil {
		t.Error("malformed frame must be answered with an error")
	}
}

type recordingRooms struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingRooms) SendToRoom(ctx context.Context, room, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, room+"|"+event+"|"+string(payload.(json.RawMessage)))
	return nil
}

func (r *recordingRooms) Broadcast(ctx context.Context, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "*|"+event+"|"+string(payload.(json.RawMessage)))
	return nil
}

func (r *recordingRooms) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestBridge_PublishAndRelay(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	logger, _ := test.NewNullLogger()
	rooms := &recordingRooms{}
	bridge := NewBridge(rdb, "", rooms, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Relay(ctx) }()
	waitUntil(t, func() bool { return len(mr.PubSubChannels("")) == 1 })

	var pub notify.Rooms = NewPublisher(rdb, "")
	if err := pub.SendToRoom(ctx, "topic:treasuryTotals", "treasuryTotals", map[string]string{"totalLocked": "10"}); err != nil {
		t.Fatal(err)
	}
	if err := pub.Broadcast(ctx, "transactions", 5); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, func() bool { return len(rooms.recorded()) == 2 })
	got := rooms.recorded()
	if got[0] != `topic:treasuryTotals|treasuryTotals|{"totalLocked":"10"}` {
		t.Errorf("unexpected relayed event %q", got[0])
	}
	if got[1] != "*|transactions|5" {
		t.Errorf("unexpected relayed broadcast %q", got[1])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("relay returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestBridge_DropsMalformedMessages(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rooms := &recordingRooms{}
	bridge := NewBridge(nil, "", rooms, logger)
	if err := bridge.relay(context.Background(), []byte("garbage")); err == nil {
		t.Error("expected decode error")
	}
	if len(rooms.recorded()) != 0 || len(hook.AllEntries()) != 0 {
		t.Error("malformed message must not be relayed")
	}
}
