package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/metrics"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	errHubStopped        = errors.New("hub is stopped")
)

const sendBufferSize = 64

// Frame is the server-to-client event message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client represents a connected client
type Client struct {
	ID        string
	Connected bool
	SendEvent func([]byte) error
	sendChan  chan []byte
	ready     chan struct{}
	mu        sync.Mutex
}

func NewClient(id string, send func([]byte) error) *Client {
	return &Client{ID: id, Connected: true, SendEvent: send, ready: make(chan struct{})}
}

// write sends a frame outside the event buffer, used for acks.
func (c *Client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Connected {
		return ErrUnknownConnection
	}
	return c.SendEvent(msg)
}

func (c *Client) disconnect() {
	c.mu.Lock()
	c.Connected = false
	c.mu.Unlock()
}

func (c *Client) startSender(hub *Hub) {
	go func() {
		for msg := range c.sendChan {
			c.mu.Lock()
			if !c.Connected {
				c.mu.Unlock()
				break
			}
			err := c.SendEvent(msg)
			c.mu.Unlock()
			if err != nil {
				hub.log.WithError(err).WithField("client", c.ID).Warn("write failed, dropping client")
				hub.Unregister(c)
				break
			}
		}
	}()
}

type emitRequest struct {
	room  string
	all   bool
	frame []byte
	done  chan int
}

// Hub is the room transport of the gateway. Room membership mirrors what
// the Registry decided; emits are processed by the Run loop.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]mapset.Set[string]
	register   chan *Client
	unregister chan *Client
	emit       chan emitRequest
	stopped    chan struct{}
	log        logrus.FieldLogger
	mu         sync.RWMutex
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]mapset.Set[string]),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		emit:       make(chan emitRequest),
		stopped:    make(chan struct{}),
		log:        log.WithField("component", "hub"),
	}
}

// Register returns once the client can join rooms.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
		<-c.ready
	case <-h.stopped:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Run processes registrations and emits until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			client.sendChan = make(chan []byte, sendBufferSize)
			h.clients[client.ID] = client
			h.mu.Unlock()
			close(client.ready)
			client.startSender(h)
			metrics.ActiveConnections.Inc()
			h.log.WithField("client", client.ID).Info("client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				h.leaveAllLocked(client.ID)
				client.disconnect()
				close(client.sendChan)
				metrics.ActiveConnections.Dec()
				h.log.WithField("client", client.ID).Info("client disconnected")
			}
			h.mu.Unlock()
		case req := <-h.emit:
			req.done <- h.deliver(req)
		}
	}
}

// deliver queues the frame on every recipient and returns how many accepted it.
func (h *Hub) deliver(req emitRequest) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []string
	if req.all {
		ids = make([]string, 0, len(h.clients))
		for id := range h.clients {
			ids = append(ids, id)
		}
	} else if members, ok := h.rooms[req.room]; ok {
		ids = members.ToSlice()
	}

	delivered := 0
	for _, id := range ids {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.sendChan <- req.frame:
			delivered++
		default:
			h.log.WithField("client", id).Warn("send buffer full, dropping event")
		}
	}
	return delivered
}

func (h *Hub) send(ctx context.Context, req emitRequest, event string, payload any) error {
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	req.frame = frame
	req.done = make(chan int, 1)
	select {
	case h.emit <- req:
	case <-h.stopped:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendToRoom returns after the frame was queued for every member of room.
func (h *Hub) SendToRoom(ctx context.Context, room, event string, payload any) error {
	return h.send(ctx, emitRequest{room: room}, event, payload)
}

func (h *Hub) Broadcast(ctx context.Context, event string, payload any) error {
	return h.send(ctx, emitRequest{all: true}, event, payload)
}

// Join is a no-op when the connection is already a member.
func (h *Hub) Join(id, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return ErrUnknownConnection
	}
	members, ok := h.rooms[room]
	if !ok {
		members = mapset.NewThreadUnsafeSet[string]()
		h.rooms[room] = members
	}
	members.Add(id)
	return nil
}

func (h *Hub) Leave(id, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return ErrUnknownConnection
	}
	h.leaveLocked(id, room)
	return nil
}

func (h *Hub) leaveLocked(id, room string) {
	if members, ok := h.rooms[room]; ok {
		members.Remove(id)
		if members.Cardinality() == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) leaveAllLocked(id string) {
	for room := range h.rooms {
		h.leaveLocked(id, room)
	}
}

// Members lists connection ids in room.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if members, ok := h.rooms[room]; ok {
		return members.ToSlice()
	}
	return []string{}
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
