package streaming

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type Operation string

const (
	OpPing        Operation = "ping"
	OpSubscribe   Operation = "subscribe"
	OpUnsubscribe Operation = "unsubscribe"
)

// Envelope is decoded first; the op-specific request is decoded from the
// same message afterwards.
type Envelope struct {
	Id        *string   `json:"id"`
	Operation Operation `json:"operation"`
}

type ErrorResponse struct {
	Id    *string `json:"id,omitempty"`
	Error string  `json:"error"`
}

type StatusResponse struct {
	Id     *string  `json:"id,omitempty"`
	Status string   `json:"status"`
	Rooms  []string `json:"rooms,omitempty"`
}

// Session handles the client frames of one connection.
type Session struct {
	client   *Client
	registry *Registry
	log      logrus.FieldLogger
}

func NewSession(client *Client, registry *Registry, log logrus.FieldLogger) *Session {
	return &Session{client: client, registry: registry, log: log.WithField("client", client.ID)}
}

func (s *Session) reply(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		s.log.WithError(err).Error("marshal reply")
		return
	}
	if err := s.client.write(msg); err != nil {
		s.log.WithError(err).Debug("reply dropped")
	}
}

func (s *Session) replyErr(id *string, err error) {
	s.reply(ErrorResponse{Id: id, Error: err.Error()})
}

// Handle processes one client message.
func (s *Session) Handle(msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.replyErr(nil, fmt.Errorf("invalid request: %v", err))
		return
	}
	switch env.Operation {
	case OpPing:
		s.reply(StatusResponse{Id: env.Id, Status: "pong"})

	case OpSubscribe, OpUnsubscribe:
		var req SubscriptionRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.replyErr(env.Id, fmt.Errorf("invalid %s request: %v", env.Operation, err))
			return
		}
		if err := req.Normalize(); err != nil {
			s.replyErr(env.Id, err)
			return
		}
		var (
			rooms  []string
			err    error
			status string
		)
		if env.Operation == OpSubscribe {
			rooms, err = s.registry.Subscribe(s.client.ID, req)
			status = "subscribed"
		} else {
			rooms, err = s.registry.Unsubscribe(s.client.ID, req)
			status = "unsubscribed"
		}
		if err != nil {
			s.log.WithError(err).WithField("operation", env.Operation).Warn("subscription change failed")
			s.replyErr(env.Id, err)
			return
		}
		s.reply(StatusResponse{Id: env.Id, Status: status, Rooms: rooms})

	default:
		s.replyErr(env.Id, fmt.Errorf("unknown operation: %s", env.Operation))
	}
}

// WebSocketHandler serves the gateway protocol over one websocket connection.
func WebSocketHandler(hub *Hub, registry *Registry, log logrus.FieldLogger) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		clientID := fmt.Sprintf("%s-%s", c.RemoteAddr(), time.Now().Format(time.RFC3339Nano))
		client := NewClient(clientID, func(b []byte) error { return c.WriteMessage(websocket.TextMessage, b) })
		hub.Register(client)
		defer func() {
			registry.Disconnect(clientID)
			hub.Unregister(client)
		}()

		session := NewSession(client, registry, log)
		if err := registry.Connect(clientID); err != nil {
			session.replyErr(nil, err)
			return
		}

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				log.WithError(err).WithField("client", clientID).Debug("read failed")
				return
			}
			session.Handle(msg)
		}
	}
}

// UpgradeRequired rejects plain HTTP requests on the websocket route.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
