package streaming

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/coti-io/coti-explorer-api-sub000/metrics"
	"github.com/coti-io/coti-explorer-api-sub000/notify"
)

const DefaultBridgeChannel = "explorer_ws_events"

// BridgeEnvelope carries one emit between processes. Payload is JSON so the
// gateway forwards it without knowing its type.
type BridgeEnvelope struct {
	Room      string `msgpack:"room"`
	Event     string `msgpack:"event"`
	Payload   []byte `msgpack:"payload"`
	Broadcast bool   `msgpack:"broadcast"`
}

// Publisher emits into the gateway of another process through redis pub/sub.
type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultBridgeChannel
	}
	return &Publisher{rdb: rdb, channel: channel}
}

func (p *Publisher) publish(ctx context.Context, env BridgeEnvelope, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env.Payload = data
	msg, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, msg).Err(); err != nil {
		return err
	}
	metrics.BridgeMessages.WithLabelValues("out").Inc()
	return nil
}

func (p *Publisher) SendToRoom(ctx context.Context, room, event string, payload any) error {
	return p.publish(ctx, BridgeEnvelope{Room: room, Event: event}, payload)
}

func (p *Publisher) Broadcast(ctx context.Context, event string, payload any) error {
	return p.publish(ctx, BridgeEnvelope{Event: event, Broadcast: true}, payload)
}

// Bridge replays published envelopes into local rooms.
type Bridge struct {
	rdb     *redis.Client
	channel string
	rooms   notify.Rooms
	log     logrus.FieldLogger
}

func NewBridge(rdb *redis.Client, channel string, rooms notify.Rooms, log logrus.FieldLogger) *Bridge {
	if channel == "" {
		channel = DefaultBridgeChannel
	}
	return &Bridge{rdb: rdb, channel: channel, rooms: rooms, log: log.WithField("component", "bridge")}
}

// Relay blocks until ctx is done. Messages published while it is not
// subscribed are lost.
func (b *Bridge) Relay(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.WithField("channel", b.channel).Info("subscribed to redis channel")

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.log.WithError(err).Error("error receiving message from redis")
			continue
		}
		if err := b.relay(ctx, []byte(msg.Payload)); err != nil {
			b.log.WithError(err).Warn("failed to relay bridge message")
		}
	}
}

func (b *Bridge) relay(ctx context.Context, data []byte) error {
	var env BridgeEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	metrics.BridgeMessages.WithLabelValues("in").Inc()
	payload := json.RawMessage(env.Payload)
	if env.Broadcast {
		return b.rooms.Broadcast(ctx, env.Event, payload)
	}
	return b.rooms.SendToRoom(ctx, env.Room, env.Event, payload)
}
