package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// pubSub is the slice of a message broker the bridge needs.
type pubSub interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, io.Closer, error)
	Close() error
}

type redisPubSub struct {
	client *redis.Client
}

func (r *redisPubSub) Publish(ctx context.Context, channel, payload string) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *redisPubSub) Subscribe(ctx context.Context, channel string) (<-chan string, io.Closer, error) {
	subscriber := r.client.Subscribe(ctx, channel)
	if _, err := subscriber.Receive(ctx); err != nil {
		subscriber.Close()
		return nil, nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range subscriber.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, subscriber, nil
}

func (r *redisPubSub) Close() error {
	return r.client.Close()
}

// Bridge relays code changes between relay processes sharing a Redis
// channel. Each node drops its own messages when they come back.
type Bridge struct {
	node    string
	channel string
	ps      pubSub
	outbox  chan CodeChange
}

type bridgeMessage struct {
	Node   string `json:"node"`
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// NewRedisBridge connects to addr, which may be host:port or a redis:// URL.
func NewRedisBridge(addr, password, channel string) (*Bridge, error) {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("websocket bridge: parse redis url: %w", err)
		}
		if password != "" {
			parsed.Password = password
		}
		opts = parsed
	}
	return newBridge(&redisPubSub{client: redis.NewClient(opts)}, channel), nil
}

func newBridge(ps pubSub, channel string) *Bridge {
	return &Bridge{
		node:    uuid.NewString(),
		channel: channel,
		ps:      ps,
		outbox:  make(chan CodeChange, 1024),
	}
}

// Publish queues change for other nodes. It never blocks the hub loop; when
// the outbox is full the change is dropped.
func (b *Bridge) Publish(change CodeChange) {
	select {
	case b.outbox <- change:
	default:
		slog.Warn("bridge outbox full, dropping edit", "room", change.RoomID)
	}
}

// Run subscribes to the shared channel and feeds remote edits into hub until
// ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, hub *Hub) error {
	incoming, sub, err := b.ps.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("websocket bridge: subscribe %s: %w", b.channel, err)
	}
	defer sub.Close()

	slog.Info("bridge subscribed", "channel", b.channel, "node", b.node)
	go b.publishLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-incoming:
			if !ok {
				return nil
			}
			var msg bridgeMessage
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				slog.Warn("bridge: invalid message", "error", err)
				continue
			}
			if msg.Node == b.node {
				continue
			}
			if err := hub.DeliverRemote(ctx, CodeChange{RoomID: msg.RoomID, Code: msg.Code}); err != nil {
				return nil
			}
		}
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-b.outbox:
			payload, err := json.Marshal(bridgeMessage{Node: b.node, RoomID: change.RoomID, Code: change.Code})
			if err != nil {
				slog.Warn("bridge: marshal edit", "room", change.RoomID, "error", err)
				continue
			}
			if err := b.ps.Publish(ctx, b.channel, string(payload)); err != nil {
				slog.Warn("bridge: publish failed", "room", change.RoomID, "error", err)
			}
		}
	}
}

func (b *Bridge) Close() error {
	return b.ps.Close()
}
