// Package pubsub bridges room events across service instances through
// Redis pub/sub. Channel names follow the platform convention:
// private-chat-room-{roomID} for room fan-out and private-user-{userID}
// for personal notifications.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/KallebyX/caris-chat-service/internal/models"
	"github.com/KallebyX/caris-chat-service/internal/observability"
)

const (
	roomChannelPrefix = "private-chat-room-"
	userChannelPrefix = "private-user-"
)

// RoomChannel names the pub/sub channel of a room.
func RoomChannel(roomID int) string {
	return roomChannelPrefix + strconv.Itoa(roomID)
}

// UserChannel names a user's personal notification channel.
func UserChannel(userID int) string {
	return userChannelPrefix + strconv.Itoa(userID)
}

// EventSink receives bridged events; the websocket hub implements it.
type EventSink interface {
	BroadcastRoomEvent(event models.RoomEvent)
	SendUserEvent(userID int, event models.UserEvent)
}

// Bridge publishes local events to Redis and replays remote events into
// the sink. Publishing is best-effort: the message is durable before any
// event leaves the process.
type Bridge struct {
	client *redis.Client
	sink   EventSink
	logger zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge connects to Redis. A nil client (no address configured)
// yields a local-only bridge that still feeds the sink.
func NewBridge(client *redis.Client, sink EventSink, logger zerolog.Logger) *Bridge {
	return &Bridge{client: client, sink: sink, logger: logger}
}

// PublishRoomEvent delivers the event locally and fans it out through
// Redis. Errors are logged and counted, never returned to the send path.
func (b *Bridge) PublishRoomEvent(ctx context.Context, event models.RoomEvent) {
	b.sink.BroadcastRoomEvent(event)

	if b.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().Err(err).Msg("marshal room event")
		return
	}
	if err := b.client.Publish(ctx, RoomChannel(event.RoomID), payload).Err(); err != nil {
		observability.IncPubSubPublish("error")
		b.logger.Warn().Err(err).Int("room_id", event.RoomID).Msg("pubsub publish failed, realtime delivery degraded")
		return
	}
	observability.IncPubSubPublish("ok")
}

// PublishUserEvent pushes a personal notification.
func (b *Bridge) PublishUserEvent(ctx context.Context, userID int, event models.UserEvent) {
	b.sink.SendUserEvent(userID, event)

	if b.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().Err(err).Msg("marshal user event")
		return
	}
	if err := b.client.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		observability.IncPubSubPublish("error")
		b.logger.Warn().Err(err).Int("user_id", userID).Msg("pubsub publish failed")
		return
	}
	observability.IncPubSubPublish("ok")
}

// Start subscribes to all room and user channels and replays events into
// the sink. The hub's event-id dedupe drops the replay of events this
// instance already delivered locally.
func (b *Bridge) Start(ctx context.Context) {
	if b.client == nil {
		b.logger.Info().Msg("pubsub bridge disabled, local delivery only")
		return
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	sub := b.client.PSubscribe(ctx, roomChannelPrefix+"*", userChannelPrefix+"*")
	go func() {
		defer close(b.done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.dispatch(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
	b.logger.Info().Msg("pubsub bridge subscribed")
}

// Close stops the subscriber loop.
func (b *Bridge) Close() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
}

func (b *Bridge) dispatch(channel string, payload []byte) {
	switch {
	case strings.HasPrefix(channel, roomChannelPrefix):
		var event models.RoomEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			b.logger.Warn().Err(err).Str("channel", channel).Msg("drop malformed room event")
			return
		}
		b.sink.BroadcastRoomEvent(event)
	case strings.HasPrefix(channel, userChannelPrefix):
		userID, err := strconv.Atoi(strings.TrimPrefix(channel, userChannelPrefix))
		if err != nil {
			return
		}
		var event models.UserEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			b.logger.Warn().Err(err).Str("channel", channel).Msg("drop malformed user event")
			return
		}
		b.sink.SendUserEvent(userID, event)
	default:
		b.logger.Debug().Str("channel", channel).Msg("ignore event on unknown channel")
	}
}

// NewClient builds a Redis client, or nil when no address is configured.
func NewClient(addr, password string) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
