package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster fans messages out across processes over a Redis pub/sub
// channel. Payloads are JSON encoded.
type RedisBroadcaster[T any] struct {
	client     redis.UniversalClient
	channel    string
	bufferSize int
	log        *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber[T]]*redis.PubSub
	closed bool
}

// RedisOption configures a RedisBroadcaster.
type RedisOption func(*redisOptions)

type redisOptions struct {
	bufferSize int
	log        *slog.Logger
}

// WithBufferSize sets the per-subscriber buffer.
func WithBufferSize(n int) RedisOption {
	return func(o *redisOptions) { o.bufferSize = n }
}

// WithLogger sets the logger used for undecodable payloads.
func WithLogger(l *slog.Logger) RedisOption {
	return func(o *redisOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// NewRedisBroadcaster publishes to and subscribes on channel.
func NewRedisBroadcaster[T any](client redis.UniversalClient, channel string, opts ...RedisOption) *RedisBroadcaster[T] {
	o := redisOptions{bufferSize: 16, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisBroadcaster[T]{
		client:     client,
		channel:    channel,
		bufferSize: max(o.bufferSize, 1),
		log:        o.log.With(slog.String("component", "broadcast"), slog.String("channel", channel)),
		subs:       make(map[*subscriber[T]]*redis.PubSub),
	}
}

// Subscribe waits for Redis to confirm the subscription before returning,
// so a Broadcast issued afterwards is observed. On failure the returned
// subscriber is already closed.
func (b *RedisBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return closedSubscriber[T]()
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		b.log.WarnContext(ctx, "subscribe failed", slog.Any("error", err))
		_ = ps.Close()
		return closedSubscriber[T]()
	}

	sub := newSubscriber[T](b.bufferSize)
	sub.onClose = func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		_ = ps.Close()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = ps
	b.mu.Unlock()

	go b.pump(ps, sub)
	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() { _ = sub.Close() })
	}

	return sub
}

func (b *RedisBroadcaster[T]) pump(ps *redis.PubSub, sub *subscriber[T]) {
	defer sub.Close()

	for m := range ps.Channel() {
		var data T
		if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
			b.log.Warn("dropping undecodable message", slog.Any("error", err))
			continue
		}
		sub.send(Message[T]{Data: data})
	}
}

func (b *RedisBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(msg.Data)
	if err != nil {
		return errors.Join(ErrEncode, err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.Join(ErrPublish, err)
	}
	return nil
}

// Close ends all subscriptions. The Redis client is owned by the caller and
// stays open.
func (b *RedisBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscriber[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}
