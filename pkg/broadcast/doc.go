// Package broadcast provides typed, best-effort fan-out of messages to many
// subscribers.
//
// Two backends are available. MemoryBroadcaster delivers within one process.
// RedisBroadcaster publishes JSON payloads on a Redis pub/sub channel so that
// every replica of a service sees the message.
//
// Delivery never blocks the publisher: a subscriber with a full buffer
// misses the message. Consumers that need certainty must re-read the source
// of truth; messages are hints that something changed.
//
//	b := broadcast.NewMemoryBroadcaster[Event](8)
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	for msg := range sub.Receive(ctx) {
//		handle(msg.Data)
//	}
package broadcast
