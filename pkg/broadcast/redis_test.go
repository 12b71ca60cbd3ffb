package broadcast_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/pkg/broadcast"
	"github.com/freightdesk/billingsync/pkg/logger"
)

type transition struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

func TestRedisBroadcaster(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	t.Run("delivers across broadcaster instances", func(t *testing.T) {
		pub := broadcast.NewRedisBroadcaster[transition](client, "billing:test:a", broadcast.WithLogger(logger.Discard()))
		sub := broadcast.NewRedisBroadcaster[transition](client, "billing:test:a", broadcast.WithLogger(logger.Discard()))
		defer pub.Close()
		defer sub.Close()

		s := sub.Subscribe(context.Background())
		defer s.Close()

		require.NoError(t, pub.Broadcast(context.Background(), broadcast.Message[transition]{
			Data: transition{AccountID: "acct-1", Status: "active"},
		}))

		msg, ok := receive(t, s)
		require.True(t, ok)
		assert.Equal(t, transition{AccountID: "acct-1", Status: "active"}, msg.Data)
	})

	t.Run("skips undecodable payloads", func(t *testing.T) {
		b := broadcast.NewRedisBroadcaster[transition](client, "billing:test:b", broadcast.WithLogger(logger.Discard()))
		defer b.Close()

		s := b.Subscribe(context.Background())
		defer s.Close()

		require.NoError(t, client.Publish(context.Background(), "billing:test:b", "not-json").Err())
		require.NoError(t, b.Broadcast(context.Background(), broadcast.Message[transition]{
			Data: transition{AccountID: "acct-2", Status: "past_due"},
		}))

		msg, ok := receive(t, s)
		require.True(t, ok)
		assert.Equal(t, "acct-2", msg.Data.AccountID)
	})

	t.Run("close ends subscriptions", func(t *testing.T) {
		b := broadcast.NewRedisBroadcaster[transition](client, "billing:test:c", broadcast.WithLogger(logger.Discard()))
		s := b.Subscribe(context.Background())

		require.NoError(t, b.Close())
		_, ok := receive(t, s)
		assert.False(t, ok)
		assert.ErrorIs(t, b.Broadcast(context.Background(), broadcast.Message[transition]{}), broadcast.ErrClosed)
	})
}
