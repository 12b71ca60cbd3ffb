package client_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/billingsync/client"
)

func TestSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("memory only", func(t *testing.T) {
		t.Parallel()
		sess, err := client.NewSession(ctx, nil)
		require.NoError(t, err)

		_, err = sess.Credential()
		require.ErrorIs(t, err, client.ErrNoCredential)

		require.ErrorIs(t, sess.SignIn(ctx, client.Credential{Token: "tok"}), client.ErrNoCredential)

		cred := client.Credential{Token: "tok", AccountID: "acct-1"}
		require.NoError(t, sess.SignIn(ctx, cred))
		got, err := sess.Credential()
		require.NoError(t, err)
		assert.Equal(t, cred, got)

		require.NoError(t, sess.SignOut(ctx))
		_, err = sess.Credential()
		assert.ErrorIs(t, err, client.ErrNoCredential)
	})

	t.Run("restored from file", func(t *testing.T) {
		t.Parallel()
		store := client.FileTokenStore{Path: filepath.Join(t.TempDir(), "billing", "token.json")}
		cred := client.Credential{Token: "tok", AccountID: "acct-1", ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second).UTC()}

		first, err := client.NewSession(ctx, store)
		require.NoError(t, err)
		require.NoError(t, first.SignIn(ctx, cred))

		info, err := os.Stat(store.Path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		second, err := client.NewSession(ctx, store)
		require.NoError(t, err)
		got, err := second.Credential()
		require.NoError(t, err)
		assert.Equal(t, cred, got)

		require.NoError(t, second.SignOut(ctx))
		_, err = os.Stat(store.Path)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("expired credential is discarded", func(t *testing.T) {
		t.Parallel()
		store := client.FileTokenStore{Path: filepath.Join(t.TempDir(), "token.json")}
		require.NoError(t, store.Save(ctx, client.Credential{Token: "tok", AccountID: "acct-1", ExpiresAt: time.Now().Add(-time.Minute)}))

		sess, err := client.NewSession(ctx, store)
		require.NoError(t, err)
		_, err = sess.Credential()
		require.ErrorIs(t, err, client.ErrNoCredential)

		_, err = store.Load(ctx)
		assert.ErrorIs(t, err, client.ErrNoCredential)
	})
}
