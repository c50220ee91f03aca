package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/abu1020/tea-notes-premium/internal/config"
	"github.com/abu1020/tea-notes-premium/internal/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGormStore(t *testing.T) Store {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "store.db")})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return NewGormStore(db)
}

func newRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"gorm":   newGormStore,
		"redis":  newRedisStore,
		"memory": func(*testing.T) Store { return NewMemoryStore() },
	}

	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "k", "v1"))
			v, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v1", v)

			// overwrite
			require.NoError(t, s.Set(ctx, "k", "v2"))
			v, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", v)

			require.NoError(t, s.Delete(ctx, "k"))
			_, err = s.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)

			// deleting twice is fine
			assert.NoError(t, s.Delete(ctx, "k"))
		})
	}
}

func TestDialRedis_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := DialRedis(context.Background(), addr, "", 0)
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "officeBuAppTransactions", Key(KeyTransactions, ""))
	assert.Equal(t, "officeBuAppTransactions:alice", Key(KeyTransactions, "alice"))
}
