package inbox

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/contract-admin/pkg/notifyclient"
)

func entries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		id := uuid.New()
		out[i] = Entry{
			LocalID: LocalID(id),
			Notification: notifyclient.Notification{
				ID:    id,
				Title: fmt.Sprintf("n%d", i),
			},
		}
	}
	return out
}

func TestHistory(t *testing.T) {
	stores := map[string]func(t *testing.T) KV{
		"memory": func(t *testing.T) KV { return NewMemoryKV() },
		"sqlite": func(t *testing.T) KV {
			kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "inbox.db"))
			require.NoError(t, err)
			t.Cleanup(func() { kv.Close() })
			return kv
		},
	}

	for name, newKV := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := NewHistory(newKV(t), historyKey(1), 3)

			got, err := h.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			all := entries(5)
			require.NoError(t, h.Save(ctx, all))

			got, err = h.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, 3)
			// most recent first; the oldest two are dropped
			assert.Equal(t, all[0].LocalID, got[0].LocalID)
			assert.Equal(t, all[2].LocalID, got[2].LocalID)
			assert.Equal(t, "n1", got[1].Title)

			require.NoError(t, h.Clear(ctx))
			got, err = h.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestHistory_DefaultCapacity(t *testing.T) {
	h := NewHistory(NewMemoryKV(), "k", 0)
	assert.Equal(t, DefaultHistoryCapacity, h.Capacity())
}

func TestHistory_CorruptValue(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), "k", []byte("{not json")))

	_, err := NewHistory(kv, "k", 10).Load(context.Background())
	assert.Error(t, err)
}

func TestSQLiteKV_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	kv, err := NewSQLiteKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "a", []byte("1")))
	require.NoError(t, kv.Set(ctx, "a", []byte("2")))
	require.NoError(t, kv.Close())

	kv, err = NewSQLiteKV(path)
	require.NoError(t, err)
	defer kv.Close()

	v, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	_, ok, err = kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		ib, closer, err := Open(notifyclient.Config{}, newFakeAPI(), nil)
		require.NoError(t, err)
		defer closer.Close()
		defer ib.Close()
		assert.IsType(t, &MemoryKV{}, ib.kv)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := notifyclient.Config{CachePath: filepath.Join(t.TempDir(), "cache.db")}
		ib, closer, err := Open(cfg, newFakeAPI(), nil)
		require.NoError(t, err)
		defer closer.Close()
		defer ib.Close()
		assert.IsType(t, &SQLiteKV{}, ib.kv)
	})
}
