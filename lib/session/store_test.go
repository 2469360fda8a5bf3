package session

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) store.IStore {
	t.Helper()
	s, err := lstore.NewLocalStore(func() (db.KVDB, error) {
		return maple.NewMapleDB(nil), nil
	})
	require.NoError(t, err)
	return s
}

func TestSetGetDestroy(t *testing.T) {
	backend := newBackend(t)
	s, err := New(backend)
	require.NoError(t, err)

	_, ok, err := s.Get("abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("abc", Data{"user": "u1", "visits": 3}))

	data, ok, err := s.Get("abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Data{"user": "u1", "visits": float64(3)}, data)

	raw, ok, err := backend.Get("sess:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"user":"u1","visits":3}`, string(raw))

	require.NoError(t, s.Destroy("abc", "missing"))
	_, ok, err = s.Get("abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Destroy())
}

func TestPrefix(t *testing.T) {
	backend := newBackend(t)
	s, err := New(backend, WithPrefix("app:"))
	require.NoError(t, err)

	require.NoError(t, s.Set("1", Data{}))
	has, err := backend.Has("app:1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestExpiry(t *testing.T) {
	s, err := New(newBackend(t), WithTTL(50*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Set("short", Data{"a": 1}))
	time.Sleep(100 * time.Millisecond)

	_, ok, err := s.Get("short")
	require.NoError(t, err)
	assert.False(t, ok, "session must expire after its ttl")
}

func TestTouch(t *testing.T) {
	s, err := New(newBackend(t), WithTTL(200*time.Millisecond))
	require.NoError(t, err)

	ok, err := s.Touch("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("sid", Data{"a": "b"}))
	time.Sleep(120 * time.Millisecond)

	ok, err = s.Touch("sid")
	require.NoError(t, err)
	assert.True(t, ok)
	time.Sleep(120 * time.Millisecond)

	data, ok, err := s.Get("sid")
	require.NoError(t, err)
	assert.True(t, ok, "touch must restart the ttl")
	assert.Equal(t, Data{"a": "b"}, data)
}

func TestCookieExpiry(t *testing.T) {
	s, err := New(newBackend(t))
	require.NoError(t, err)

	t.Run("expired cookie destroys session", func(t *testing.T) {
		require.NoError(t, s.Set("old", Data{"a": 1}))
		require.NoError(t, s.Set("old", Data{
			"cookie": map[string]any{"expires": time.Now().Add(-time.Minute).Format(time.RFC3339)},
		}))

		_, ok, err := s.Get("old")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cookie expiry sets ttl", func(t *testing.T) {
		ttl, live := s.ttlOf(Data{
			"cookie": map[string]any{"expires": time.Now().Add(time.Hour).Format(time.RFC3339)},
		})
		assert.True(t, live)
		assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 2)
	})

	t.Run("invalid expiry falls back to default", func(t *testing.T) {
		ttl, live := s.ttlOf(Data{"cookie": map[string]any{"expires": "tomorrow"}})
		assert.True(t, live)
		assert.Equal(t, DefaultTTL, ttl)
	})
}

func TestNewRejectsNilBackend(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
