package cache

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, ttl time.Duration, max int) (*Cache, *time.Time) {
	t.Helper()
	c := New(ttl, max, zap.NewNop().Sugar())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestGetMissThenHit(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 10)

	require.Nil(t, c.Get("raw:pdf:abc"))

	c.Put("raw:pdf:abc", json.RawMessage(`{"text":"hello"}`), 120, 0.0015)
	ent := c.Get("raw:pdf:abc")
	require.NotNil(t, ent)
	assert.JSONEq(t, `{"text":"hello"}`, string(ent.Payload))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(120), stats.TokensSaved)
	assert.InDelta(t, 0.0015, stats.CostSavedUSD, 1e-9)
}

func TestExpiryOnRead(t *testing.T) {
	c, now := newTestCache(t, time.Hour, 10)

	c.Put("norm:pdf:abc", json.RawMessage(`{}`), 0, 0)
	*now = now.Add(time.Hour + time.Second)

	assert.Nil(t, c.Get("norm:pdf:abc"))
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Expirations)
	assert.Equal(t, 0, stats.Entries)
}

func TestEvictsOldestWhenFull(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 3)

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("raw:pdf:%d", i), json.RawMessage(`{}`), 0, 0)
	}
	// Touch entry 0 so entry 1 becomes the eviction candidate.
	require.NotNil(t, c.Get("raw:pdf:0"))

	c.Put("raw:pdf:3", json.RawMessage(`{}`), 0, 0)

	assert.NotNil(t, c.Get("raw:pdf:0"))
	assert.Nil(t, c.Get("raw:pdf:1"))
	assert.NotNil(t, c.Get("raw:pdf:2"))
	assert.NotNil(t, c.Get("raw:pdf:3"))
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestPutOverwritesExistingKey(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 10)

	c.Put("norm:txt:x", json.RawMessage(`{"v":1}`), 0, 0)
	c.Put("norm:txt:x", json.RawMessage(`{"v":2}`), 0, 0)

	ent := c.Get("norm:txt:x")
	require.NotNil(t, ent)
	assert.JSONEq(t, `{"v":2}`, string(ent.Payload))
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestClearKeepsCounters(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 10)

	c.Put("raw:pdf:a", json.RawMessage(`{}`), 50, 0.01)
	require.NotNil(t, c.Get("raw:pdf:a"))

	removed := c.Clear()
	assert.Equal(t, 1, removed)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(50), stats.TokensSaved)
}
