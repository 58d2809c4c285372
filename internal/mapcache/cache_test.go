package mapcache

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
)

func TestCachePutAndGetPoint(t *testing.T) {
	c := New(time.Minute, time.Hour)
	mapID := uuid.New().String()
	key := []byte("k1")
	m := catalogmodel.PointMapping{ShardID: uuid.New()}

	_, ok := c.GetPoint(mapID, key)
	assert.False(t, ok, "expected a miss before any Put")

	c.PutPoint(mapID, key, m)
	got, ok := c.GetPoint(mapID, key)
	require.True(t, ok)
	assert.Equal(t, m.ShardID, got.ShardID)
}

func TestCacheEntryExpires(t *testing.T) {
	c := New(time.Minute, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	mapID := uuid.New().String()
	key := []byte("k1")
	c.PutPoint(mapID, key, catalogmodel.PointMapping{})

	_, ok := c.GetPoint(mapID, key)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.GetPoint(mapID, key)
	assert.False(t, ok, "expected the entry to have expired")
}

func TestRecordFailureDoublesTTLAndSuccessResets(t *testing.T) {
	c := New(time.Minute, 8*time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	mapID := uuid.New().String()
	key := []byte("k1")
	c.PutPoint(mapID, key, catalogmodel.PointMapping{})

	c.RecordFailure(mapID, key)
	c.entries[cacheKey(mapID, key)].ttlOrFail(t, 2*time.Minute)

	c.RecordFailure(mapID, key)
	c.entries[cacheKey(mapID, key)].ttlOrFail(t, 4*time.Minute)

	// Capped at MaxTTL.
	c.RecordFailure(mapID, key)
	c.RecordFailure(mapID, key)
	c.entries[cacheKey(mapID, key)].ttlOrFail(t, 8*time.Minute)

	// A fresh Put (modeling a successful resolution) resets to BaseTTL.
	c.PutPoint(mapID, key, catalogmodel.PointMapping{})
	c.entries[cacheKey(mapID, key)].ttlOrFail(t, time.Minute)
}

func (e *entry) ttlOrFail(t *testing.T, want time.Duration) {
	t.Helper()
	if e.ttl != want {
		t.Fatalf("expected ttl %v, got %v", want, e.ttl)
	}
}

func TestInvalidateMapRemovesAllItsEntries(t *testing.T) {
	c := New(time.Minute, time.Hour)
	mapA := uuid.New().String()
	mapB := uuid.New().String()

	c.PutPoint(mapA, []byte("a"), catalogmodel.PointMapping{})
	c.PutPoint(mapA, []byte("b"), catalogmodel.PointMapping{})
	c.PutPoint(mapB, []byte("a"), catalogmodel.PointMapping{})

	c.InvalidateMap(mapA)

	_, ok := c.GetPoint(mapA, []byte("a"))
	assert.False(t, ok)
	_, ok = c.GetPoint(mapA, []byte("b"))
	assert.False(t, ok)
	_, ok = c.GetPoint(mapB, []byte("a"))
	assert.True(t, ok, "a different map's entries must survive InvalidateMap")
}
