package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/dares/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key("https://www.wikidata.org/wiki/Special:EntityData/Q42.json")
	assert.True(t, strings.HasPrefix(k, "dares:v1:"))
	assert.Equal(t, k, Key("https://www.wikidata.org/wiki/Special:EntityData/Q42.json"))
	assert.NotEqual(t, k, Key("https://www.wikidata.org/wiki/Special:EntityData/Q1.json"))
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key("u")
	require.NoError(t, c.Set(key, []byte(`{"a":1}`), 0))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(got))

	now = now.Add(2 * time.Hour)
	_, ok = c.Get(key)
	assert.False(t, ok, "entry must expire")

	_, err := os.Stat(c.path(key))
	assert.True(t, os.IsNotExist(err), "expired entry must be removed")
}

func TestDiskCache_CorruptEntryIsMiss(t *testing.T) {
	c := NewDiskCache(t.TempDir(), 0)
	key := Key("u")
	require.NoError(t, os.MkdirAll(filepath.Dir(c.path(key)), 0o755))
	require.NoError(t, os.WriteFile(c.path(key), []byte("not json"), 0o644))

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestDiskCache_DeleteMissing(t *testing.T) {
	c := NewDiskCache(t.TempDir(), 0)
	assert.NoError(t, c.Delete(Key("nothing")))
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	mem := NewMemoryCache(time.Minute, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	c := NewLayeredCache(mem, disk)

	key := Key("u")
	require.NoError(t, disk.Set(key, []byte("body"), 0))
	_, ok := mem.Get(key)
	assert.False(t, ok)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "body", string(got))
	_, ok = mem.Get(key)
	assert.True(t, ok, "disk hit is promoted to memory")

	require.NoError(t, c.Delete(key))
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestLayeredCache_EachLayerKeepsItsTTL(t *testing.T) {
	mem := NewMemoryCache(20*time.Millisecond, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	c := NewLayeredCache(mem, disk)

	key := Key("u")
	require.NoError(t, c.Set(key, []byte("body"), 0))
	time.Sleep(50 * time.Millisecond)

	_, ok := mem.Get(key)
	assert.False(t, ok, "memory entry expires after the memory TTL")
	got, ok := disk.Get(key)
	require.True(t, ok, "disk entry lives for the disk TTL")
	assert.Equal(t, "body", string(got))
}

func TestNew_Disabled(t *testing.T) {
	c := New(model.CacheConfig{Enabled: false}, t.TempDir())
	require.NoError(t, c.Set("k", []byte("v"), 0))
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestNew_DefaultsDiskUnderProject(t *testing.T) {
	dir := t.TempDir()
	c := New(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute, DiskTTL: time.Hour}, dir)
	require.NoError(t, c.Set(Key("u"), []byte("v"), 0))

	entries, err := os.ReadDir(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
