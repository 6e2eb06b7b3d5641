package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/ppiankov/dares/internal/model"
)

// Cache stores raw response bodies keyed by Key(url)
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives the cache key of a request URL
func Key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "dares:v1:" + hex.EncodeToString(hash[:])
}

// New builds the response cache described by cfg. projectDir hosts the
// disk layer when cfg.DiskDir is empty. A disabled cache returns Nop.
func New(cfg model.CacheConfig, projectDir string) Cache {
	if !cfg.Enabled {
		return Nop{}
	}
	dir := cfg.DiskDir
	if dir == "" {
		dir = filepath.Join(projectDir, "cache")
	}
	return NewLayeredCache(
		NewMemoryCache(cfg.MemoryTTL, 10*time.Minute),
		NewDiskCache(dir, cfg.DiskTTL),
	)
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(string) ([]byte, bool) { return nil, false }
func (Nop) Set(string, []byte, time.Duration) error { return nil }
func (Nop) Delete(string) error { return nil }
func (Nop) Clear() error { return nil }
