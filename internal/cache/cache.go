// Package cache stores evidence retrieval responses so repeated questions
// within and across runs do not hit the search API again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/verity/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// KeyPrefix namespaces and versions every key. Bump the version when the
// cached payload changes shape.
const KeyPrefix = "verity:v1:"

// CacheKey derives a stable key from a namespace and the request parts that
// determine the cached answer.
func CacheKey(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return KeyPrefix + namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache described by config. A disabled cache is a no-op.
func New(config model.CacheConfig) Cache {
	if !config.Enabled {
		return NopCache{}
	}
	if strings.TrimSpace(config.Dir) == "" {
		return NewMemoryCache(config.MemoryTTL, 10*time.Minute)
	}
	return NewLayeredCache(config.MemoryTTL, config.Dir, config.DiskTTL)
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(string) ([]byte, bool) { return nil, false }
func (NopCache) Set(string, []byte, time.Duration) error { return nil }
func (NopCache) Delete(string) error { return nil }
func (NopCache) Clear() error { return nil }
