// Package cache memoizes substitution-engine results. Build logs repeat
// payloads heavily (environment blocks, compiler command lines), so skipping
// a rescan of text the run has already seen is a large win on big containers.
// Backends: a bounded in-process map, or Redis for agents that share a fleet-
// wide cache across runs.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Match mirrors one redaction match inside a cached result. Offsets refer to
// the original payload.
type Match struct {
	Pattern string `json:"pattern"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Ordinal int    `json:"ordinal"`
}

// Entry is a memoized scan result for one payload under one catalog.
//
// Input carries the full original payload: keys are hashes, and a collision
// must degrade to a cache miss, never to serving another payload's rewrite.
// Consumers of a Changed==false entry must hand back their own payload
// reference, not Input, so the no-copy-on-no-match guarantee survives a hit.
type Entry struct {
	Input    string    `json:"input"`
	Text     string    `json:"text,omitempty"`
	Changed  bool      `json:"changed"`
	Matches  []Match   `json:"matches,omitempty"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache is the scan-result store. Implementations must treat lookup errors
// as misses at the call site; a degraded cache must never fail a run.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Close() error
}

// Config selects and tunes the cache backend.
type Config struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // none, memory, or redis
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`

	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Key derives the lookup key for one payload scanned under one catalog
// configuration. The identify flag changes the rewritten text, so it is part
// of the key.
func Key(catalogFingerprint uint64, identify bool, payload string) string {
	var seed [9]byte
	binary.BigEndian.PutUint64(seed[:8], catalogFingerprint)
	if identify {
		seed[8] = 1
	}

	h := xxhash.New()
	_, _ = h.Write(seed[:])
	_, _ = h.WriteString(payload)

	var out [16]byte
	binary.BigEndian.PutUint64(out[:8], catalogFingerprint)
	binary.BigEndian.PutUint64(out[8:], h.Sum64())
	return hex.EncodeToString(out[:])
}
