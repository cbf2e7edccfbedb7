// Package cache provides the key/value stores used to memoize task reads.
//
// Every store is advisory: callers must be able to rebuild any value from the
// task database, so a miss and a failure look the same to the service layer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Store is a byte-oriented key/value cache with per-entry TTL and
// glob-style bulk invalidation.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DelByPattern removes every key matching a glob pattern ("tasks:u1:*")
	// and reports how many were removed.
	DelByPattern(ctx context.Context, pattern string) (int, error)
	Close() error
}

// ErrEmptyKey is returned for operations on an empty key or pattern.
var ErrEmptyKey = errors.New("cache: empty key")

// GetJSON loads key and decodes it into dst. A decode failure is reported
// as a miss so that a corrupt entry is simply rebuilt.
func GetJSON(ctx context.Context, s *Resilient, key string, dst interface{}) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, s *Resilient, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logFailure("marshal", key, err)
		return
	}
	s.Set(ctx, key, raw, ttl)
}
