package cache

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gobwas/glob"
	"github.com/smallnest/taskhub/internal/logger"
	"go.uber.org/zap"
)

// RetryPolicy bounds the retries made around a single cache operation.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy returns a short policy suited to a request path.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		MaxElapsed:      time.Second,
	}
}

// Resilient wraps a Store so that failures never reach the caller: each
// operation is retried with exponential backoff and, if it still fails, is
// logged and reported as a miss. A nil store disables caching entirely.
type Resilient struct {
	store  Store
	policy RetryPolicy
}

// NewResilient wraps store with policy.
func NewResilient(store Store, policy RetryPolicy) *Resilient {
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}
	return &Resilient{store: store, policy: policy}
}

// Enabled reports whether a backing store is configured.
func (r *Resilient) Enabled() bool {
	return r != nil && r.store != nil
}

func (r *Resilient) options() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.policy.MaxTries),
	}
	if r.policy.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.policy.MaxElapsed))
	}
	return opts
}

type getResult struct {
	raw []byte
	ok  bool
}

// Get returns the cached value, or false on miss or failure.
func (r *Resilient) Get(ctx context.Context, key string) ([]byte, bool) {
	if !r.Enabled() {
		return nil, false
	}
	res, err := backoff.Retry(ctx, func() (getResult, error) {
		raw, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return getResult{}, classify(err)
		}
		return getResult{raw: raw, ok: ok}, nil
	}, r.options()...)
	if err != nil {
		r.logFailure("get", key, err)
		return nil, false
	}
	return res.raw, res.ok
}

// Set stores value; failures are logged only.
func (r *Resilient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !r.Enabled() {
		return
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, classify(r.store.Set(ctx, key, value, ttl))
	}, r.options()...)
	if err != nil {
		r.logFailure("set", key, err)
	}
}

// Delete removes a single key.
func (r *Resilient) Delete(ctx context.Context, key string) {
	r.Invalidate(ctx, glob.QuoteMeta(key))
}

// Invalidate removes every key matching any of patterns and returns the
// number of keys removed. Failed patterns are logged and skipped.
func (r *Resilient) Invalidate(ctx context.Context, patterns ...string) int {
	if !r.Enabled() {
		return 0
	}
	total := 0
	for _, pattern := range patterns {
		n, err := backoff.Retry(ctx, func() (int, error) {
			n, err := r.store.DelByPattern(ctx, pattern)
			return n, classify(err)
		}, r.options()...)
		if err != nil {
			r.logFailure("invalidate", pattern, err)
			continue
		}
		total += n
	}
	if total > 0 {
		logger.Debug("Cache invalidated",
			zap.Strings("patterns", patterns),
			zap.Int("removed", total))
	}
	return total
}

// Close closes the backing store.
func (r *Resilient) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.store.Close()
}

func (r *Resilient) logFailure(op, key string, err error) {
	logger.Warn("Cache operation failed, continuing without cache",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err))
}

// classify marks errors that retrying cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEmptyKey) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}
