// Package limiter defines interfaces and implementations for per-endpoint request limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter counts requests per (bucket, key) in fixed windows.
type Limiter interface {
	// Allow records one request and reports whether it fits the bucket's quota,
	// with the time left until the window resets when it does not.
	Allow(ctx context.Context, bucket, key string) (bool, time.Duration, error)
}

// Rule is a quota of Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules maps bucket names to quotas. Buckets without a rule are unlimited.
type Rules map[string]Rule

// Bucket names used by the HTTP layer.
const (
	BucketAccount = "account" // register, login, verification, key and password changes
	BucketData    = "data"    // endpoints behind the api key guard
)

// DefaultRules: 100/min for account endpoints, 10/min for guarded data endpoints.
func DefaultRules() Rules {
	return Rules{
		BucketAccount: {Limit: 100, Window: time.Minute},
		BucketData:    {Limit: 10, Window: time.Minute},
	}
}

// HashKey returns a stable hash for a caller identity (IP or api key) to avoid storing raw values.
func HashKey(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}

// Nop allows everything.
type Nop struct{}

// Allow always admits.
func (Nop) Allow(context.Context, string, string) (bool, time.Duration, error) { return true, 0, nil }
