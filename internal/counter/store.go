// Package counter provides the shared, TTL-based counting store used by the
// rate limiters.
//
// A record is created by the first Increment on a key. The window TTL is set
// at creation only; later increments add points without extending it. Once a
// key is blocked its lifetime is replaced by the block duration. Expired keys
// read as absent, which callers treat as zero consumed points.
//
// Backends must fail fast. Any backend failure is reported wrapped in
// ErrUnavailable so callers can tell it apart from a throttling decision.
package counter

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the counting backend could not be reached.
var ErrUnavailable = errors.New("counting store unavailable")

// Record is the point-in-time state of a counter key.
type Record struct {
	ConsumedPoints  int64
	WindowExpiresAt time.Time
	// BlockedUntil is zero when the key was never blocked.
	BlockedUntil time.Time
}

// Blocked reports whether the record carries a block that is still live at now.
func (r *Record) Blocked(now time.Time) bool {
	return r != nil && !r.BlockedUntil.IsZero() && r.BlockedUntil.After(now)
}

// Store is the capability the limiters count through.
type Store interface {
	// Increment atomically adds points to key, creating it with the given
	// window when absent, and returns the updated record.
	Increment(ctx context.Context, key string, points int64, window time.Duration) (*Record, error)
	// Get returns the record for key, or nil when the key is absent or expired.
	Get(ctx context.Context, key string) (*Record, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Block marks an existing key blocked for d and makes it expire with the
	// block. A key whose block is still live is left untouched. It returns
	// the resulting record, or nil when the key does not exist.
	Block(ctx context.Context, key string, d time.Duration) (*Record, error)
}
