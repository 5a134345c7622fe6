// Package limiter implements the login throttling policy on top of the
// counting store.
//
// Two tiers are kept per attempt: a coarse per-address counter that protects
// capacity regardless of the targeted identity, and a per-(identity, address)
// counter that protects one identity from targeted guessing. A tier is
// blocked once its points exceed the ceiling and its block is still live.
package limiter

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/spec-kit/auth-service/internal/counter"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

const (
	ErrTypeTooManyRequests = "/errors/user/limiter/too-many-requests"
	ErrTypeInternal        = "/errors/user/limiter/internal-error"
)

// Tier describes one counter of the policy.
type Tier struct {
	KeyPrefix string
	Ceiling   int64
	Window    time.Duration
	Block     time.Duration
}

// Policy holds the fixed limits of the login limiter.
type Policy struct {
	Address  Tier
	Identity Tier
}

// DefaultPolicy returns the production limits: 100 failures per address per
// day, and 10 consecutive failures per identity and address over 90 days with
// a one hour block.
func DefaultPolicy() Policy {
	return Policy{
		Address: Tier{
			KeyPrefix: "login_fail_ip_per_day",
			Ceiling:   100,
			Window:    24 * time.Hour,
			Block:     24 * time.Hour,
		},
		Identity: Tier{
			KeyPrefix: "login_fail_consecutive_username_and_ip",
			Ceiling:   10,
			Window:    90 * 24 * time.Hour,
			Block:     time.Hour,
		},
	}
}

// Limiter is safe for concurrent use; all shared state lives in the store.
type Limiter struct {
	store  counter.Store
	policy Policy
	now    func() time.Time
}

// New builds a Limiter. A nil clock defaults to time.Now.
func New(store counter.Store, policy Policy, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: store, policy: policy, now: now}
}

// Policy exposes the limits the limiter was built with.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// CheckBlocked rejects the attempt when the address tier, then the
// identity tier, is blocked. It never mutates counters.
func (l *Limiter) CheckBlocked(ctx context.Context, address, identity string) error {
	rec, err := l.store.Get(ctx, l.addressKey(address))
	if err != nil {
		return unavailable(err)
	}
	if err := l.rejectIfBlocked(l.policy.Address, rec); err != nil {
		return err
	}

	if identity == "" {
		return nil
	}
	rec, err = l.store.Get(ctx, l.identityKey(identity, address))
	if err != nil {
		return unavailable(err)
	}
	return l.rejectIfBlocked(l.policy.Identity, rec)
}

// RecordFailure consumes one point on the address tier and, when identity is
// known, one point on the identity tier. Both tiers are counted even when one
// of them is already past its ceiling. A throttled error is returned when the
// attempt leaves either tier blocked.
func (l *Limiter) RecordFailure(ctx context.Context, address, identity string) error {
	ctx = context.WithoutCancel(ctx)

	addrErr := l.consume(ctx, l.policy.Address, l.addressKey(address))
	var identErr error
	if identity != "" {
		identErr = l.consume(ctx, l.policy.Identity, l.identityKey(identity, address))
	}

	// infrastructure failures take precedence over throttling decisions
	for _, err := range []error{addrErr, identErr} {
		if apperrors.IsKind(err, apperrors.KindInfrastructure) {
			return err
		}
	}
	if addrErr != nil {
		return addrErr
	}
	return identErr
}

// RecordSuccess clears the identity tier after a successful authentication.
// The address tier is left untouched.
func (l *Limiter) RecordSuccess(ctx context.Context, address, identity string) error {
	if identity == "" {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	key := l.identityKey(identity, address)
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		return unavailable(err)
	}
	if rec == nil || rec.ConsumedPoints <= 0 {
		return nil
	}
	if err := l.store.Delete(ctx, key); err != nil {
		return unavailable(err)
	}
	return nil
}

func (l *Limiter) consume(ctx context.Context, tier Tier, key string) error {
	rec, err := l.store.Increment(ctx, key, 1, tier.Window)
	if err != nil {
		return unavailable(err)
	}
	if rec.ConsumedPoints <= tier.Ceiling {
		return nil
	}
	if !rec.Blocked(l.now()) {
		rec, err = l.store.Block(ctx, key, tier.Block)
		if err != nil {
			return unavailable(err)
		}
	}
	return l.rejectIfBlocked(tier, rec)
}

func (l *Limiter) rejectIfBlocked(tier Tier, rec *counter.Record) error {
	if rec == nil || rec.ConsumedPoints <= tier.Ceiling {
		return nil
	}
	now := l.now()
	if !rec.Blocked(now) {
		return nil
	}
	return apperrors.NewThrottled(ErrTypeTooManyRequests,
		"Too Many failed authentication attempts",
		retryAfterSeconds(rec.BlockedUntil.Sub(now)))
}

func (l *Limiter) addressKey(address string) string {
	return l.policy.Address.KeyPrefix + ":" + address
}

func (l *Limiter) identityKey(identity, address string) string {
	return l.policy.Identity.KeyPrefix + ":" + identity + "_" + address
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func unavailable(err error) error {
	if !errors.Is(err, counter.ErrUnavailable) {
		err = errors.Join(counter.ErrUnavailable, err)
	}
	return apperrors.NewInfrastructure(ErrTypeInternal, "An internal rate limiter error occurred", err)
}
