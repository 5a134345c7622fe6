package limiter

import (
	"context"
	"time"

	"github.com/spec-kit/auth-service/internal/counter"
	apperrors "github.com/spec-kit/auth-service/pkg/util"
)

const (
	ErrTypeFloodTooManyRequests = "/errors/app/limiter/too-many-requests"
	ErrTypeFloodInternal        = "/errors/app/limiter/internal-error"
)

// FloodPolicy caps raw request volume per address.
type FloodPolicy struct {
	KeyPrefix string
	Points    int64
	Window    time.Duration
}

// DefaultFloodPolicy allows 10 requests per second per address.
func DefaultFloodPolicy() FloodPolicy {
	return FloodPolicy{KeyPrefix: "rl_flood", Points: 10, Window: time.Second}
}

// FloodLimiter consumes one point per request.
type FloodLimiter struct {
	store  counter.Store
	policy FloodPolicy
	now    func() time.Time
}

func NewFloodLimiter(store counter.Store, policy FloodPolicy, now func() time.Time) *FloodLimiter {
	if now == nil {
		now = time.Now
	}
	return &FloodLimiter{store: store, policy: policy, now: now}
}

// Consume counts a request from address and rejects it once the window
// budget is spent.
func (f *FloodLimiter) Consume(ctx context.Context, address string) error {
	rec, err := f.store.Increment(context.WithoutCancel(ctx), f.policy.KeyPrefix+":"+address, 1, f.policy.Window)
	if err != nil {
		return apperrors.NewInfrastructure(ErrTypeFloodInternal, "Rate Limiter Error", err)
	}
	if rec.ConsumedPoints <= f.policy.Points {
		return nil
	}
	return apperrors.NewThrottled(ErrTypeFloodTooManyRequests, "Too Many requests",
		retryAfterSeconds(rec.WindowExpiresAt.Sub(f.now())))
}
