package marketdata

import (
	"context"
	"fmt"

	"orderwatch/internal/domain"
	"orderwatch/internal/util"
)

// Compile-time interface check.
var _ Oracle = (*RateLimitedOracle)(nil)

// RateLimitedOracle throttles lookups against an upstream oracle with a
// token bucket so a large sweep cannot exceed the provider's request quota.
type RateLimitedOracle struct {
	next    Oracle
	limiter *util.RateLimiter
}

// NewRateLimitedOracle wraps next with limiter.
func NewRateLimitedOracle(next Oracle, limiter *util.RateLimiter) *RateLimitedOracle {
	return &RateLimitedOracle{next: next, limiter: limiter}
}

// Name returns the upstream oracle's name.
func (o *RateLimitedOracle) Name() string { return o.next.Name() }

// Quote waits for a token and delegates to the upstream oracle. A wait cut
// short by ctx is reported as an unavailable price.
func (o *RateLimitedOracle) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
	}
	return o.next.Quote(ctx, symbol)
}
