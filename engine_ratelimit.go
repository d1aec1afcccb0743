package authsec

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/campuskit/authsec/internal/rate"
)

// Allow consumes one attempt slot for the (action, identifier) pair and
// reports whether the attempt may proceed. The check and the increment run as
// one atomic store operation, so concurrent attempts can never push the
// counter past the configured budget.
//
// Unknown actions fail with [ErrUnknownAction] rather than silently admitting
// traffic on an unconfigured endpoint.
//
// When the shared store is unreachable and FailOpen is set, the attempt is
// admitted anyway: blocking every legitimate login during a store outage is a
// worse failure than briefly losing brute-force protection. Degraded
// decisions carry FailedOpen=true and are logged and audited.
func (e *Engine) Allow(ctx context.Context, action, identifier string) (RateLimitDecision, error) {
	if e == nil || e.limiter == nil {
		return RateLimitDecision{}, ErrEngineNotReady
	}

	policy, ok := e.config.RateLimit.Actions[action]
	if !ok {
		return RateLimitDecision{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	decision, err := e.limiter.CheckAndIncrement(storeCtx, action, identifier, rate.Policy{
		MaxAttempts: policy.MaxAttempts,
		Window:      policy.Window,
	})
	if err != nil {
		if e.config.RateLimit.FailOpen {
			log.Printf("authsec: rate limiter degraded, admitting %s attempt: %v", action, err)
			e.metricInc(MetricRateLimitFailOpen)
			e.emitRateLimitAudit(ctx, auditEventRateLimitDegraded, action, identifier, err)
			return RateLimitDecision{
				Allowed:    true,
				Remaining:  policy.MaxAttempts,
				ResetAt:    time.Now().Add(policy.Window),
				FailedOpen: true,
			}, nil
		}
		return RateLimitDecision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := RateLimitDecision{
		Allowed:   decision.Allowed,
		Remaining: remainingAttempts(policy.MaxAttempts, decision.Count),
		ResetAt:   time.Now().Add(decision.ResetAfter),
	}
	if decision.Allowed {
		e.metricInc(MetricRateLimitAllowed)
		return out, nil
	}

	out.RetryAfter = decision.ResetAfter
	e.metricInc(MetricRateLimitBlocked)
	e.emitRateLimitAudit(ctx, auditEventRateLimitExceeded, action, identifier, nil)
	return out, ErrRateLimited
}

// RateLimitStatus reads the current counter without consuming an attempt
// slot. Intended for status endpoints and support tooling; the answer is
// advisory and may be stale by the time it is read.
func (e *Engine) RateLimitStatus(ctx context.Context, action, identifier string) (RateLimitStatus, error) {
	if e == nil || e.limiter == nil {
		return RateLimitStatus{}, ErrEngineNotReady
	}

	policy, ok := e.config.RateLimit.Actions[action]
	if !ok {
		return RateLimitStatus{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	decision, err := e.limiter.Peek(storeCtx, action, identifier, rate.Policy{
		MaxAttempts: policy.MaxAttempts,
		Window:      policy.Window,
	})
	if err != nil {
		return RateLimitStatus{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return RateLimitStatus{
		Count:     decision.Count,
		Remaining: remainingAttempts(policy.MaxAttempts, decision.Count),
		ResetAt:   time.Now().Add(decision.ResetAfter),
	}, nil
}

// ResetRateLimit clears the counter for the pair, reopening its window.
// Called after a completed legitimate flow (for example a successful 2FA
// verification clearing the login counter) or by support staff.
func (e *Engine) ResetRateLimit(ctx context.Context, action, identifier string) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	if _, ok := e.config.RateLimit.Actions[action]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.limiter.Reset(storeCtx, action, identifier); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ActionPolicy exposes the configured budget for an action, for surfaces
// that advertise limits (response headers, status pages).
func (e *Engine) ActionPolicy(action string) (ActionPolicy, bool) {
	if e == nil {
		return ActionPolicy{}, false
	}
	policy, ok := e.config.RateLimit.Actions[action]
	return policy, ok
}

func remainingAttempts(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}
