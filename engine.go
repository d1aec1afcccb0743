package authsec

import (
	"context"
	"time"

	"github.com/campuskit/authsec/codehash"
	internalaudit "github.com/campuskit/authsec/internal/audit"
	"github.com/campuskit/authsec/internal/rate"
	"github.com/campuskit/authsec/revoke"
	"github.com/campuskit/authsec/token"
)

// Engine defines a public type used by authsec APIs.
//
// Engine instances are intended to be configured during initialization
// through [Builder.Build] and then treated as immutable; all methods are safe
// for concurrent use.
type Engine struct {
	config      Config
	signer      *token.Signer
	revocations *revoke.Store
	limiter     *rate.Limiter
	hasher      *codehash.Hasher
	twoFactor   TwoFactorStore
	users       UserDirectory
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
}

// Close flushes and stops the audit dispatcher. The injected Redis client is
// owned by the caller and is not closed here.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many security events were dropped because the
// audit buffer was full. Fire-and-forget delivery means drops never fail an
// operation, but they are counted so they stay visible.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// Ping checks shared-store availability and reports the round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.revocations == nil {
		return 0, ErrEngineNotReady
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.revocations.Ping(ctx)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeCtx applies the configured per-call deadline to a shared-store round
// trip.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}
