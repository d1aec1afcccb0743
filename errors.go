package authsec

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTokenInvalid is an exported constant or variable used by the security core.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the security core.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is an exported constant or variable used by the security core.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRateLimited is an exported constant or variable used by the security core.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnknownAction is an exported constant or variable used by the security core.
	ErrUnknownAction = errors.New("unknown rate limit action")
	// ErrLockedOut is an exported constant or variable used by the security core.
	ErrLockedOut = errors.New("two-factor verification locked out")
	// ErrCodeInvalid is an exported constant or variable used by the security core.
	ErrCodeInvalid = errors.New("invalid code")
	// ErrNoActiveCode is an exported constant or variable used by the security core.
	ErrNoActiveCode = errors.New("no active code")
	// ErrTwoFactorDisabled is an exported constant or variable used by the security core.
	ErrTwoFactorDisabled = errors.New("two-factor not enabled")
	// ErrStoreUnavailable is an exported constant or variable used by the security core.
	ErrStoreUnavailable = errors.New("shared store unavailable")
	// ErrSigningKeyMissing is an exported constant or variable used by the security core.
	ErrSigningKeyMissing = errors.New("signing key misconfigured")
	// ErrEngineNotReady is an exported constant or variable used by the security core.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// InvalidCodeError is returned by [Engine.VerifyTwoFactorCode] on a mismatch
// below the lockout threshold. It satisfies errors.Is(err, ErrCodeInvalid) and
// carries the number of attempts left before lockout.
type InvalidCodeError struct {
	RemainingAttempts int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code (%d attempts remaining)", e.RemainingAttempts)
}

// Is reports sentinel equivalence so callers can match on [ErrCodeInvalid].
func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrCodeInvalid
}

// LockedOutError is returned while a two-factor lockout is active. It
// satisfies errors.Is(err, ErrLockedOut) and carries the remaining lockout
// duration for the caller to surface.
type LockedOutError struct {
	Until time.Time
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("locked out until %s", e.Until.UTC().Format(time.RFC3339))
}

// Is reports sentinel equivalence so callers can match on [ErrLockedOut].
func (e *LockedOutError) Is(target error) bool {
	return target == ErrLockedOut
}

// RetryAfter returns the remaining lockout duration, never negative.
func (e *LockedOutError) RetryAfter() time.Duration {
	d := time.Until(e.Until)
	if d < 0 {
		return 0
	}
	return d
}
