package authsec

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/campuskit/authsec/internal"
)

// EnableTwoFactor enrolls the user: records the delivery method and generates
// a fresh set of single-use backup codes. The plaintext codes are returned
// exactly once; only their argon2id hashes are persisted. Re-enrolling an
// already-enabled user replaces the backup codes and clears any pending
// challenge state.
func (e *Engine) EnableTwoFactor(ctx context.Context, userID string, method TwoFactorMethod) (TwoFactorEnrollment, error) {
	if e == nil || e.twoFactor == nil || e.hasher == nil {
		return TwoFactorEnrollment{}, ErrEngineNotReady
	}
	if method != MethodEmail && method != MethodSMS {
		return TwoFactorEnrollment{}, fmt.Errorf("unsupported two-factor method %q", method)
	}

	plaintext := make([]string, 0, e.config.TwoFactor.BackupCodeCount)
	hashes := make([]string, 0, e.config.TwoFactor.BackupCodeCount)
	for i := 0; i < e.config.TwoFactor.BackupCodeCount; i++ {
		code, err := internal.NewBackupCode(e.config.TwoFactor.BackupCodeLength)
		if err != nil {
			return TwoFactorEnrollment{}, err
		}
		hash, err := e.hasher.Hash(code)
		if err != nil {
			return TwoFactorEnrollment{}, err
		}
		plaintext = append(plaintext, internal.FormatBackupCode(code))
		hashes = append(hashes, hash)
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	_, err := e.twoFactor.Mutate(storeCtx, userID, func(s *TwoFactorState) error {
		*s = TwoFactorState{
			Enabled:          true,
			Method:           method,
			BackupCodeHashes: hashes,
		}
		return nil
	})
	if err != nil {
		return TwoFactorEnrollment{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, userID, "", nil, map[string]string{
		"method": string(method),
	})
	return TwoFactorEnrollment{Method: method, BackupCodes: plaintext}, nil
}

// DisableTwoFactor clears the user's entire challenge record, backup codes
// included. Idempotent: disabling an already-disabled user is not an error.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID string) error {
	if e == nil || e.twoFactor == nil {
		return ErrEngineNotReady
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	var wasEnabled bool
	_, err := e.twoFactor.Mutate(storeCtx, userID, func(s *TwoFactorState) error {
		wasEnabled = s.Enabled
		*s = TwoFactorState{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if wasEnabled {
		e.metricInc(MetricTwoFactorDisabled)
		e.emitAudit(ctx, auditEventTwoFactorDisabled, true, userID, "", nil, nil)
	}
	return nil
}

// IssueTwoFactorCode generates a numeric one-time code, persists its hash,
// and returns the plaintext for out-of-band delivery. Issuing replaces any
// prior code and resets the failed-attempt counter, so only one code is ever
// verifiable at a time.
//
// Fails with [ErrTwoFactorDisabled] or, while a lockout is active, with a
// [LockedOutError].
func (e *Engine) IssueTwoFactorCode(ctx context.Context, userID string) (string, time.Time, error) {
	if e == nil || e.twoFactor == nil || e.hasher == nil {
		return "", time.Time{}, ErrEngineNotReady
	}

	code, err := internal.NewOTP(e.config.TwoFactor.CodeDigits)
	if err != nil {
		return "", time.Time{}, err
	}
	hash, err := e.hasher.Hash(code)
	if err != nil {
		return "", time.Time{}, err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	expiresAt := time.Now().Add(e.config.TwoFactor.CodeTTL)
	_, err = e.twoFactor.Mutate(storeCtx, userID, func(s *TwoFactorState) error {
		if !s.Enabled {
			return ErrTwoFactorDisabled
		}
		if until, locked := lockoutActive(s); locked {
			return &LockedOutError{Until: until}
		}
		s.CodeHash = hash
		s.CodeExpiresAt = expiresAt.Unix()
		s.FailedAttempts = 0
		return nil
	})
	if err != nil {
		return "", time.Time{}, mapTwoFactorStoreError(err)
	}

	e.metricInc(MetricTwoFactorCodeIssued)
	e.emitAudit(ctx, auditEventCodeIssued, true, userID, "", nil, nil)
	return code, expiresAt, nil
}

// VerifyTwoFactorCode checks a submitted code against the active challenge.
//
// A mismatch counts one strike and returns an [InvalidCodeError]; the strike
// write persists even though the call fails. Reaching the configured
// threshold sets the lockout inside the same atomic state update that records
// the final strike, so racing submissions cannot overshoot it. A correct code
// is single-use: the hash is cleared in the same write that accepts it.
func (e *Engine) VerifyTwoFactorCode(ctx context.Context, userID, code string) error {
	if e == nil || e.twoFactor == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	// outcome carries failure results that must not abandon the write.
	// Returning non-nil from the closure would discard the strike.
	var outcome error
	_, err := e.twoFactor.Mutate(storeCtx, userID, func(s *TwoFactorState) error {
		now := time.Now()
		if !s.Enabled {
			return ErrTwoFactorDisabled
		}
		if until, locked := lockoutActive(s); locked {
			return &LockedOutError{Until: until}
		}
		if s.CodeHash == "" {
			return ErrNoActiveCode
		}
		if s.CodeExpiresAt <= now.Unix() {
			s.CodeHash = ""
			s.CodeExpiresAt = 0
			outcome = ErrNoActiveCode
			return nil
		}

		match, verr := e.hasher.Verify(code, s.CodeHash)
		if verr != nil {
			return verr
		}
		if match {
			s.CodeHash = ""
			s.CodeExpiresAt = 0
			s.FailedAttempts = 0
			s.LastUsedAt = now.Unix()
			outcome = nil
			return nil
		}

		s.FailedAttempts++
		if s.FailedAttempts >= e.config.TwoFactor.MaxFailedAttempts {
			until := now.Add(e.config.TwoFactor.LockoutDuration)
			s.LockedUntil = until.Unix()
			s.FailedAttempts = 0
			s.CodeHash = ""
			s.CodeExpiresAt = 0
			outcome = &LockedOutError{Until: until}
		} else {
			outcome = &InvalidCodeError{
				RemainingAttempts: e.config.TwoFactor.MaxFailedAttempts - s.FailedAttempts,
			}
		}
		return nil
	})
	if err != nil {
		return mapTwoFactorStoreError(err)
	}

	switch {
	case outcome == nil:
		e.metricInc(MetricTwoFactorSuccess)
		e.emitAudit(ctx, auditEventCodeVerified, true, userID, "", nil, nil)
	case errors.Is(outcome, ErrLockedOut):
		e.metricInc(MetricTwoFactorLockout)
		e.emitAudit(ctx, auditEventLockout, false, userID, "", outcome, nil)
	default:
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventCodeFailed, false, userID, "", outcome, nil)
	}
	return outcome
}

// VerifyBackupCode checks a submitted backup code and burns it on success.
// Backup codes bypass an active code lockout, which is their whole point when
// the delivery channel is unavailable, so abuse is bounded by their own
// rate-limit action instead. A successful backup code also clears the lockout
// and any pending challenge.
//
// Returns how many backup codes remain.
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) (int, error) {
	if e == nil || e.twoFactor == nil || e.hasher == nil {
		return 0, ErrEngineNotReady
	}

	if _, ok := e.config.RateLimit.Actions[ActionTwoFactorBackup]; ok && e.limiter != nil {
		if _, err := e.Allow(ctx, ActionTwoFactorBackup, userID); err != nil {
			return 0, err
		}
	}

	canonical := internal.CanonicalizeBackupCode(code)
	if canonical == "" {
		return 0, ErrCodeInvalid
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	var remaining int
	_, err := e.twoFactor.Mutate(storeCtx, userID, func(s *TwoFactorState) error {
		if !s.Enabled {
			return ErrTwoFactorDisabled
		}

		for i, hash := range s.BackupCodeHashes {
			match, verr := e.hasher.Verify(canonical, hash)
			if verr != nil {
				return verr
			}
			if !match {
				continue
			}
			s.BackupCodeHashes = append(s.BackupCodeHashes[:i], s.BackupCodeHashes[i+1:]...)
			s.LockedUntil = 0
			s.FailedAttempts = 0
			s.CodeHash = ""
			s.CodeExpiresAt = 0
			s.LastUsedAt = time.Now().Unix()
			remaining = len(s.BackupCodeHashes)
			return nil
		}
		return ErrCodeInvalid
	})
	if err != nil {
		if errors.Is(err, ErrCodeInvalid) {
			e.metricInc(MetricBackupCodeFailed)
			e.emitAudit(ctx, auditEventBackupCodeFailed, false, userID, "", ErrCodeInvalid, nil)
			return 0, ErrCodeInvalid
		}
		return 0, mapTwoFactorStoreError(err)
	}

	if e.limiter != nil {
		if rerr := e.ResetRateLimit(ctx, ActionTwoFactorBackup, userID); rerr != nil && !errors.Is(rerr, ErrUnknownAction) {
			log.Printf("authsec: backup code limiter reset failed for user %s: %v", userID, rerr)
		}
	}

	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, "", nil, map[string]string{
		"remaining": fmt.Sprintf("%d", remaining),
	})
	return remaining, nil
}

// TwoFactorStatus reports the user's enrollment posture without exposing any
// secret material.
func (e *Engine) TwoFactorStatus(ctx context.Context, userID string) (TwoFactorStatus, error) {
	if e == nil || e.twoFactor == nil {
		return TwoFactorStatus{}, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	state, err := e.twoFactor.Get(storeCtx, userID)
	if err != nil {
		return TwoFactorStatus{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	status := TwoFactorStatus{
		Enabled:              state.Enabled,
		Method:               state.Method,
		BackupCodesRemaining: len(state.BackupCodeHashes),
	}
	if state.LastUsedAt > 0 {
		status.LastUsedAt = time.Unix(state.LastUsedAt, 0)
	}
	if until, locked := lockoutActive(&state); locked {
		status.Locked = true
		status.LockedUntil = until
	}
	return status, nil
}

func lockoutActive(s *TwoFactorState) (time.Time, bool) {
	if s.LockedUntil == 0 {
		return time.Time{}, false
	}
	until := time.Unix(s.LockedUntil, 0)
	if time.Now().Before(until) {
		return until, true
	}
	return time.Time{}, false
}

// mapTwoFactorStoreError passes the engine's own control-flow errors through
// untouched and wraps everything else as a store failure.
func mapTwoFactorStoreError(err error) error {
	switch {
	case errors.Is(err, ErrTwoFactorDisabled),
		errors.Is(err, ErrLockedOut),
		errors.Is(err, ErrCodeInvalid),
		errors.Is(err, ErrNoActiveCode):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
