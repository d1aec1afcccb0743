package authsec

import (
	"context"
	"time"
)

// SecurityReport is a per-user security posture snapshot assembled for
// account settings pages and support tooling.
type SecurityReport struct {
	UserID           string
	GeneratedAt      time.Time
	ActiveSessionIDs []string
	TwoFactor        TwoFactorStatus
}

// SecurityReport gathers the user's active sessions and two-factor posture in
// one call. Reads only; nothing is consumed or mutated. The two-factor
// section requires a configured [TwoFactorStore] and is left zero-valued
// without one.
func (e *Engine) SecurityReport(ctx context.Context, userID string) (SecurityReport, error) {
	if e == nil || e.revocations == nil {
		return SecurityReport{}, ErrEngineNotReady
	}

	report := SecurityReport{
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
	}

	sessions, err := e.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return SecurityReport{}, err
	}
	report.ActiveSessionIDs = sessions

	if e.twoFactor != nil {
		status, err := e.TwoFactorStatus(ctx, userID)
		if err != nil {
			return SecurityReport{}, err
		}
		report.TwoFactor = status
	}

	return report, nil
}
