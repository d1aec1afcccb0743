package authsec

import (
	"context"
	"time"
)

const (
	auditEventTokensIssued       = "tokens_issued"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshRevoked     = "refresh_revoked"
	auditEventSessionRevoked     = "session_revoked"
	auditEventSessionsRevokedAll = "sessions_revoked_all"
	auditEventRateLimitExceeded  = "rate_limit_exceeded"
	auditEventRateLimitDegraded  = "rate_limit_degraded"
	auditEventTwoFactorEnabled   = "twofactor_enabled"
	auditEventTwoFactorDisabled  = "twofactor_disabled"
	auditEventCodeIssued         = "twofactor_code_issued"
	auditEventCodeVerified       = "twofactor_code_verified"
	auditEventCodeFailed         = "twofactor_code_failed"
	auditEventLockout            = "twofactor_lockout"
	auditEventBackupCodeUsed     = "backup_code_used"
	auditEventBackupCodeFailed   = "backup_code_failed"
)

// emitAudit hands a security event to the dispatcher. Fire-and-forget: the
// primary operation's result never depends on delivery.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID, sessionID string,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimitAudit(
	ctx context.Context,
	eventType string,
	action, identifier string,
	err error,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := SecurityEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		Action:     action,
		Identifier: identifier,
		Success:    false,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}
