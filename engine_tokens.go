package authsec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuskit/authsec/revoke"
	"github.com/campuskit/authsec/token"
	"github.com/google/uuid"
)

// GenerateTokens mints a fresh session: a short-lived access token, a
// refresh token bound to a new random session ID, and the revocation record
// that makes the refresh token honorable.
//
// One store write. The only non-store failure mode is signing-key
// misconfiguration, which [Builder.Build] already treats as fatal.
func (e *Engine) GenerateTokens(ctx context.Context, userID, email, role string) (TokenPair, error) {
	if e == nil || e.signer == nil || e.revocations == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if userID == "" {
		return TokenPair{}, errors.New("user id must not be empty")
	}

	sessionID := uuid.NewString()

	accessToken, _, err := e.signer.SignAccess(userID, email, role)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, _, err := e.signer.SignRefresh(userID, sessionID)
	if err != nil {
		return TokenPair{}, err
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	rec := revoke.Record{
		UserID:    userID,
		SessionID: sessionID,
		IssuedAt:  time.Now().Unix(),
	}
	if err := e.revocations.Save(storeCtx, rec, e.config.Token.RefreshTTL); err != nil {
		// Fail closed: a refresh token without a revocation record could never
		// be revoked, so it must never leave this function.
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTokensIssued)
	e.emitAudit(ctx, auditEventTokensIssued, true, userID, sessionID, nil, nil)

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
	}, nil
}

// VerifyAccessToken checks signature, expiry, and claim kind. Pure and
// local, with no store round trip, so it is safe on every request hot path.
//
// Fails with [ErrTokenExpired] or [ErrTokenInvalid].
func (e *Engine) VerifyAccessToken(tokenStr string) (*token.AccessClaims, error) {
	if e == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.signer.ParseAccess(tokenStr)
	if err != nil {
		e.metricInc(MetricAccessVerifyFailure)
		return nil, mapTokenError(err)
	}
	return claims, nil
}

// VerifyRefreshToken checks signature, expiry, and claim kind, then confirms
// the matching revocation record still exists. [ErrTokenRevoked] covers
// logout, rotation, and store-side TTL expiry uniformly.
func (e *Engine) VerifyRefreshToken(ctx context.Context, tokenStr string) (*token.RefreshClaims, error) {
	if e == nil || e.signer == nil || e.revocations == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.signer.ParseRefresh(tokenStr)
	if err != nil {
		return nil, mapTokenError(err)
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	exists, err := e.revocations.Exists(storeCtx, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// RefreshAccessToken redeems a refresh token exactly once: the atomic
// delete of its revocation record is the serialization point, and only the
// caller whose delete removed an extant record may mint replacement tokens.
// A concurrent second redemption observes [ErrTokenRevoked].
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.signer == nil || e.revocations == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if e.users == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	claims, err := e.signer.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, mapTokenError(err)
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	existed, err := e.revocations.Consume(storeCtx, claims.UserID, claims.SessionID)
	if err != nil {
		// Fail closed; the record is still intact, so the caller may retry.
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !existed {
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshRevoked, false, claims.UserID, claims.SessionID, ErrTokenRevoked, nil)
		return TokenPair{}, ErrTokenRevoked
	}

	identity, err := e.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pair, err := e.GenerateTokens(ctx, identity.UserID, identity.Email, identity.Role)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshRotated)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, claims.UserID, pair.SessionID, nil, map[string]string{
		"rotated_from": claims.SessionID,
	})
	return pair, nil
}

// RevokeSession deletes one session's revocation record. Idempotent: revoking
// an already-absent session is not an error.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if e == nil || e.revocations == nil {
		return ErrEngineNotReady
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	existed, err := e.revocations.Consume(storeCtx, userID, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existed {
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventSessionRevoked, true, userID, sessionID, nil, nil)
	}
	return nil
}

// RevokeAllSessions deletes every revocation record tracked for the user and
// returns how many were removed. Best-effort (see revoke.Store): callers
// responding to account compromise should verify with
// [Engine.ActiveSessionIDs] afterwards rather than treating this as a hard
// boundary.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if e == nil || e.revocations == nil {
		return 0, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	deleted, err := e.revocations.DeleteAllForUser(storeCtx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if deleted > 0 {
		e.metricInc(MetricSessionsBulkRevoked)
	}
	e.emitAudit(ctx, auditEventSessionsRevokedAll, true, userID, "", nil, map[string]string{
		"revoked": fmt.Sprintf("%d", deleted),
	})
	return deleted, nil
}

// ActiveSessionIDs lists the session IDs currently tracked for a user.
func (e *Engine) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.revocations == nil {
		return nil, ErrEngineNotReady
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()

	ids, err := e.revocations.ActiveSessionIDs(storeCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrInvalid):
		return ErrTokenInvalid
	default:
		return ErrTokenInvalid
	}
}
