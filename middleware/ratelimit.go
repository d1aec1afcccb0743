package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/campuskit/authsec"
)

// IdentifierFunc extracts the rate-limit identifier from a request, typically
// the client IP or an account identifier parsed from the body or session.
type IdentifierFunc func(r *http.Request) string

// rateLimitBody is the JSON payload sent with a 429 response.
type rateLimitBody struct {
	Code       string `json:"code"`
	RetryAfter int64  `json:"retryAfter"`
	ResetAt    int64  `json:"resetAt"`
}

// RateLimit wraps next with the engine's attempt budget for the given action.
// Allowed requests pass through carrying X-RateLimit-Limit, -Remaining, and
// -Reset headers; rejected requests receive 429 with a Retry-After header and
// a machine-readable JSON body. Store outages follow the engine's fail-open
// policy and never 500 here.
func RateLimit(engine *authsec.Engine, action string, identify IdentifierFunc, next http.Handler) http.Handler {
	if identify == nil {
		identify = RemoteAddrIdentifier
	}

	limit := 0
	if policy, ok := engine.ActionPolicy(action); ok {
		limit = policy.MaxAttempts
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := engine.Allow(r.Context(), action, identify(r))
		if err != nil && !errors.Is(err, authsec.ErrRateLimited) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int64(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rateLimitBody{
				Code:       "RATE_LIMIT_EXCEEDED",
				RetryAfter: retryAfter,
				ResetAt:    decision.ResetAt.Unix(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RemoteAddrIdentifier keys the limiter by the request's remote address. Put
// a real client-IP extractor in front of it when running behind a proxy.
func RemoteAddrIdentifier(r *http.Request) string {
	return r.RemoteAddr
}
