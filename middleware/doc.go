// Package middleware adapts the security core's rate limiter to net/http.
// The handler wrapper consumes one attempt slot per request and answers
// rejected requests with 429 plus the standard X-RateLimit headers, so
// transport-facing services do not each reimplement the mapping.
package middleware
