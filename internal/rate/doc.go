// Package rate implements the fixed-window attempt counter behind the
// engine's rate limiter. The window is anchored at the first attempt and
// enforced by Redis key TTL; the check-and-increment step runs as a single
// Lua script so concurrent callers can never both observe count=N and write
// N+1 (the lost-update race a read-then-write implementation would have).
package rate
