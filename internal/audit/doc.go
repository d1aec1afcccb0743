// Package audit carries security-relevant outcomes (login gates, lockouts,
// rate-limit trips, revocations) to an external sink. Delivery is
// fire-and-forget: sink failures and buffer overflow never block or fail the
// primary operation, but drops are counted so they are not silently invisible.
package audit
