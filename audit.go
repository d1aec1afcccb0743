package authsec

import (
	"io"

	internalaudit "github.com/campuskit/authsec/internal/audit"
)

// SecurityEvent is a structured record of a security-relevant outcome emitted
// by the engine.
type SecurityEvent = internalaudit.Event

// SecuritySink receives [SecurityEvent] values from the engine's dispatcher.
// Delivery is fire-and-forget; a slow or failing sink never blocks the
// primary operation.
type SecuritySink = internalaudit.Sink

// NoOpSink is a [SecuritySink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [SecuritySink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is a [SecuritySink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
