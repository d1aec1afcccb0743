package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}

	// All operations on a nil dispatcher are no-ops.
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Error("nil dispatcher reported drops")
	}
}

func TestEventsReachSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8, DropIfFull: true}, sink)

	d.Emit(context.Background(), Event{EventType: "tokens_issued", UserID: "u-1", Success: true})
	d.Close()

	select {
	case event := <-sink.Events():
		if event.EventType != "tokens_issued" || event.UserID != "u-1" || !event.Success {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("event never reached sink")
	}
}

func TestCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(64)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
	}
	d.Close()

	received := 0
	for {
		select {
		case <-sink.Events():
			received++
		case <-time.After(100 * time.Millisecond):
			if received != 10 {
				t.Errorf("received %d events after close, want 10", received)
			}
			return
		}
	}
}

func TestDropWhenFull(t *testing.T) {
	// blockingSink never consumes, so the dispatcher buffer fills up.
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, Event) { <-block })

	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(block)
		d.Close()
	}()

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
	}

	if d.Dropped() == 0 {
		t.Error("expected drops with a full buffer and blocked sink")
	}
}

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8, DropIfFull: true}, sink)
	d.Close()

	d.Emit(context.Background(), Event{EventType: "late"})

	select {
	case event := <-sink.Events():
		t.Errorf("event delivered after close: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Timestamp: time.Unix(1735689600, 0).UTC(),
		EventType: "rate_limit_exceeded",
		Action:    "login",
		Success:   false,
	})

	line := strings.TrimSpace(buf.String())
	var decoded Event
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.EventType != "rate_limit_exceeded" || decoded.Action != "login" {
		t.Errorf("unexpected decoded event: %+v", decoded)
	}
	if strings.Contains(line, "user_id") {
		t.Error("empty optional fields should be omitted")
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }
