package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestRequestID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if _, ok := GetRequestID(ctx); ok {
		t.Error("expected no request ID on empty context")
	}

	ctx = WithRequestID(ctx, "req-123")
	got, ok := GetRequestID(ctx)
	if !ok || got != "req-123" {
		t.Errorf("GetRequestID() = (%q, %v), want (req-123, true)", got, ok)
	}
}

func TestClientIPAndIntent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if GetClientIP(ctx) != "" || GetIntent(ctx) != "" {
		t.Fatal("expected empty values on empty context")
	}

	ctx = WithIntent(WithClientIP(ctx, "10.0.0.1"), "GENERATE")
	if got := GetClientIP(ctx); got != "10.0.0.1" {
		t.Errorf("GetClientIP() = %q", got)
	}
	if got := GetIntent(ctx); got != "GENERATE" {
		t.Errorf("GetIntent() = %q", got)
	}
}

func TestPreserveTracing(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithRequestID(parent, "req-1")
	parent = WithClientIP(parent, "192.168.1.5")
	parent = WithIntent(parent, "ANSWER")
	cancel()

	detached := PreserveTracing(parent)

	if detached.Err() != nil {
		t.Error("detached context must not inherit cancellation")
	}
	if _, ok := detached.Deadline(); ok {
		t.Error("detached context must not inherit the deadline")
	}
	if id, _ := GetRequestID(detached); id != "req-1" {
		t.Errorf("request ID = %q, want req-1", id)
	}
	if GetClientIP(detached) != "192.168.1.5" {
		t.Error("client IP not preserved")
	}
	if GetIntent(detached) != "ANSWER" {
		t.Error("intent not preserved")
	}
}

func TestPreserveTracing_EmptyContext(t *testing.T) {
	t.Parallel()
	detached := PreserveTracing(context.Background())

	if _, ok := GetRequestID(detached); ok {
		t.Error("expected no request ID")
	}
}
