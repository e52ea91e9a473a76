package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"authghost.org/internal/auth"
)

func captured(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })
	return logs
}

func TestEventCarriesRequestAndActor(t *testing.T) {
	logs := captured(t)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{UserID: "user-1"})
	Event(ctx, "login.success", zap.String("email", "jo@example.com"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event"] != "login.success" {
		t.Fatalf("unexpected event field: %v", fields["event"])
	}
	if fields["request_id"] != "req-123" {
		t.Fatalf("unexpected request_id: %v", fields["request_id"])
	}
	if fields["actor_id"] != "user-1" {
		t.Fatalf("unexpected actor_id: %v", fields["actor_id"])
	}
	if fields["email"] != "jo@example.com" {
		t.Fatalf("unexpected email: %v", fields["email"])
	}
}

func TestEventWithoutContextDecorations(t *testing.T) {
	logs := captured(t)

	Event(context.Background(), "login.failure", zap.String("email", "jo@example.com"))

	fields := logs.All()[0].ContextMap()
	if _, ok := fields["request_id"]; ok {
		t.Fatal("request_id must be absent")
	}
	if _, ok := fields["actor_id"]; ok {
		t.Fatal("actor_id must be absent")
	}
}
