package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"prod", "staging", "local", "dev", "docker"} {
		if _, err := NewLogger(env); err != nil {
			t.Errorf("NewLogger(%q): %v", env, err)
		}
	}
	if _, err := NewLogger("mars"); err == nil {
		t.Error("expected error for unknown env")
	}
	if _, err := NewLogger("local", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
	l, err := NewLogger("prod", "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected nop logger, got nil")
	}

	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	if got := FromContextOr(context.Background(), base); got != base {
		t.Error("expected fallback logger when context has none")
	}

	ctx := ContextWithLogger(context.Background(), base)
	ctx = With(ctx, zap.String("request_id", "r-1"))
	FromContextOr(ctx, zap.NewNop()).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["request_id"] != "r-1" {
		t.Errorf("request_id field missing: %v", entries[0].ContextMap())
	}
}
