package health

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"
)

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, zap.NewNop()).WithCheck("embedding", &mockChecker{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["database"] != CheckOK || r.Checks["embedding"] != CheckOK {
		t.Errorf("unexpected checks %v", r.Checks)
	}
}

func TestCheck_DBErrorIsUnhealthy(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, zap.NewNop()).
		WithCheck("embedding", &mockChecker{})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError || r.Checks["embedding"] != CheckOK {
		t.Errorf("unexpected checks %v", r.Checks)
	}
}

func TestCheck_UpstreamErrorIsDegraded(t *testing.T) {
	svc := New(&mockDBPinger{}, zap.NewNop()).
		WithCheck("embedding", &mockChecker{}).
		WithCheck("reranker", &mockChecker{err: errors.New("timeout")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["reranker"] != CheckError {
		t.Errorf("expected reranker %q, got %q", CheckError, r.Checks["reranker"])
	}
}

func TestCheck_NilCheckerIgnored(t *testing.T) {
	svc := New(&mockDBPinger{}, zap.NewNop()).WithCheck("reranker", nil)
	r := svc.Check(context.Background())

	if _, ok := r.Checks["reranker"]; ok {
		t.Error("nil checker should not be registered")
	}
	if !slices.Equal(svc.Names(), []string{"database"}) {
		t.Errorf("names = %v", svc.Names())
	}
}

func TestCheck_Timeout(t *testing.T) {
	slow := CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	svc := New(&mockDBPinger{}, zap.NewNop()).WithCheck("qdrant", slow).WithTimeout(10 * time.Millisecond)

	start := time.Now()
	r := svc.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Error("check did not honor timeout")
	}
	if r.Checks["qdrant"] != CheckError || r.Status != Degraded {
		t.Errorf("unexpected report %+v", r)
	}
}
