package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/hybridrank/internal/domain"
)

type stubEmbedder struct {
	result    domain.EmbeddingResult
	err       error
	healthErr error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return s.result, s.err
}

func (s *stubEmbedder) HealthCheck(_ context.Context) error { return s.healthErr }

type plainEmbedder struct{}

func (plainEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, nil
}

func TestInstrumentedEmbedder_RecordsUsage(t *testing.T) {
	inner := &stubEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 12}}
	p := NewInstrumentedEmbedder(inner, "nebius", "bge-m3", zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	res, err := p.Embed(ctx, "when is rent due")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 2 {
		t.Errorf("dimensions = %d", len(res.Embedding))
	}
	if !usage.Used() || usage.Tokens() != 12 {
		t.Errorf("tokens = %d used = %v, want 12 tokens", usage.Tokens(), usage.Used())
	}
}

func TestInstrumentedEmbedder_NoUsageCollector(t *testing.T) {
	inner := &stubEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}, TotalTokens: 3}}
	if _, err := NewInstrumentedEmbedder(inner, "p", "m", zap.NewNop()).Embed(context.Background(), "q"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
}

func TestInstrumentedEmbedder_ErrorLoggedAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	inner := &stubEmbedder{err: domain.ErrEmbeddingProviderError}
	p := NewInstrumentedEmbedder(inner, "nebius", "bge-m3", zap.New(core))

	_, err := p.Embed(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v", err)
	}
	entries := logs.FilterMessage("Embedding request failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warn entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["provider"] != "nebius" {
		t.Errorf("fields = %v", entries[0].ContextMap())
	}
}

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	down := errors.New("down")
	p := NewInstrumentedEmbedder(&stubEmbedder{healthErr: down}, "p", "m", zap.NewNop())
	if err := p.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("HealthCheck = %v", err)
	}
	if err := NewInstrumentedEmbedder(plainEmbedder{}, "p", "m", zap.NewNop()).HealthCheck(context.Background()); err != nil {
		t.Errorf("embedder without health check should pass: %v", err)
	}
}
