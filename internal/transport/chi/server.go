// Package chi exposes retrieval, group isolation and cache administration over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/candidate"
	"github.com/kailas-cloud/hybridrank/internal/domain/search/query"
	"github.com/kailas-cloud/hybridrank/internal/usecase/cacheadmin"
	"github.com/kailas-cloud/hybridrank/internal/usecase/groupiso"
	healthuc "github.com/kailas-cloud/hybridrank/internal/usecase/health"
	"github.com/kailas-cloud/hybridrank/internal/usecase/source"
)

const maxBodyBytes = 1 << 20

// KnowledgeRetriever ranks knowledge entries.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, q query.Context) ([]source.KnowledgeResult, error)
}

// ProcedureRetriever ranks procedure steps without group isolation.
type ProcedureRetriever interface {
	Retrieve(ctx context.Context, q query.Context) ([]source.ProcedureResult, error)
}

// GroupIsolator runs group isolation over procedures.
type GroupIsolator interface {
	Resolve(ctx context.Context, q query.Context) (groupiso.Resolution, error)
}

// ProcedureFormatter renders isolated candidates.
type ProcedureFormatter interface {
	Format(c candidate.Candidate) source.ProcedureResult
}

// CacheInvalidator drops metadata cache entries.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, req cacheadmin.Request) (cacheadmin.Result, error)
}

// Defaults are the per-endpoint request defaults.
type Defaults struct {
	Knowledge  query.Defaults
	Procedures query.Defaults
}

// Server holds the HTTP handlers.
type Server struct {
	knowledge  KnowledgeRetriever
	procedures ProcedureRetriever
	isolator   GroupIsolator
	format     ProcedureFormatter
	caches     CacheInvalidator
	health     *healthuc.Service
	defaults   Defaults
	logger     *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	knowledge KnowledgeRetriever,
	procedures ProcedureRetriever,
	isolator GroupIsolator,
	format ProcedureFormatter,
	caches CacheInvalidator,
	health *healthuc.Service,
	defaults Defaults,
	logger *zap.Logger,
) *Server {
	return &Server{
		knowledge:  knowledge,
		procedures: procedures,
		isolator:   isolator,
		format:     format,
		caches:     caches,
		health:     health,
		defaults:   defaults,
		logger:     logger,
	}
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/tenants/{tenantID}/knowledge:retrieve", s.RetrieveKnowledge)
		r.Post("/tenants/{tenantID}/procedures:retrieve", s.RetrieveProcedures)
		r.Post("/tenants/{tenantID}/procedures:isolate", s.IsolateProcedures)
		r.Post("/cache:invalidate", s.InvalidateCache)
	})
}

// RetrieveRequest is the body of the retrieval endpoints.
type RetrieveRequest struct {
	Query               string   `json:"query"`
	PrimaryIntentID     int64    `json:"primary_intent_id,omitempty"`
	SecondaryIntentIDs  []int64  `json:"secondary_intent_ids,omitempty"`
	UserRole            string   `json:"user_role,omitempty"`
	TopK                int      `json:"top_k,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	KeywordFallback     *bool    `json:"keyword_fallback,omitempty"`
	KeywordBoost        *bool    `json:"keyword_boost,omitempty"`
	Debug               bool     `json:"debug,omitempty"`
}

// ListResponse wraps ranked results.
type ListResponse[T any] struct {
	Results []T `json:"results"`
	Count   int `json:"count"`
}

// IsolateResponse carries isolated steps and the resolver's decision.
type IsolateResponse struct {
	Results  []source.ProcedureResult `json:"results"`
	Count    int                      `json:"count"`
	Decision groupiso.Decision        `json:"decision"`
}

// InvalidateRequest is the body of POST /v1/cache:invalidate.
type InvalidateRequest struct {
	TenantID int64 `json:"tenant_id,omitempty"`
	IntentID int64 `json:"intent_id,omitempty"`
	GroupID  int64 `json:"group_id,omitempty"`
	All      bool  `json:"all,omitempty"`
}

// RetrieveKnowledge handles POST /v1/tenants/{tenantID}/knowledge:retrieve.
func (s *Server) RetrieveKnowledge(w http.ResponseWriter, r *http.Request) {
	q, debug, ok := s.parseQuery(w, r, s.defaults.Knowledge)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.knowledge.Retrieve(ctx, q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !debug {
		for i := range results {
			results[i].Debug = nil
		}
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, ListResponse[source.KnowledgeResult]{Results: nonNil(results), Count: len(results)})
}

// RetrieveProcedures handles POST /v1/tenants/{tenantID}/procedures:retrieve.
func (s *Server) RetrieveProcedures(w http.ResponseWriter, r *http.Request) {
	q, debug, ok := s.parseQuery(w, r, s.defaults.Procedures)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.procedures.Retrieve(ctx, q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	stripProcedureDebug(results, debug)

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, ListResponse[source.ProcedureResult]{Results: nonNil(results), Count: len(results)})
}

// IsolateProcedures handles POST /v1/tenants/{tenantID}/procedures:isolate.
func (s *Server) IsolateProcedures(w http.ResponseWriter, r *http.Request) {
	q, debug, ok := s.parseQuery(w, r, s.defaults.Procedures)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.isolator.Resolve(ctx, q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results := make([]source.ProcedureResult, len(res.Candidates))
	for i := range res.Candidates {
		results[i] = s.format.Format(res.Candidates[i])
	}
	stripProcedureDebug(results, debug)

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, IsolateResponse{Results: results, Count: len(results), Decision: res.Decision})
}

// InvalidateCache handles POST /v1/cache:invalidate.
func (s *Server) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.caches.Invalidate(r.Context(), cacheadmin.Request{
		TenantID: req.TenantID,
		IntentID: req.IntentID,
		GroupID:  req.GroupID,
		All:      req.All,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// HealthCheck handles GET /health. Only an unreachable database fails the probe.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: report.Status, Checks: report.Checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// parseQuery decodes and validates a retrieval request, writing the error response itself.
func (s *Server) parseQuery(w http.ResponseWriter, r *http.Request, d query.Defaults) (query.Context, bool, bool) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "tenant id must be an integer")
		return query.Context{}, false, false
	}

	var req RetrieveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return query.Context{}, false, false
	}

	q, err := query.New(req.Query, tenantID, req.PrimaryIntentID, req.SecondaryIntentIDs, req.UserRole,
		query.Options{
			TopK:                req.TopK,
			SimilarityThreshold: req.SimilarityThreshold,
			KeywordFallback:     req.KeywordFallback,
			KeywordBoost:        req.KeywordBoost,
		}, d)
	if err != nil {
		s.handleDomainError(w, r, err)
		return query.Context{}, false, false
	}
	return q, req.Debug, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

func stripProcedureDebug(results []source.ProcedureResult, debug bool) {
	if debug {
		return
	}
	for i := range results {
		results[i].Debug = nil
	}
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.Tokens()))
	}
}
