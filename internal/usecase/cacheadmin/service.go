// Package cacheadmin fans caller-triggered invalidations out to the metadata caches.
package cacheadmin

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/logger"
)

// TenantCache caches tenant metadata.
type TenantCache interface {
	Invalidate(tenantID int64)
	Clear()
}

// IntentCache caches intent embeddings.
type IntentCache interface {
	Invalidate(intentID int64)
	Clear()
}

// GroupCache caches procedure groups per tenant.
type GroupCache interface {
	InvalidateTenant(tenantID int64)
	InvalidateGroup(groupID int64)
	Clear()
}

// Request selects what to drop. All wins over the individual ids.
type Request struct {
	TenantID int64
	IntentID int64
	GroupID  int64
	All      bool
}

// Result lists the caches that were touched.
type Result struct {
	Invalidated []string `json:"invalidated"`
}

// Service owns no state; it only routes invalidations.
type Service struct {
	tenants TenantCache
	intents IntentCache
	groups  GroupCache
	logger  *zap.Logger
}

// New creates a Service. Any cache may be nil.
func New(tenants TenantCache, intents IntentCache, groups GroupCache, logger *zap.Logger) *Service {
	return &Service{tenants: tenants, intents: intents, groups: groups, logger: logger}
}

// Invalidate applies req.
func (s *Service) Invalidate(ctx context.Context, req Request) (Result, error) {
	if !req.All && req.TenantID <= 0 && req.IntentID <= 0 && req.GroupID <= 0 {
		return Result{}, errors.Join(domain.ErrInvalidQuery, errors.New("nothing to invalidate"))
	}

	var res Result
	touch := func(name string) { res.Invalidated = append(res.Invalidated, name) }

	if req.All {
		if s.tenants != nil {
			s.tenants.Clear()
			touch("tenant")
		}
		if s.intents != nil {
			s.intents.Clear()
			touch("intent_embedding")
		}
		if s.groups != nil {
			s.groups.Clear()
			touch("group")
		}
	} else {
		if req.TenantID > 0 {
			if s.tenants != nil {
				s.tenants.Invalidate(req.TenantID)
				touch("tenant")
			}
			if s.groups != nil {
				s.groups.InvalidateTenant(req.TenantID)
				touch("group")
			}
		}
		if req.IntentID > 0 && s.intents != nil {
			s.intents.Invalidate(req.IntentID)
			touch("intent_embedding")
		}
		if req.GroupID > 0 && s.groups != nil {
			s.groups.InvalidateGroup(req.GroupID)
			if req.TenantID <= 0 {
				touch("group")
			}
		}
	}

	logger.FromContextOr(ctx, s.logger).Info("Metadata caches invalidated",
		zap.Int64("tenant_id", req.TenantID),
		zap.Int64("intent_id", req.IntentID),
		zap.Int64("group_id", req.GroupID),
		zap.Bool("all", req.All),
		zap.Strings("caches", res.Invalidated),
	)
	return res, nil
}
