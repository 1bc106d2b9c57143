package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/logger"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an upstream signal is failing; retrieval still answers.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const (
	checkDatabase  = "database"
	defaultTimeout = 3 * time.Second
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type namedCheck struct {
	name    string
	checker Checker
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	checks  []namedCheck
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Service.
func New(db DBPinger, logger *zap.Logger) *Service {
	return &Service{db: db, timeout: defaultTimeout, logger: logger}
}

// WithCheck adds an upstream dependency. A nil checker is ignored.
func (s *Service) WithCheck(name string, c Checker) *Service {
	if c != nil {
		s.checks = append(s.checks, namedCheck{name: name, checker: c})
	}
	return s
}

// WithTimeout bounds each individual check.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// Check runs all checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	all := append([]namedCheck{{name: checkDatabase, checker: CheckerFunc(s.db.Ping)}}, s.checks...)
	log := logger.FromContextOr(ctx, s.logger)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(all))
	)
	for _, c := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := c.checker.HealthCheck(cctx); err != nil {
				log.Warn("Health check failed", zap.String("component", c.name), zap.Error(err))
				res = CheckError
			}
			mu.Lock()
			checks[c.name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	return Report{Status: aggregate(checks), Checks: checks}
}

// Names returns the registered component names, sorted.
func (s *Service) Names() []string {
	names := []string{checkDatabase}
	for _, c := range s.checks {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

func aggregate(checks map[string]CheckResult) Status {
	if checks[checkDatabase] == CheckError {
		return Unhealthy
	}
	for _, v := range checks {
		if v == CheckError {
			return Degraded
		}
	}
	return Healthy
}
