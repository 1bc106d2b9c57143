// Package redis implements db.Store with rueidis against Redis Stack (FT.* commands).
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/hybridrank/internal/db"
)

var _ db.Store = (*Store)(nil)

const (
	defaultScanCount = 200
	readyPollMin     = 50 * time.Millisecond
	readyPollMax     = time.Second
)

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// ClientName is reported via CLIENT SETNAME.
	ClientName string
	// ScanCount is the COUNT hint for SCAN; zero uses 200.
	ScanCount int64
}

// Store talks to one Redis deployment.
type Store struct {
	client    rueidis.Client
	scanCount int64
}

// NewStore connects to Redis. Client-side caching is off: metadata freshness
// is managed by the in-process caches and their invalidation endpoint.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: at least one address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   cfg.ClientName,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH replies are parsed as RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("redis: connect %v: %w", cfg.Addrs, err)
	}

	return newStore(client, cfg.ScanCount), nil
}

func newStore(client rueidis.Client, scanCount int64) *Store {
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	return &Store{client: client, scanCount: scanCount}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings with doubling backoff until Redis answers or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := readyPollMin
	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: not ready after %s: %w", timeout, err)
		case <-time.After(wait):
		}
		wait = min(wait*2, readyPollMax)
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// serverErrorContains reports whether err is a Redis error reply mentioning msg, ignoring case.
func serverErrorContains(err error, msg string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(msg))
}
