package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/hybridrank/internal/db"
)

// HGetAll returns every field of a hash. A missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Target: key, Err: err}
	}
	return m, nil
}

// HGetAllMulti pipelines HGETALL for keys; results align with keys.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, 0, len(keys))
	for _, key := range keys {
		cmds = append(cmds, s.b().Hgetall().Key(key).Build())
	}

	out := make([]map[string]string, len(keys))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Target: keys[i], Err: err}
		}
		out[i] = m
	}
	return out, nil
}

// Scan returns every key matching pattern. SCAN may report a key more than
// once across pages; duplicates are dropped.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		seen   = make(map[string]struct{})
		cursor uint64
	)

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(s.scanCount).Build()
		page, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Target: pattern, Err: err}
		}
		for _, k := range page.Elements {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if cursor = page.Cursor; cursor == 0 {
			return keys, nil
		}
	}
}
