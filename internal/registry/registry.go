// Package registry implements the Job Registry: job-ID liveness reservation
// and durable progress/result snapshots, backed by Redis. Only the owning
// pipeline ever writes a given job's keys, so progress writes need no
// compare-and-swap; reservation is the only operation that must be atomic
// across concurrent admission requests.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// ErrAlreadyActive is returned by Reserve when the job ID is currently live.
var ErrAlreadyActive = errors.New("job already active")

// ErrNotFound is returned when a snapshot is requested for an unknown job.
var ErrNotFound = errors.New("job not found")

const (
	progressKeyPrefix = "progress:"
	resultKeyPrefix   = "result:"
	activeKeyPrefix   = "job:active:"
)

// Redis is the narrow subset of *redis.Client this package depends on, so
// tests can substitute a fake without a live Redis server.
type Redis interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Keys(ctx context.Context, pattern string) *goredis.StringSliceCmd
}

type Registry struct {
	log            *logger.Logger
	rdb            Redis
	liveness       time.Duration
	snapshotTTL    time.Duration
}

// Config tunes the registry's TTLs. Zero values fall back to spec defaults.
type Config struct {
	LivenessTTL time.Duration // must exceed expected pipeline runtime
	SnapshotTTL time.Duration // progress:/result: TTL, default 24h
}

func New(log *logger.Logger, rdb Redis, cfg Config) *Registry {
	if cfg.LivenessTTL <= 0 {
		cfg.LivenessTTL = 2 * time.Hour
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 24 * time.Hour
	}
	return &Registry{
		log:         log.With("component", "JobRegistry"),
		rdb:         rdb,
		liveness:    cfg.LivenessTTL,
		snapshotTTL: cfg.SnapshotTTL,
	}
}

// Reserve atomically test-and-sets the liveness marker for job_id. It returns
// ErrAlreadyActive if another pipeline already owns this ID.
func (r *Registry) Reserve(ctx context.Context, jobID string) error {
	ok, err := r.rdb.SetNX(ctx, activeKeyPrefix+jobID, time.Now().UTC().Format(time.RFC3339), r.liveness).Result()
	if err != nil {
		return fmt.Errorf("registry reserve: %w", err)
	}
	if !ok {
		return ErrAlreadyActive
	}
	return nil
}

// Release clears the liveness marker on terminal transition.
func (r *Registry) Release(ctx context.Context, jobID string) {
	if err := r.rdb.Del(ctx, activeKeyPrefix+jobID).Err(); err != nil {
		r.log.Warn("release liveness marker failed", "job_id", jobID, "error", err)
	}
}

// WriteProgress serializes and stores the snapshot, overwriting any prior
// value. Registry I/O failure here is logged and retried once; a persistent
// failure does not abort the pipeline, per spec: progress is advisory.
func (r *Registry) WriteProgress(ctx context.Context, snap jobdomain.JobProgress) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	key := progressKeyPrefix + snap.JobID
	err = r.rdb.Set(ctx, key, raw, r.snapshotTTL).Err()
	if err == nil {
		return nil
	}
	r.log.Warn("write progress failed, retrying once", "job_id", snap.JobID, "error", err)
	if err2 := r.rdb.Set(ctx, key, raw, r.snapshotTTL).Err(); err2 != nil {
		r.log.Warn("write progress retry failed, tolerating", "job_id", snap.JobID, "error", err2)
		return err2
	}
	return nil
}

// ReadProgress returns the last written snapshot, or ErrNotFound.
func (r *Registry) ReadProgress(ctx context.Context, jobID string) (*jobdomain.JobProgress, error) {
	raw, err := r.rdb.Get(ctx, progressKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read progress: %w", err)
	}
	var snap jobdomain.JobProgress
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	return &snap, nil
}

// WriteResult stores the result under result:{job_id}. Per spec, result
// write failure is fatal to the caller (the Pipeline Runner surfaces it as
// FAILED), so this method returns the raw error without retry.
func (r *Registry) WriteResult(ctx context.Context, res jobdomain.JobResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := r.rdb.Set(ctx, resultKeyPrefix+res.JobID, raw, r.snapshotTTL).Err(); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// ReadResult returns the persisted result, or ErrNotFound.
func (r *Registry) ReadResult(ctx context.Context, jobID string) (*jobdomain.JobResult, error) {
	raw, err := r.rdb.Get(ctx, resultKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read result: %w", err)
	}
	var res jobdomain.JobResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &res, nil
}

// ListActive returns the best-effort set of live job IDs, derived from
// liveness markers. Scanning KEYS is acceptable here: the active set is
// expected to be small relative to total keys and this is an operator-facing
// diagnostic path, not a hot path.
func (r *Registry) ListActive(ctx context.Context) ([]string, error) {
	keys, err := r.rdb.Keys(ctx, activeKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(activeKeyPrefix):])
	}
	return ids, nil
}
