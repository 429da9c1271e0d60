package registry

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// fakeRedis is an in-process stand-in for the narrow Redis interface this
// package depends on, so these tests never need a live server.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewBoolCmd(ctx)
	if _, exists := f.data[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	f.data[key] = []byte(toBytes(value))
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = []byte(toBytes(value))
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewStringCmd(ctx)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) Keys(ctx context.Context, pattern string) *goredis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	cmd := goredis.NewStringSliceCmd(ctx)
	cmd.SetVal(out)
	return cmd
}

func toBytes(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func testRegistry(t *testing.T) (*Registry, *fakeRedis) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	fr := newFakeRedis()
	return New(log, fr, Config{}), fr
}

// TestReserve_DuplicateAdmissionIsIdempotent covers the duplicate-admission
// scenario: a second Reserve for the same job_id while the first is still
// live must fail with ErrAlreadyActive rather than silently spawning a
// second pipeline task for the same job.
func TestReserve_DuplicateAdmissionIsIdempotent(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	if err := reg.Reserve(ctx, "job-1"); err != nil {
		t.Fatalf("first reservation should succeed, got %v", err)
	}
	if err := reg.Reserve(ctx, "job-1"); err != ErrAlreadyActive {
		t.Fatalf("expected ErrAlreadyActive on duplicate admission, got %v", err)
	}
}

func TestReserve_ReleaseThenReserveAgainSucceeds(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	if err := reg.Reserve(ctx, "job-1"); err != nil {
		t.Fatalf("first reservation should succeed, got %v", err)
	}
	reg.Release(ctx, "job-1")
	if err := reg.Reserve(ctx, "job-1"); err != nil {
		t.Fatalf("expected reservation to succeed again after release, got %v", err)
	}
}

func TestReserve_DistinctJobIDsDoNotCollide(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	if err := reg.Reserve(ctx, "job-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Reserve(ctx, "job-2"); err != nil {
		t.Fatalf("distinct job_id should not collide, got %v", err)
	}
}

func TestWriteReadProgress_RoundTrips(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	snap := jobdomain.JobProgress{JobID: "job-1", Status: jobdomain.StatusProcessing, GlobalProgress: 42.5}
	if err := reg.WriteProgress(ctx, snap); err != nil {
		t.Fatalf("write progress: %v", err)
	}
	got, err := reg.ReadProgress(ctx, "job-1")
	if err != nil {
		t.Fatalf("read progress: %v", err)
	}
	if got.GlobalProgress != 42.5 {
		t.Fatalf("progress = %v, want 42.5", got.GlobalProgress)
	}
}

func TestReadProgress_UnknownJobReturnsNotFound(t *testing.T) {
	reg, _ := testRegistry(t)
	_, err := reg.ReadProgress(context.Background(), "does-not-exist")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActive_ReflectsReservationsAndReleases(t *testing.T) {
	reg, _ := testRegistry(t)
	ctx := context.Background()

	_ = reg.Reserve(ctx, "a")
	_ = reg.Reserve(ctx, "b")
	ids, err := reg.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 active jobs, got %d (%v)", len(ids), ids)
	}

	reg.Release(ctx, "a")
	ids, err = reg.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected only job b active after release, got %v", ids)
	}
}
