package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// fakePublisher records every published channel/payload pair in-process so
// tests never need a live Redis server, mirroring Publisher's narrow surface.
type fakePublisher struct {
	mu        sync.Mutex
	published []published
	failOn    string
}

type published struct {
	channel string
	raw     []byte
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewIntCmd(ctx)
	if f.failOn == channel {
		cmd.SetErr(context.DeadlineExceeded)
		return cmd
	}
	raw, _ := message.([]byte)
	f.published = append(f.published, published{channel: channel, raw: raw})
	cmd.SetVal(1)
	return cmd
}

func testBus(t *testing.T) (*Bus, *fakePublisher) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	fp := &fakePublisher{}
	return New(log, fp, Config{}), fp
}

func TestPublishProgress_PublishesOnProgressChannel(t *testing.T) {
	b, fp := testBus(t)
	b.PublishProgress(context.Background(), "job-1", 42, jobdomain.StageTransformation)

	if len(fp.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(fp.published))
	}
	if fp.published[0].channel != "progress-channel" {
		t.Fatalf("channel = %q, want progress-channel", fp.published[0].channel)
	}
	var msg jobdomain.ProgressMessage
	if err := json.Unmarshal(fp.published[0].raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.JobID != "job-1" || msg.Progress != 42 || msg.Stage != string(jobdomain.StageTransformation) {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestPublishResult_PublishesOnResultChannel(t *testing.T) {
	b, fp := testBus(t)
	b.PublishResult(context.Background(), "job-1", "https://example.test/doc.json")

	if len(fp.published) != 1 || fp.published[0].channel != "result-channel" {
		t.Fatalf("expected 1 publish on result-channel, got %+v", fp.published)
	}
	var msg jobdomain.ResultMessage
	if err := json.Unmarshal(fp.published[0].raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.URL != "https://example.test/doc.json" {
		t.Fatalf("unexpected result message: %+v", msg)
	}
}

func TestPublishFailure_PublishesOnFailureChannel(t *testing.T) {
	b, fp := testBus(t)
	b.PublishFailure(context.Background(), "job-1", "boom")

	if len(fp.published) != 1 || fp.published[0].channel != "failure-channel" {
		t.Fatalf("expected 1 publish on failure-channel, got %+v", fp.published)
	}
	var msg jobdomain.FailureMessage
	if err := json.Unmarshal(fp.published[0].raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Error != "boom" {
		t.Fatalf("unexpected failure message: %+v", msg)
	}
}

func TestPublish_ToleratesUnderlyingPublishFailure(t *testing.T) {
	b, fp := testBus(t)
	fp.failOn = "progress-channel"

	// Publish* methods must not panic or block the caller when the
	// underlying client errors; the failure is logged and swallowed.
	b.PublishProgress(context.Background(), "job-1", 10, jobdomain.StageInitialization)
	if len(fp.published) != 0 {
		t.Fatalf("expected no successful publish recorded, got %+v", fp.published)
	}
}

func TestConfig_WithDefaultsFillsChannelNames(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.ProgressChannel == "" || cfg.ResultChannel == "" || cfg.FailureChannel == "" {
		t.Fatalf("expected all channel names defaulted, got %+v", cfg)
	}
}
