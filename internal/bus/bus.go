// Package bus implements the Event Bus Publisher: fire-and-forget progress,
// result, and failure messages on three fixed Redis Pub/Sub channels.
// Publish calls are non-blocking for the caller beyond a short bounded
// flush; subscribers must tolerate reordering and treat result/failure as
// latching.
package bus

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// Config names the three fixed channels; all are configurable.
type Config struct {
	ProgressChannel string
	ResultChannel   string
	FailureChannel  string
}

func (c Config) withDefaults() Config {
	if c.ProgressChannel == "" {
		c.ProgressChannel = "progress-channel"
	}
	if c.ResultChannel == "" {
		c.ResultChannel = "result-channel"
	}
	if c.FailureChannel == "" {
		c.FailureChannel = "failure-channel"
	}
	return c
}

// Publisher is the narrow Redis dependency this package needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

type Bus struct {
	log *logger.Logger
	rdb Publisher
	cfg Config
}

func New(log *logger.Logger, rdb Publisher, cfg Config) *Bus {
	return &Bus{log: log.With("component", "EventBus"), rdb: rdb, cfg: cfg.withDefaults()}
}

// PublishProgress publishes a progress message. Stage is optional (empty
// string omitted from the payload).
func (b *Bus) PublishProgress(ctx context.Context, jobID string, globalProgress float64, stage jobdomain.StageID) {
	msg := jobdomain.ProgressMessage{
		JobID:     jobID,
		Progress:  globalProgress,
		Stage:     string(stage),
		Timestamp: time.Now().UTC(),
	}
	b.publish(ctx, b.cfg.ProgressChannel, msg, "progress")
}

// PublishResult publishes the result message. Per invariant 3, callers must
// only invoke this once the job has reached COMPLETED with a non-empty URL.
func (b *Bus) PublishResult(ctx context.Context, jobID, url string) {
	msg := jobdomain.ResultMessage{JobID: jobID, URL: url, Timestamp: time.Now().UTC()}
	b.publish(ctx, b.cfg.ResultChannel, msg, "result")
}

// PublishFailure publishes the failure message. Per invariant 4, callers
// must only invoke this once the job has transitioned to FAILED.
func (b *Bus) PublishFailure(ctx context.Context, jobID, errMsg string) {
	msg := jobdomain.FailureMessage{JobID: jobID, Error: errMsg}
	b.publish(ctx, b.cfg.FailureChannel, msg, "failure")
}

func (b *Bus) publish(ctx context.Context, channel string, msg any, kind string) {
	raw, err := json.Marshal(msg)
	if err != nil {
		b.log.Warn("bus marshal failed", "kind", kind, "error", err)
		return
	}
	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(flushCtx, channel, raw).Err(); err != nil {
		b.log.Warn("bus publish failed", "kind", kind, "channel", channel, "error", err)
	}
}
