package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/bus"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/notifier"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/registry"
)

// Registrar is the narrow registry dependency a JobContext needs: writing
// snapshots and releasing the liveness slot. Kept narrow so tests can
// substitute a fake without a live Redis server.
type Registrar interface {
	WriteProgress(ctx context.Context, snap jobdomain.JobProgress) error
	WriteResult(ctx context.Context, res jobdomain.JobResult) error
	Release(ctx context.Context, jobID string)
}

// Publisher is the narrow bus dependency a JobContext needs.
type Publisher interface {
	PublishProgress(ctx context.Context, jobID string, globalProgress float64, stage jobdomain.StageID)
	PublishResult(ctx context.Context, jobID, url string)
	PublishFailure(ctx context.Context, jobID, errMsg string)
}

var (
	_ Registrar = (*registry.Registry)(nil)
	_ Publisher = (*bus.Bus)(nil)
)

// JobContext is the execution contract between the Pipeline Runner and every
// stage worker. It is owned by exactly one pipeline task; stage workers only
// see it through the Stage Worker Contract's run(ctx, input, report) shape,
// never directly, so this type centralizes every sanctioned lifecycle
// transition the way runtime.Context does for the job-handler dispatch it
// was adapted from.
type JobContext struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	JobID    string
	Filename string
	Payload  map[string]any

	log       *logger.Logger
	registry  Registrar
	publisher Publisher
	notifier  *notifier.Notifier

	accountant *Accountant
	startedAt  time.Time

	mu     sync.Mutex
	status jobdomain.JobStatus
}

// NewJobContext constructs the execution handle for one admitted job. The
// supplied parent context is wrapped in a cancel scope so Cancel() (invoked
// by the Query API's cancel(job_id)) has somewhere to signal.
func NewJobContext(parent context.Context, jobID, filename string, payload map[string]any, log *logger.Logger, reg Registrar, pub Publisher, notif *notifier.Notifier, weights map[jobdomain.StageID]jobdomain.StageWeight) *JobContext {
	ctx, cancel := context.WithCancel(parent)
	return &JobContext{
		Ctx:        ctx,
		Cancel:     cancel,
		JobID:      jobID,
		Filename:   filename,
		Payload:    payload,
		log:        log.With("component", "JobContext", "job_id", jobID),
		registry:   reg,
		publisher:  pub,
		notifier:   notif,
		accountant: NewAccountant(weights),
		startedAt:  time.Now(),
		status:     jobdomain.StatusPending,
	}
}

// Report implements the Stage Worker Contract's report(progress∈[0,100])
// closure for a single stage. It is what stage workers are actually handed;
// they never see the JobContext itself.
func (jc *JobContext) Report(stage jobdomain.StageID, local float64) {
	global, changed := jc.accountant.Report(stage, local)
	if !changed {
		return
	}
	jc.mu.Lock()
	jc.status = jobdomain.StatusProcessing
	jc.mu.Unlock()

	snap := jobdomain.JobProgress{
		JobID:               jc.JobID,
		Status:              jobdomain.StatusProcessing,
		CurrentStage:        stage,
		GlobalProgress:      global,
		PerStageProgress:    jc.accountant.Snapshot(),
		StartedAt:           jc.startedAt,
		UpdatedAt:           time.Now(),
		EstimatedCompletion: estimateCompletion(jc.startedAt, global),
	}
	if err := jc.registry.WriteProgress(jc.Ctx, snap); err != nil {
		jc.log.Warn("progress write failed, tolerating", "stage", stage, "error", err)
	}
	jc.publisher.PublishProgress(jc.Ctx, jc.JobID, global, stage)
}

// Fail transitions the job to FAILED: writes the terminal snapshot carrying
// the error, emits a failure bus message, and releases the Registry slot.
// Per invariant 4, this is the only path that emits `failure`.
func (jc *JobContext) Fail(stage jobdomain.StageID, err error) {
	jc.mu.Lock()
	if jc.status.Terminal() {
		jc.mu.Unlock()
		return
	}
	jc.status = jobdomain.StatusFailed
	jc.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	snap := jobdomain.JobProgress{
		JobID:          jc.JobID,
		Status:         jobdomain.StatusFailed,
		CurrentStage:   stage,
		GlobalProgress: jc.accountant.LastGlobal(),
		UpdatedAt:      time.Now(),
		StartedAt:      jc.startedAt,
		Error:          msg,
	}
	// Failure terminal writes use context.Background: the job's own ctx may
	// already be cancelled by the failure that triggered this call.
	bg := context.Background()
	if werr := jc.registry.WriteProgress(bg, snap); werr != nil {
		jc.log.Warn("terminal failure snapshot write failed", "error", werr)
	}
	jc.publisher.PublishFailure(bg, jc.JobID, msg)
	jc.registry.Release(bg, jc.JobID)
	jc.log.Error("job failed", "stage", stage, "error", msg)
}

// MarkCancelled transitions the job to CANCELLED. Per invariant 4, no result
// or failure message is emitted; the progress snapshot simply reflects the
// cancellation. The owning pipeline calls it once it observes the Cancel
// signal at a suspension point via jc.Ctx.Err().
func (jc *JobContext) MarkCancelled(stage jobdomain.StageID) {
	jc.mu.Lock()
	if jc.status.Terminal() {
		jc.mu.Unlock()
		return
	}
	jc.status = jobdomain.StatusCancelled
	jc.mu.Unlock()

	bg := context.Background()
	snap := jobdomain.JobProgress{
		JobID:          jc.JobID,
		Status:         jobdomain.StatusCancelled,
		CurrentStage:   stage,
		GlobalProgress: jc.accountant.LastGlobal(),
		UpdatedAt:      time.Now(),
		StartedAt:      jc.startedAt,
	}
	if err := jc.registry.WriteProgress(bg, snap); err != nil {
		jc.log.Warn("terminal cancellation snapshot write failed", "error", err)
	}
	jc.registry.Release(bg, jc.JobID)
	jc.log.Info("job cancelled", "stage", stage)
}

// Succeed transitions the job to COMPLETED: writes the result (fatal on
// failure, per §4.A), emits the result message, invokes the document-complete
// notifier, and releases the Registry slot.
func (jc *JobContext) Succeed(artifactURL string, metadata map[string]any) {
	jc.mu.Lock()
	if jc.status.Terminal() {
		jc.mu.Unlock()
		return
	}
	jc.status = jobdomain.StatusCompleted
	jc.mu.Unlock()

	now := time.Now()
	res := jobdomain.JobResult{
		JobID:           jc.JobID,
		Filename:        jc.Filename,
		CreatedAt:       jc.startedAt,
		CompletedAt:     now,
		ProcessingTimeS: now.Sub(jc.startedAt).Seconds(),
		ArtifactURL:     artifactURL,
		Metadata:        metadata,
	}
	bg := context.Background()
	if err := jc.registry.WriteResult(bg, res); err != nil {
		// Result persistence failure is fatal per §4.A; reverse course to FAILED.
		// The status is reopened first because Fail is a no-op on a terminal
		// status.
		jc.mu.Lock()
		jc.status = jobdomain.StatusProcessing
		jc.mu.Unlock()
		jc.Fail("STORAGE", fmt.Errorf("result persistence failed: %w", err))
		return
	}

	snap := jobdomain.JobProgress{
		JobID:          jc.JobID,
		Status:         jobdomain.StatusCompleted,
		CurrentStage:   jobdomain.StageNotification,
		GlobalProgress: 100,
		UpdatedAt:      now,
		StartedAt:      jc.startedAt,
	}
	if err := jc.registry.WriteProgress(bg, snap); err != nil {
		jc.log.Warn("terminal success snapshot write failed", "error", err)
	}
	jc.publisher.PublishResult(bg, jc.JobID, artifactURL)
	if jc.notifier != nil {
		if err := jc.notifier.NotifyDocumentComplete(bg, jc.JobID, jc.Filename, res); err != nil {
			jc.log.Warn("document-complete callback dead-lettered", "error", err)
		}
	}
	jc.registry.Release(bg, jc.JobID)
	jc.log.Info("job completed", "artifact_url", artifactURL, "processing_time_s", res.ProcessingTimeS)
}

// SucceedThumbnail is Succeed's counterpart for the thumbnail flow: same
// terminal snapshot/result/release sequence, but it calls the distinct
// thumbnail callback instead of NotifyDocumentComplete, since the two
// callbacks differ in destination and payload shape.
func (jc *JobContext) SucceedThumbnail(thumbnailURL string, width, height int) {
	jc.mu.Lock()
	if jc.status.Terminal() {
		jc.mu.Unlock()
		return
	}
	jc.status = jobdomain.StatusCompleted
	jc.mu.Unlock()

	now := time.Now()
	res := jobdomain.JobResult{
		JobID:           jc.JobID,
		Filename:        jc.Filename,
		CreatedAt:       jc.startedAt,
		CompletedAt:     now,
		ProcessingTimeS: now.Sub(jc.startedAt).Seconds(),
		ArtifactURL:     thumbnailURL,
		Metadata:        map[string]any{"type": "thumbnail", "width": width, "height": height},
	}
	bg := context.Background()
	if err := jc.registry.WriteResult(bg, res); err != nil {
		jc.mu.Lock()
		jc.status = jobdomain.StatusProcessing
		jc.mu.Unlock()
		jc.Fail(jobdomain.StageImageProcessing, fmt.Errorf("result persistence failed: %w", err))
		return
	}

	snap := jobdomain.JobProgress{
		JobID:          jc.JobID,
		Status:         jobdomain.StatusCompleted,
		CurrentStage:   jobdomain.StageImageProcessing,
		GlobalProgress: 100,
		UpdatedAt:      now,
		StartedAt:      jc.startedAt,
	}
	if err := jc.registry.WriteProgress(bg, snap); err != nil {
		jc.log.Warn("terminal success snapshot write failed", "error", err)
	}
	jc.publisher.PublishResult(bg, jc.JobID, thumbnailURL)
	if jc.notifier != nil {
		if err := jc.notifier.NotifyThumbnail(bg, jc.JobID, jc.Filename, thumbnailURL, width, height); err != nil {
			jc.log.Warn("thumbnail callback dead-lettered", "error", err)
		}
	}
	jc.registry.Release(bg, jc.JobID)
	jc.log.Info("thumbnail job completed", "thumbnail_url", thumbnailURL, "processing_time_s", res.ProcessingTimeS)
}

// estimateCompletion extrapolates a completion time from elapsed runtime and
// current global progress, assuming the remaining work proceeds at the same
// average rate as the work done so far. Returns nil until progress is far
// enough along (>=1%) that the extrapolation isn't dominated by startup
// noise.
func estimateCompletion(startedAt time.Time, global float64) *time.Time {
	if global < 1 || global >= 100 {
		return nil
	}
	elapsed := time.Since(startedAt)
	total := time.Duration(float64(elapsed) * 100 / global)
	eta := startedAt.Add(total)
	return &eta
}

// Status returns the job's current lifecycle status.
func (jc *JobContext) Status() jobdomain.JobStatus {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return jc.status
}
