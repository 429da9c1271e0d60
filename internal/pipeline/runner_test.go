package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// fakeRegistrar/fakePublisher stand in for the registry.Registry/bus.Bus
// dependencies JobContext needs, recording every call in-process so the
// Runner can be exercised end-to-end without Redis.
type fakeRegistrar struct {
	mu        sync.Mutex
	snapshots []jobdomain.JobProgress
	results   []jobdomain.JobResult
	released  []string
}

func (f *fakeRegistrar) WriteProgress(ctx context.Context, snap jobdomain.JobProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeRegistrar) WriteResult(ctx context.Context, res jobdomain.JobResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	return nil
}

func (f *fakeRegistrar) Release(ctx context.Context, jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, jobID)
}

func (f *fakeRegistrar) lastSnapshot() jobdomain.JobProgress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[len(f.snapshots)-1]
}

type fakePublisher struct {
	mu        sync.Mutex
	progress  int
	results   int
	failures  int
	lastError string
}

func (f *fakePublisher) PublishProgress(ctx context.Context, jobID string, globalProgress float64, stage jobdomain.StageID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress++
}

func (f *fakePublisher) PublishResult(ctx context.Context, jobID, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results++
}

func (f *fakePublisher) PublishFailure(ctx context.Context, jobID, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	f.lastError = errMsg
}

// stubWorker is a minimal Worker whose behavior is supplied per test.
type stubWorker struct {
	stage jobdomain.StageID
	fn    func(ctx context.Context, st *State, report func(float64)) error
}

func (w stubWorker) Stage() jobdomain.StageID { return w.stage }
func (w stubWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	return w.fn(ctx, st, report)
}

func testRunnerEnv(t *testing.T, workers ...Worker) (*Runner, *fakeRegistrar, *fakePublisher, *logger.Logger) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	reg := NewRegistry()
	for _, w := range workers {
		if err := reg.Register(w); err != nil {
			t.Fatalf("register worker: %v", err)
		}
	}
	return NewRunner(log, reg), &fakeRegistrar{}, &fakePublisher{}, log
}

func allStageWorkers(behavior func(stage jobdomain.StageID, st *State, report func(float64)) error) []Worker {
	var out []Worker
	for _, s := range jobdomain.Stages {
		stage := s
		out = append(out, stubWorker{stage: stage, fn: func(ctx context.Context, st *State, report func(float64)) error {
			return behavior(stage, st, report)
		}})
	}
	return out
}

// TestRunner_HappyPathReachesCompletedWithFullProgress covers the
// straight-through success scenario: every stage reports 0→100 and the job
// reaches COMPLETED with a 100% final snapshot and a persisted result.
func TestRunner_HappyPathReachesCompletedWithFullProgress(t *testing.T) {
	workers := allStageWorkers(func(stage jobdomain.StageID, st *State, report func(float64)) error {
		report(50)
		report(100)
		return nil
	})
	runner, reg, pub, log := testRunnerEnv(t, workers...)

	jc := NewJobContext(context.Background(), "job-1", "book.pdf", nil, log, reg, pub, nil, jobdomain.DefaultStageWeights)
	st := &State{JobID: "job-1", Filename: "book.pdf"}

	runner.Run(jc, st)

	if jc.Status() != jobdomain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %v", jc.Status())
	}
	last := reg.lastSnapshot()
	if last.GlobalProgress != 100 {
		t.Fatalf("expected final progress 100, got %v", last.GlobalProgress)
	}
	if len(reg.results) != 1 {
		t.Fatalf("expected exactly 1 persisted result, got %d", len(reg.results))
	}
	if pub.results != 1 {
		t.Fatalf("expected exactly 1 result publish, got %d", pub.results)
	}
	if len(reg.released) != 1 {
		t.Fatalf("expected the job to release its liveness slot exactly once, got %d", len(reg.released))
	}
}

// TestRunner_StageFailureStopsAtThatStageAndFails covers the failure
// scenario: a stage partway through the fixed order returns an error and no
// later stage runs.
func TestRunner_StageFailureStopsAtThatStageAndFails(t *testing.T) {
	var ranStages []jobdomain.StageID
	var mu sync.Mutex
	workers := allStageWorkers(func(stage jobdomain.StageID, st *State, report func(float64)) error {
		mu.Lock()
		ranStages = append(ranStages, stage)
		mu.Unlock()
		if stage == jobdomain.StageTransformation {
			return errors.New("transform blew up")
		}
		report(100)
		return nil
	})
	runner, reg, pub, log := testRunnerEnv(t, workers...)

	jc := NewJobContext(context.Background(), "job-1", "book.pdf", nil, log, reg, pub, nil, jobdomain.DefaultStageWeights)
	st := &State{JobID: "job-1", Filename: "book.pdf"}

	runner.Run(jc, st)

	if jc.Status() != jobdomain.StatusFailed {
		t.Fatalf("expected FAILED, got %v", jc.Status())
	}
	if pub.failures != 1 {
		t.Fatalf("expected exactly 1 failure publish, got %d", pub.failures)
	}
	if pub.lastError == "" {
		t.Fatalf("expected the failure message to carry the stage error")
	}
	for _, s := range ranStages {
		if s == jobdomain.StageImageProcessing || s == jobdomain.StageEnrichment {
			t.Fatalf("stage %s ran after the failing stage, expected the runner to stop", s)
		}
	}
}

// TestRunner_CancelledBeforeStageStopsCleanly covers the cancellation
// scenario: cancelling the job context before a stage boundary transitions
// the job to CANCELLED without emitting a result or failure message.
func TestRunner_CancelledBeforeStageStopsCleanly(t *testing.T) {
	var seenSecondStage bool
	workers := allStageWorkers(func(stage jobdomain.StageID, st *State, report func(float64)) error {
		if stage == jobdomain.StagePDFPreprocessing {
			seenSecondStage = true
		}
		report(100)
		return nil
	})
	runner, reg, pub, log := testRunnerEnv(t, workers...)

	parent, cancel := context.WithCancel(context.Background())
	jc := NewJobContext(parent, "job-1", "book.pdf", nil, log, reg, pub, nil, jobdomain.DefaultStageWeights)
	cancel()
	st := &State{JobID: "job-1", Filename: "book.pdf"}

	runner.Run(jc, st)

	if jc.Status() != jobdomain.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %v", jc.Status())
	}
	if seenSecondStage {
		t.Fatalf("expected no stage to run once the context was already cancelled")
	}
	if pub.results != 0 || pub.failures != 0 {
		t.Fatalf("expected no result/failure publish on cancellation, got results=%d failures=%d", pub.results, pub.failures)
	}
}

// TestRunner_MissingWorkerFailsTheJob covers the wiring-defect scenario: a
// stage in jobdomain.Stages with no registered Worker fails the job rather
// than panicking the whole process.
func TestRunner_MissingWorkerFailsTheJob(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	reg := NewRegistry() // deliberately empty
	runner := NewRunner(log, reg)
	jc := NewJobContext(context.Background(), "job-1", "book.pdf", nil, log, &fakeRegistrar{}, &fakePublisher{}, nil, jobdomain.DefaultStageWeights)
	st := &State{JobID: "job-1", Filename: "book.pdf"}

	runner.Run(jc, st)

	if jc.Status() != jobdomain.StatusFailed {
		t.Fatalf("expected FAILED when no worker is registered, got %v", jc.Status())
	}
}

// TestRunner_StagePanicIsRecoveredAsFailure covers defensive panic recovery:
// a worker that panics must fail the job rather than crash the test binary.
func TestRunner_StagePanicIsRecoveredAsFailure(t *testing.T) {
	workers := []Worker{stubWorker{stage: jobdomain.StageInitialization, fn: func(ctx context.Context, st *State, report func(float64)) error {
		panic("boom")
	}}}
	for _, s := range jobdomain.Stages[1:] {
		stage := s
		workers = append(workers, stubWorker{stage: stage, fn: func(ctx context.Context, st *State, report func(float64)) error {
			report(100)
			return nil
		}})
	}
	runner, reg, pub, log := testRunnerEnv(t, workers...)
	jc := NewJobContext(context.Background(), "job-1", "book.pdf", nil, log, reg, pub, nil, jobdomain.DefaultStageWeights)
	st := &State{JobID: "job-1", Filename: "book.pdf"}

	runner.Run(jc, st)

	if jc.Status() != jobdomain.StatusFailed {
		t.Fatalf("expected FAILED after a stage panic, got %v", jc.Status())
	}
}

// TestRunner_CancellationDuringLongRunningStageAbandonsPromptly covers
// cancellation observed mid-stage rather than only at a stage boundary.
func TestRunner_CancellationDuringLongRunningStageAbandonsPromptly(t *testing.T) {
	stageStarted := make(chan struct{})
	workers := []Worker{stubWorker{stage: jobdomain.StageInitialization, fn: func(ctx context.Context, st *State, report func(float64)) error {
		close(stageStarted)
		<-ctx.Done()
		return ctx.Err()
	}}}
	for _, s := range jobdomain.Stages[1:] {
		stage := s
		workers = append(workers, stubWorker{stage: stage, fn: func(ctx context.Context, st *State, report func(float64)) error {
			report(100)
			return nil
		}})
	}
	runner, reg, pub, log := testRunnerEnv(t, workers...)

	parent, cancel := context.WithCancel(context.Background())
	jc := NewJobContext(parent, "job-1", "book.pdf", nil, log, reg, pub, nil, jobdomain.DefaultStageWeights)
	st := &State{JobID: "job-1", Filename: "book.pdf"}

	done := make(chan struct{})
	go func() {
		runner.Run(jc, st)
		close(done)
	}()

	<-stageStarted
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected cancellation to abandon the in-flight stage promptly")
	}
	if jc.Status() != jobdomain.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %v", jc.Status())
	}
}
