package pipeline

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// Runner composes the eight named stages linearly, passing State from one
// stage to the next, and drives the JobContext's terminal transitions.
// Adapted from the orchestrator engine's Run loop: this repo's stages never
// suspend across process restarts (no ModeChild/child-job polling — every
// admitted job is one in-process goroutine for its whole lifetime, per
// so the state-machine collapses to preflight, iterate, succeed.
type Runner struct {
	log      *logger.Logger
	registry *Registry
	order    []jobdomain.StageID
}

func NewRunner(log *logger.Logger, registry *Registry) *Runner {
	return &Runner{
		log:      log.With("component", "PipelineRunner"),
		registry: registry,
		order:    jobdomain.Stages,
	}
}

// Run executes every stage in order against st, driving jc's lifecycle.
// It always returns after reaching a terminal transition (Fail, Succeed, or
// MarkCancelled was called on jc); callers run this in its own goroutine and
// do not need to inspect a return value for terminal-state purposes.
func (r *Runner) Run(jc *JobContext, st *State) {
	for _, stageID := range r.order {
		if err := jc.Ctx.Err(); err != nil {
			jc.MarkCancelled(stageID)
			return
		}

		worker, ok := r.registry.Get(stageID)
		if !ok {
			jc.Fail(stageID, fmt.Errorf("no worker registered for stage %q", stageID))
			return
		}

		report := func(local float64) { jc.Report(stageID, local) }
		report(0)

		if err := r.runStage(jc.Ctx, worker, st, report); err != nil {
			if err == context.Canceled || jc.Ctx.Err() == context.Canceled {
				jc.MarkCancelled(stageID)
				return
			}
			jc.Fail(stageID, err)
			return
		}

		report(100)
	}

	jc.Succeed(st.ArtifactURL, r.finalMetadata(st))
}

// runStage runs a single worker, racing its completion against context
// cancellation so a cancelled job abandons in-flight stage work promptly,
// per the suspension-point contract.
func (r *Runner) runStage(ctx context.Context, w Worker, st *State, report func(float64)) error {
	type out struct{ err error }
	ch := make(chan out, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- out{err: fmt.Errorf("stage %s panicked: %v", w.Stage(), rec)}
			}
		}()
		ch <- out{err: w.Run(ctx, st, report)}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case o := <-ch:
		return o.err
	}
}

func (r *Runner) finalMetadata(st *State) map[string]any {
	md := map[string]any{}
	if len(st.PartialFailures) > 0 {
		md["partial_failures"] = st.PartialFailures
	}
	if st.TextbookID != "" {
		md["textbook_id"] = st.TextbookID
	}
	return md
}
