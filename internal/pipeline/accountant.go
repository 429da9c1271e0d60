package pipeline

import (
	"sync"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
)

// hysteresis is the minimum forward movement in global_progress required
// before a new snapshot is written/published.
const hysteresis = 0.5

// Accountant maps per-stage local progress (0..100) onto the job's global
// progress band, clamping so global_progress never regresses. Adapted from
// the orchestrator engine's setProgress clamp, generalized from a single
// running total into a {start[stage], end[stage]} banded mapping.
type Accountant struct {
	weights map[jobdomain.StageID]jobdomain.StageWeight

	mu          sync.Mutex
	lastGlobal  float64
	perStage    map[jobdomain.StageID]float64
}

func NewAccountant(weights map[jobdomain.StageID]jobdomain.StageWeight) *Accountant {
	if weights == nil {
		weights = jobdomain.DefaultStageWeights
	}
	return &Accountant{
		weights:  weights,
		perStage: make(map[jobdomain.StageID]float64, len(weights)),
	}
}

// Report records local progress for stage and returns the mapped global
// progress plus whether it advanced far enough past the hysteresis band to
// warrant a snapshot write/publish.
func (a *Accountant) Report(stage jobdomain.StageID, local float64) (float64, bool) {
	if local < 0 {
		local = 0
	}
	if local > 100 {
		local = 100
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.perStage[stage] = local

	w, ok := a.weights[stage]
	if !ok {
		// Unknown stage: don't move global progress, but still record local.
		return a.lastGlobal, false
	}
	global := w.Start + (w.End-w.Start)*local/100
	if global < a.lastGlobal {
		global = a.lastGlobal
	}
	advanced := global > a.lastGlobal+hysteresis || (local >= 100 && global > a.lastGlobal)
	if advanced {
		a.lastGlobal = global
	}
	return global, advanced
}

// LastGlobal returns the global progress of the last report that advanced
// (was published) without recording a new report; used when writing
// terminal (failed/cancelled) snapshots.
func (a *Accountant) LastGlobal() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastGlobal
}

// Snapshot returns a copy of the per-stage local-progress map.
func (a *Accountant) Snapshot() map[jobdomain.StageID]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[jobdomain.StageID]float64, len(a.perStage))
	for k, v := range a.perStage {
		out[k] = v
	}
	return out
}

// ValidateStageWeights checks that a weight map's bands are contiguous and
// partition [0,100], per jobdomain.DefaultStageWeights' documented
// invariant. Grounded on the orchestrator engine's validateStages contiguity
// check, generalized from StartPct/EndPct per-stage fields to a map.
func ValidateStageWeights(order []jobdomain.StageID, weights map[jobdomain.StageID]jobdomain.StageWeight) error {
	lastEnd := 0.0
	for i, id := range order {
		w, ok := weights[id]
		if !ok {
			return &weightError{stage: id, reason: "missing weight"}
		}
		if w.Start < 0 || w.End > 100 || w.End < w.Start {
			return &weightError{stage: id, reason: "band out of [0,100] or inverted"}
		}
		if i == 0 && w.Start != 0 {
			return &weightError{stage: id, reason: "first stage must start at 0"}
		}
		if w.Start != lastEnd {
			return &weightError{stage: id, reason: "band is not contiguous with previous stage"}
		}
		lastEnd = w.End
	}
	if lastEnd != 100 {
		return &weightError{reason: "final stage must end at 100"}
	}
	return nil
}

type weightError struct {
	stage  jobdomain.StageID
	reason string
}

func (e *weightError) Error() string {
	if e.stage == "" {
		return "stage weights: " + e.reason
	}
	return "stage weights: " + string(e.stage) + ": " + e.reason
}
