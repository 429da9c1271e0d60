package pipeline

import (
	"context"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// InitializationWorker implements INITIALIZATION: a thin confirmation step
// that the admitted job carries the minimum usable input. The Admission
// Controller already validates the request synchronously (§4.H); this stage
// exists so the 0-5% progress band and a first heartbeat snapshot are
// visible to callers even before PDF_PREPROCESSING starts its own,
// potentially slow, work.
type InitializationWorker struct {
	log *logger.Logger
}

func NewInitializationWorker(log *logger.Logger) *InitializationWorker {
	return &InitializationWorker{log: log.With("component", "Initialization")}
}

func (w *InitializationWorker) Stage() jobdomain.StageID { return jobdomain.StageInitialization }

func (w *InitializationWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	report(40)
	if len(st.InputBytes) == 0 {
		return NewStageError(w.Stage(), KindInput, "no input bytes", nil)
	}
	if st.JobID == "" {
		return NewStageError(w.Stage(), KindInput, "missing job id", nil)
	}
	report(100)
	return nil
}
