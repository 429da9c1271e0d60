package pipeline

import (
	"context"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// AssemblyWorker implements FINAL_ASSEMBLY: composes the output document
// from the per-chunk block arrays produced by TRANSFORMATION/IMAGE_PROCESSING
// /ENRICHMENT, with page ordering following chunk ordering exactly.
type AssemblyWorker struct {
	log *logger.Logger
}

func NewAssemblyWorker(log *logger.Logger) *AssemblyWorker {
	return &AssemblyWorker{log: log.With("component", "FinalAssembly")}
}

func (w *AssemblyWorker) Stage() jobdomain.StageID { return jobdomain.StageFinalAssembly }

func (w *AssemblyWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	if len(st.Chunks) != len(st.PageBlocks) {
		return NewStageError(w.Stage(), KindPermanent, "chunk/block count mismatch", nil)
	}

	pages := make([]jobdomain.Page, 0, len(st.Chunks))
	for i, chunk := range st.Chunks {
		pages = append(pages, jobdomain.Page{
			PageNumber:      chunk.PageNumber,
			OriginalContent: chunk.OriginalContent,
			Blocks:          st.PageBlocks[i],
		})
	}
	report(70)

	now := time.Now()
	metadata := map[string]any{}
	if len(st.PartialFailures) > 0 {
		metadata["partial_failures"] = st.PartialFailures
	}
	if st.TextbookID != "" {
		metadata["textbook_id"] = st.TextbookID
	}

	if len(pages) == 0 {
		return NewStageError(w.Stage(), KindPermanent, "no pages assembled", nil)
	}

	st.Document = &jobdomain.Document{
		JobID:           st.JobID,
		Filename:        st.Filename,
		Status:          jobdomain.StatusCompleted, // the artifact always records the completed shape, per §4.D
		CreatedAt:       st.StartedAt,
		CompletedAt:     now,
		ProcessingTimeS: now.Sub(st.StartedAt).Seconds(),
		Metadata:        metadata,
		Pages:           pages,
	}
	report(100)
	return nil
}
