package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/storage"
)

// StorageWorker implements STORAGE: uploads the assembled document as a
// single JSON blob under a deterministic date-partitioned key. Any error
// here is a StorageError, which is always fatal.
type StorageWorker struct {
	log    *logger.Logger
	store  storage.Client
	prefix string
}

func NewStorageWorker(log *logger.Logger, store storage.Client, prefix string) *StorageWorker {
	if prefix == "" {
		prefix = "documents"
	}
	return &StorageWorker{log: log.With("component", "Storage"), store: store, prefix: prefix}
}

func (w *StorageWorker) Stage() jobdomain.StageID { return jobdomain.StageStorage }

func (w *StorageWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	if st.Document == nil {
		return NewStageError(w.Stage(), KindStorage, "no assembled document to store", nil)
	}

	raw, err := json.Marshal(st.Document)
	if err != nil {
		return NewStageError(w.Stage(), KindStorage, "marshal document", err)
	}
	report(20)

	key := ArtifactKey(w.prefix, st.JobID, time.Now())
	if err := w.store.Upload(ctx, key, bytes.NewReader(raw), "application/json; charset=utf-8"); err != nil {
		return NewStageError(w.Stage(), KindStorage, "upload document", err)
	}
	report(90)

	st.ArtifactURL = w.store.PublicURL(key)
	report(100)
	return nil
}

// ArtifactKey builds the deterministic {prefix}/YYYY/MM/DD/{job_id}.json key
// per the deterministic artifact key format.
func ArtifactKey(prefix, jobID string, at time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", prefix, at.Year(), at.Month(), at.Day(), jobID)
}
