package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/yungbote/neurobridge-backend/internal/clients/openai"
	"github.com/yungbote/neurobridge-backend/internal/executor"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/storage"
)

const defaultMaxConcurrentImage = 3

// ImageProcessingWorker implements IMAGE_PROCESSING: finds every PAGE_IMAGE
// block produced by TRANSFORMATION, fans out image-generation calls under a
// second semaphore, and attaches the uploaded artifact URL on success. A
// failed generation leaves the block unchanged (no URL) and is logged, never
// fatal to the stage.
type ImageProcessingWorker struct {
	log     *logger.Logger
	client  openai.Client
	storage storage.Client
	keyFn   func(jobID string, chunkIndex, blockIdx int) string
}

func NewImageProcessingWorker(log *logger.Logger, client openai.Client, store storage.Client) *ImageProcessingWorker {
	return &ImageProcessingWorker{
		log:     log.With("component", "ImageProcessing"),
		client:  client,
		storage: store,
		keyFn: func(jobID string, chunkIndex, blockIdx int) string {
			return fmt.Sprintf("images/%s/%d-%d.png", jobID, chunkIndex, blockIdx)
		},
	}
}

func (w *ImageProcessingWorker) Stage() jobdomain.StageID { return jobdomain.StageImageProcessing }

type imageTarget struct {
	chunkIdx int
	blockIdx int
}

func (w *ImageProcessingWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	var targets []imageTarget
	for ci, blocks := range st.PageBlocks {
		for bi, b := range blocks {
			if b.Type == jobdomain.BlockPageImage && b.ImagePrompt != "" {
				targets = append(targets, imageTarget{chunkIdx: ci, blockIdx: bi})
			}
		}
	}
	if len(targets) == 0 {
		report(100)
		return nil
	}

	limit := st.MaxConcurrentImage
	if limit <= 0 {
		limit = defaultMaxConcurrentImage
	}
	ex := executor.New(w.log, limit)

	var completed int64
	_, errs := executor.RunTolerant(ctx, ex, len(targets), func(ctx context.Context, i int) (struct{}, error) {
		t := targets[i]
		err := w.generateAndAttach(ctx, st, t)
		done := atomic.AddInt64(&completed, 1)
		report(float64(done) / float64(len(targets)) * 100)
		return struct{}{}, err
	})

	for i, err := range errs {
		if err != nil {
			t := targets[i]
			w.log.Warn("image generation failed, leaving block unchanged", "chunk_index", t.chunkIdx, "block_index", t.blockIdx, "error", err)
			st.AddPartialFailure(w.Stage(), "image generation failure")
		}
	}
	return nil
}

func (w *ImageProcessingWorker) generateAndAttach(ctx context.Context, st *State, t imageTarget) error {
	block := &st.PageBlocks[t.chunkIdx][t.blockIdx]

	var img openai.ImageGeneration
	err := executor.ExecuteWithRetry(ctx, w.log, executor.DefaultRetryPolicy, httpx.IsRetryableError, func(ctx context.Context) error {
		out, callErr := w.client.GenerateImage(ctx, block.ImagePrompt)
		if callErr != nil {
			return callErr
		}
		img = out
		return nil
	})
	if err != nil {
		return err
	}

	key := w.keyFn(st.JobID, t.chunkIdx, t.blockIdx)
	if err := w.storage.Upload(ctx, key, bytes.NewReader(img.Bytes), img.MimeType); err != nil {
		return err
	}
	block.URL = w.storage.PublicURL(key)
	return nil
}
