package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yungbote/neurobridge-backend/internal/clients/openai"
	"github.com/yungbote/neurobridge-backend/internal/executor"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/storage"
)

// ThumbnailWeights is the two-stage progress split for the thumbnail
// supplemental flow: text extraction, then a single image generation pass.
// Reuses the PDF_PREPROCESSING and IMAGE_PROCESSING stage IDs rather than
// inventing new ones, since the work each performs is the same kind of work,
// just narrower in scope than the full document pipeline.
var ThumbnailWeights = map[jobdomain.StageID]jobdomain.StageWeight{
	jobdomain.StagePDFPreprocessing: {Start: 0, End: 50},
	jobdomain.StageImageProcessing:  {Start: 50, End: 100},
}

const thumbnailImageSize = 512

// ThumbnailDeps are the collaborators RunThumbnail needs, a narrow subset of
// the full pipeline Registry's workers.
type ThumbnailDeps struct {
	Preprocessing *PreprocessingWorker
	ImageClient   openai.Client
	Storage       storage.Client
}

// RunThumbnail implements the thumbnail generation flow: extract text from
// the uploaded source, pick a cover subject heuristically, generate and
// upload a single cover image, then transition the job to COMPLETED via its
// own callback. Grounded on the standalone cover-image generation service in
// the original ingestion pipeline, reduced here to the subset that doesn't
// require the full chunk/block machinery: no TRANSFORMATION or ENRICHMENT
// stage runs, since a thumbnail needs one subject line, not a structured
// document.
func RunThumbnail(jc *JobContext, st *State, deps ThumbnailDeps, log *logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			jc.Fail(jobdomain.StagePDFPreprocessing, fmt.Errorf("panic in thumbnail pipeline: %v", r))
		}
	}()

	pages, err := deps.Preprocessing.extractPages(jc.Ctx, st)
	if err != nil {
		jc.Fail(jobdomain.StagePDFPreprocessing, err)
		return
	}
	jc.Report(jobdomain.StagePDFPreprocessing, 100)

	subject := pickThumbnailSubject(pages, st.Filename)

	var img openai.ImageGeneration
	genErr := executor.ExecuteWithRetry(jc.Ctx, log, executor.DefaultRetryPolicy, httpx.IsRetryableError, func(ctx context.Context) error {
		out, callErr := deps.ImageClient.GenerateImage(ctx, thumbnailPrompt(subject))
		if callErr != nil {
			return callErr
		}
		img = out
		return nil
	})
	if genErr != nil {
		jc.Fail(jobdomain.StageImageProcessing, fmt.Errorf("thumbnail image generation failed: %w", genErr))
		return
	}
	jc.Report(jobdomain.StageImageProcessing, 60)

	key := fmt.Sprintf("thumbnails/%s.png", jc.JobID)
	if err := deps.Storage.Upload(jc.Ctx, key, bytes.NewReader(img.Bytes), img.MimeType); err != nil {
		jc.Fail(jobdomain.StageImageProcessing, fmt.Errorf("thumbnail upload failed: %w", err))
		return
	}
	url := deps.Storage.PublicURL(key)
	jc.Report(jobdomain.StageImageProcessing, 100)

	jc.SucceedThumbnail(url, thumbnailImageSize, thumbnailImageSize)
}

// pickThumbnailSubject mirrors the original's fallback chain: the first
// substantive line of extracted text, falling back to the source filename's
// stem when extraction yielded nothing usable.
func pickThumbnailSubject(pages []extractedPage, filename string) string {
	for _, p := range pages {
		if line := firstLine(p.Text); line != "" {
			return line
		}
	}
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.ReplaceAll(stem, "-", " ")
	stem = strings.TrimSpace(stem)
	if stem == "" {
		return "a textbook cover"
	}
	return stem
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 3 {
			return line
		}
	}
	return ""
}

func thumbnailPrompt(subject string) string {
	return fmt.Sprintf("A clean, colorful textbook cover illustration representing: %s. No text or lettering in the image.", subject)
}
