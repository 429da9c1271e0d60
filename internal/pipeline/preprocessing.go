package pipeline

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/neurobridge-backend/internal/clients/gcp"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

const defaultMaxTokensPerChunk = 2000

// PreprocessingWorker implements PDF_PREPROCESSING: bytes in, an ordered
// sequence of token-budgeted text chunks out. Primary extraction is
// Document AI's synchronous ProcessDocument; on error or a weak text signal,
// it falls back to Vision OCR run directly over the document bytes. Grounded
// on the PDF ingestion pipeline's DocAI-then-Vision-fallback shape, with the
// per-page GCS rendering/captioning steps dropped: this stage only needs
// text, not page imagery.
type PreprocessingWorker struct {
	log    *logger.Logger
	docAI  gcp.Document
	vision gcp.Vision

	projectID   string
	location    string
	processorID string
}

func NewPreprocessingWorker(log *logger.Logger, docAI gcp.Document, vision gcp.Vision, projectID, location, processorID string) *PreprocessingWorker {
	return &PreprocessingWorker{
		log:         log.With("component", "PDFPreprocessing"),
		docAI:       docAI,
		vision:      vision,
		projectID:   projectID,
		location:    location,
		processorID: processorID,
	}
}

func (w *PreprocessingWorker) Stage() jobdomain.StageID { return jobdomain.StagePDFPreprocessing }

func (w *PreprocessingWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	if len(st.InputBytes) == 0 {
		return NewStageError(w.Stage(), KindPermanent, "empty input", nil)
	}

	pages, err := w.extractPages(ctx, st)
	if err != nil {
		return err
	}
	report(70)

	if len(pages) == 0 {
		return NewStageError(w.Stage(), KindPermanent, "EmptyExtraction: no text recovered from document", nil)
	}

	maxTokens := st.MaxTokensPerChunk
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokensPerChunk
	}
	st.Chunks = packChunks(pages, maxTokens)
	report(100)

	if len(st.Chunks) == 0 {
		return NewStageError(w.Stage(), KindPermanent, "EmptyExtraction: no chunks produced", nil)
	}
	return nil
}

type extractedPage struct {
	Number int
	Text   string
}

func (w *PreprocessingWorker) extractPages(ctx context.Context, st *State) ([]extractedPage, error) {
	if w.docAI != nil {
		res, err := w.docAI.ProcessBytes(ctx, gcp.DocAIProcessBytesRequest{
			ProjectID:   w.projectID,
			Location:    w.location,
			ProcessorID: w.processorID,
			MimeType:    "application/pdf",
			Data:        st.InputBytes,
		})
		if err == nil && textSignalStrong(res.PrimaryText) {
			pages := make([]extractedPage, 0, len(res.Pages))
			for _, p := range res.Pages {
				t := strings.TrimSpace(p.Text)
				if t == "" {
					continue
				}
				pages = append(pages, extractedPage{Number: p.PageNumber, Text: t})
			}
			if len(pages) > 0 {
				return pages, nil
			}
		}
		if err != nil {
			w.log.Warn("docai extraction failed, falling back to OCR", "error", err)
		} else {
			w.log.Warn("docai extraction returned weak text signal, falling back to OCR")
		}
	}

	if w.vision == nil {
		return nil, NewStageError(w.Stage(), KindPermanent, "InputUnreadable: no OCR fallback configured", nil)
	}
	ocr, err := w.vision.OCRImageBytes(ctx, st.InputBytes, "application/pdf")
	if err != nil {
		return nil, NewStageError(w.Stage(), KindPermanent, "InputUnreadable: OCR fallback failed", err)
	}
	t := strings.TrimSpace(ocr.PrimaryText)
	if t == "" {
		return nil, nil
	}
	return []extractedPage{{Number: 1, Text: t}}, nil
}

func textSignalStrong(s string) bool { return utf8.RuneCountInString(strings.TrimSpace(s)) >= 200 }

// estimateTokens is a cheap 4-chars-per-token heuristic, matching the rough
// conversion used across the pack wherever a real tokenizer isn't wired in.
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	est := n / 4
	if est == 0 {
		est = 1
	}
	return est
}

// packChunks greedy-packs each page's paragraphs into chunks no larger than
// maxTokens, never splitting a page's first paragraph across a chunk
// boundary from the previous page — i.e. page order is preserved exactly,
// since page order must equal chunk order.
func packChunks(pages []extractedPage, maxTokens int) []jobdomain.Chunk {
	var chunks []jobdomain.Chunk
	idx := 0

	var curText strings.Builder
	var curOriginal strings.Builder
	curTokens := 0
	curPage := 0

	flush := func() {
		if curTokens == 0 {
			return
		}
		chunks = append(chunks, jobdomain.Chunk{
			Index:           idx,
			PageNumber:      curPage,
			Text:            strings.TrimSpace(curText.String()),
			OriginalContent: strings.TrimSpace(curOriginal.String()),
			TokenCount:      curTokens,
		})
		idx++
		curText.Reset()
		curOriginal.Reset()
		curTokens = 0
	}

	for _, page := range pages {
		paragraphs := splitParagraphs(page.Text)
		for _, para := range paragraphs {
			pt := estimateTokens(para)
			if curTokens > 0 && curTokens+pt > maxTokens {
				flush()
			}
			if curTokens == 0 {
				curPage = page.Number
			}
			if curText.Len() > 0 {
				curText.WriteString("\n\n")
				curOriginal.WriteString("\n\n")
			}
			curText.WriteString(para)
			curOriginal.WriteString(para)
			curTokens += pt

			// A single paragraph that alone exceeds the budget still forms
			// its own chunk rather than looping forever.
			if curTokens >= maxTokens {
				flush()
			}
		}
	}
	flush()
	return chunks
}

func splitParagraphs(text string) []string {
	raw := strings.Split(collapseBlankLines(text), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, collapseWhitespaceKeepNewlines(p))
	}
	return out
}

func collapseBlankLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var b strings.Builder
	blank := false
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			if !blank {
				b.WriteString("\n\n")
			}
			blank = true
			continue
		}
		if b.Len() > 0 && !blank {
			b.WriteString("\n")
		}
		b.WriteString(ln)
		blank = false
	}
	return b.String()
}

func collapseWhitespaceKeepNewlines(s string) string {
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.Join(strings.Fields(ln), " ")
	}
	return strings.Join(lines, "\n")
}
