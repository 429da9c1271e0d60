package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/yungbote/neurobridge-backend/internal/clients/openai"
	"github.com/yungbote/neurobridge-backend/internal/executor"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/notifier"
	"github.com/yungbote/neurobridge-backend/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

const defaultMaxConcurrentTransform = 4

// blockSchemaName/blockJSONSchema describe the structured-output contract a
// single chunk call must satisfy: a JSON array of typed blocks.
const blockSchemaName = "chunk_blocks"

var blockJSONSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"blocks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":         map[string]any{"type": "string", "enum": []string{"TEXT", "HEADING", "LIST", "TABLE", "PAGE_IMAGE"}},
					"content":      map[string]any{"type": "string"},
					"image_prompt": map[string]any{"type": "string"},
				},
				"required": []string{"type", "content"},
			},
		},
	},
	"required": []string{"blocks"},
}

const transformSystemPrompt = `You convert a raw textbook chunk into a JSON array of typed content blocks.
Allowed block types: TEXT, HEADING, LIST, TABLE, PAGE_IMAGE. Preserve reading order.
Use PAGE_IMAGE with an "image_prompt" field whenever the source text references a figure,
diagram, or illustration that should be regenerated. Respond with the JSON object described
by the schema only.`

// TransformationWorker implements TRANSFORMATION: chunks in, per-chunk typed
// block arrays out. Chunks run concurrently under a bounded executor; each
// call is retried on transient failure and salvaged-or-dropped on permanent
// parse failure. Grounded on the Bounded Executor's
// RunTolerant contract and the OpenAI client's retry-wrapped do()/doOnce()
// request idiom.
type TransformationWorker struct {
	log      *logger.Logger
	client   openai.Client
	notifier *notifier.Notifier
}

func NewTransformationWorker(log *logger.Logger, client openai.Client, notif *notifier.Notifier) *TransformationWorker {
	return &TransformationWorker{log: log.With("component", "Transformation"), client: client, notifier: notif}
}

func (w *TransformationWorker) Stage() jobdomain.StageID { return jobdomain.StageTransformation }

func (w *TransformationWorker) Run(ctx context.Context, st *State, report func(float64)) error {
	n := len(st.Chunks)
	if n == 0 {
		return NewStageError(w.Stage(), KindPermanent, "no chunks to transform", nil)
	}

	limit := st.MaxConcurrentTransform
	if limit <= 0 {
		limit = defaultMaxConcurrentTransform
	}
	ex := executor.New(w.log, limit)

	var completed int64
	results, errs := executor.RunTolerant(ctx, ex, n, func(ctx context.Context, i int) ([]jobdomain.Block, error) {
		blocks, err := w.transformChunk(ctx, st.Chunks[i])
		done := atomic.AddInt64(&completed, 1)
		report(float64(done) / float64(n) * 100)
		return blocks, err
	})

	st.PageBlocks = results
	for i, err := range errs {
		if err != nil {
			w.log.Warn("chunk transformation permanently failed, emitting empty blocks", "chunk_index", i, "error", err)
			st.AddPartialFailure(w.Stage(), "chunk transformation failure")
		}
	}

	for i, blocks := range results {
		for _, b := range blocks {
			if b.Type != jobdomain.BlockText {
				continue
			}
			blk := b
			jobID, textbookID, pageNum := st.JobID, st.TextbookID, st.Chunks[i].PageNumber
			go w.notifyBlock(jobID, textbookID, pageNum, blk)
		}
	}

	return nil
}

// notifyBlock computes the block's difficult-word vocabulary items itself,
// independent of ENRICHMENT's later phoneme pass, so the callback fires with
// real vocabulary data as soon as TRANSFORMATION produces the block rather
// than waiting on a stage that may be disabled for this job.
func (w *TransformationWorker) notifyBlock(jobID, textbookID string, pageNumber int, block jobdomain.Block) {
	if w.notifier == nil {
		return
	}
	words := selectDifficultWords(block.Content)
	items := make([]jobdomain.VocabularyItem, 0, len(words))
	for _, word := range words {
		items = append(items, jobdomain.VocabularyItem{Word: word})
	}
	w.notifier.NotifyBlock(context.Background(), notifier.BlockPayload{
		JobID:            jobID,
		TextbookID:       textbookID,
		PageNumber:       pageNumber,
		BlockID:          block.ID,
		OriginalSentence: block.Content,
		VocabularyItems:  items,
	})
}

// transformChunk makes one chat-completion call, wrapped in the
// retry-with-backoff policy for transient failures; a non-JSON or
// unparseable response is salvaged best-effort rather than retried, since
// parse failure is not transient.
func (w *TransformationWorker) transformChunk(ctx context.Context, chunk jobdomain.Chunk) ([]jobdomain.Block, error) {
	var raw map[string]any
	err := executor.ExecuteWithRetry(ctx, w.log, executor.DefaultRetryPolicy, httpx.IsRetryableError, func(ctx context.Context) error {
		m, callErr := w.client.GenerateJSON(ctx, transformSystemPrompt, chunk.Text, blockSchemaName, blockJSONSchema)
		if callErr != nil {
			return callErr
		}
		raw = m
		return nil
	})
	if err != nil {
		return nil, NewStageError(w.Stage(), classifyTransformError(err), "chunk transform call failed", err)
	}

	blocks, perr := parseBlocks(raw, chunk)
	if perr != nil {
		w.log.Warn("salvage failed for chunk response, returning empty blocks", "chunk_index", chunk.Index, "error", perr)
		return nil, NewStageError(w.Stage(), KindPermanent, "unparseable chunk response", perr)
	}
	return blocks, nil
}

func classifyTransformError(err error) StageErrorKind {
	if coder, ok := err.(httpx.HTTPStatusCoder); ok {
		if code := coder.HTTPStatusCode(); code >= 400 && code < 500 {
			return KindPermanent
		}
	}
	return KindTransient
}

// parseBlocks extracts the "blocks" array from the model's structured
// response. If the top-level shape doesn't match, it makes one best-effort
// salvage attempt by scanning for the first JSON array value anywhere in the
// payload before giving up.
func parseBlocks(raw map[string]any, chunk jobdomain.Chunk) ([]jobdomain.Block, error) {
	arr, ok := raw["blocks"].([]any)
	if !ok {
		arr, ok = salvageArray(raw)
		if !ok {
			return nil, fmt.Errorf("no blocks array in response")
		}
	}

	out := make([]jobdomain.Block, 0, len(arr))
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := m["type"].(string)
		content, _ := m["content"].(string)
		imagePrompt, _ := m["image_prompt"].(string)
		bt := jobdomain.BlockType(strings.ToUpper(strings.TrimSpace(typ)))
		switch bt {
		case jobdomain.BlockText, jobdomain.BlockHeading, jobdomain.BlockList, jobdomain.BlockTable, jobdomain.BlockPageImage:
		default:
			bt = jobdomain.BlockText
		}
		out = append(out, jobdomain.Block{
			ID:          fmt.Sprintf("%d-%d", chunk.Index, i),
			Type:        bt,
			Content:     content,
			ImagePrompt: imagePrompt,
		})
	}
	return out, nil
}

// salvageArray scans a decoded-but-misshapen response object for any field
// holding a JSON array, on the theory that a model that ignores the
// requested key name still usually returns the blocks under some key.
func salvageArray(raw map[string]any) ([]any, bool) {
	for _, v := range raw {
		if arr, ok := v.([]any); ok && len(arr) > 0 {
			return arr, true
		}
	}
	return nil, false
}
