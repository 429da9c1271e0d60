// Package notifier implements the Notifier: best-effort HTTP
// POST callbacks to an external observer, with retry+backoff on the
// document-complete callback and fire-and-forget block-level callbacks.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/executor"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/httpx"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

type Config struct {
	DocumentCompleteURL string
	BlockCallbackURL    string
	ThumbnailCallbackURL string
	CallbackToken       string
	MaxRetries          int // default 3
	Timeout             time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

type DocumentCompletePayload struct {
	JobID    string `json:"jobId"`
	Filename string `json:"pdfName"`
	Data     any    `json:"data"`
}

// BlockPayload is the per-block vocabulary callback shape: a flat object, not
// nested under a "block" key, carrying both snake_case and camelCase keys for
// the identifiers the receiving service binds by either convention.
type BlockPayload struct {
	JobID           string                     `json:"job_id"`
	JobIDCamel      string                     `json:"jobId"`
	TextbookID      string                     `json:"textbook_id,omitempty"`
	TextbookIDCamel string                     `json:"textbookId,omitempty"`
	PageNumber      int                        `json:"page_number"`
	PageNumberCamel int                        `json:"pageNumber"`
	BlockID         string                     `json:"block_id"`
	BlockIDCamel    string                     `json:"blockId"`
	OriginalSentence string                    `json:"original_sentence"`
	VocabularyItems []jobdomain.VocabularyItem `json:"vocabulary_items"`
	CreatedAt       time.Time                  `json:"created_at"`
}

// ThumbnailPayload carries both snake_case and camelCase keys for the same
// reason the original Spring callback did: the receiving service's JSON
// binding conventions aren't controlled by this codebase.
type ThumbnailPayload struct {
	JobID        string `json:"job_id"`
	PDFName      string `json:"pdf_name"`
	ThumbnailURL string `json:"thumbnail_url"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	JobIDCamel   string `json:"jobId"`
	PDFNameCamel string `json:"pdfName"`
	ThumbURLCamel string `json:"thumbnailUrl"`
}

type Notifier struct {
	log        *logger.Logger
	httpClient *http.Client
	cfg        Config
}

func New(log *logger.Logger, cfg Config) *Notifier {
	cfg = cfg.withDefaults()
	return &Notifier{
		log:        log.With("component", "Notifier"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

// NotifyDocumentComplete is the only callback whose delivery is retried; the
// job has already transitioned to COMPLETED and this call never reverses
// that, it only affects whether the external observer learns about it
// promptly.
func (n *Notifier) NotifyDocumentComplete(ctx context.Context, jobID, filename string, data any) error {
	if strings.TrimSpace(n.cfg.DocumentCompleteURL) == "" {
		return nil
	}
	payload := DocumentCompletePayload{JobID: jobID, Filename: filename, Data: data}

	policy := executor.RetryPolicy{MaxRetries: n.cfg.MaxRetries - 1, BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second, Jitter: true}
	err := executor.ExecuteWithRetry(ctx, n.log, policy, httpx.IsRetryableError, func(ctx context.Context) error {
		return n.post(ctx, n.cfg.DocumentCompleteURL, payload)
	})
	if err != nil {
		n.log.Error("document-complete callback exhausted retries, dead-lettering", "job_id", jobID, "error", err)
		return err
	}
	return nil
}

// NotifyThumbnail delivers the thumbnail-generation callback, distinct from
// NotifyDocumentComplete both in destination URL and payload shape: a single
// generated cover image rather than a full document result. Retried with
// the same policy since, like the document callback, the job has already
// reached a terminal state by the time this is called.
func (n *Notifier) NotifyThumbnail(ctx context.Context, jobID, pdfName, thumbnailURL string, width, height int) error {
	if strings.TrimSpace(n.cfg.ThumbnailCallbackURL) == "" {
		return nil
	}
	payload := ThumbnailPayload{
		JobID: jobID, PDFName: pdfName, ThumbnailURL: thumbnailURL, Width: width, Height: height,
		JobIDCamel: jobID, PDFNameCamel: pdfName, ThumbURLCamel: thumbnailURL,
	}

	policy := executor.RetryPolicy{MaxRetries: n.cfg.MaxRetries - 1, BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second, Jitter: true}
	err := executor.ExecuteWithRetry(ctx, n.log, policy, httpx.IsRetryableError, func(ctx context.Context) error {
		return n.post(ctx, n.cfg.ThumbnailCallbackURL, payload)
	})
	if err != nil {
		n.log.Error("thumbnail callback exhausted retries, dead-lettering", "job_id", jobID, "error", err)
		return err
	}
	return nil
}

// NotifyBlock is fire-and-forget: callers should spawn it in its own
// goroutine and never block pipeline progress on its outcome. CreatedAt is
// stamped here so every caller gets a consistent delivery timestamp rather
// than the time the block was produced.
func (n *Notifier) NotifyBlock(ctx context.Context, payload BlockPayload) {
	if strings.TrimSpace(n.cfg.BlockCallbackURL) == "" {
		return
	}
	payload.JobIDCamel = payload.JobID
	payload.TextbookIDCamel = payload.TextbookID
	payload.PageNumberCamel = payload.PageNumber
	payload.BlockIDCamel = payload.BlockID
	payload.CreatedAt = time.Now()
	if err := n.post(ctx, n.cfg.BlockCallbackURL, payload); err != nil {
		n.log.Warn("block callback failed", "job_id", payload.JobID, "error", err)
	}
}

func (n *Notifier) post(ctx context.Context, url string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.CallbackToken != "" {
		req.Header.Set("X-Callback-Token", n.cfg.CallbackToken)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &callbackError{status: resp.StatusCode}
	}
	return nil
}

type callbackError struct{ status int }

func (e *callbackError) Error() string      { return fmt.Sprintf("callback http %d", e.status) }
func (e *callbackError) HTTPStatusCode() int { return e.status }
