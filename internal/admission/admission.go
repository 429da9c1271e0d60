// Package admission implements the Admission Controller: validate
// an inbound request, reserve the JobID in the Job Registry, buffer the input
// into a JobContext, and spawn a detached pipeline task. The admission path
// never awaits a stage — it returns as soon as the reservation succeeds.
package admission

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/bus"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/notifier"
	"github.com/yungbote/neurobridge-backend/internal/pipeline"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/registry"
)

var ErrInvalidInput = errors.New("invalid input")

// ErrAlreadyActive mirrors registry.ErrAlreadyActive so HTTP handlers can
// type-switch without importing the registry package directly.
var ErrAlreadyActive = registry.ErrAlreadyActive

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Request is the validated admission input. Filename drives the recognized-
// extension check; TextbookID is optional passthrough metadata.
type Request struct {
	JobID      string
	Filename   string
	TextbookID string
	Bytes      []byte

	EnablePhonemes         bool
	MaxConcurrentTransform int
	MaxConcurrentImage     int
	MaxConcurrentEnrich    int
	MaxTokensPerChunk      int

	// VocabularyAudioB64 maps a word to base64-encoded pronunciation audio
	// supplied out-of-band for ENRICHMENT's Speech-to-Text validation path;
	// VocabularyAudioMimeType is the shared MIME type for every entry.
	VocabularyAudioB64      map[string]string
	VocabularyAudioMimeType string
}

var recognizedExtensions = regexp.MustCompile(`(?i)\.pdf$`)

func (r Request) validate() error {
	if len(r.Bytes) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	if !jobIDPattern.MatchString(r.JobID) {
		return fmt.Errorf("%w: invalid job_id", ErrInvalidInput)
	}
	if !recognizedExtensions.MatchString(r.Filename) {
		return fmt.Errorf("%w: unrecognized filename extension", ErrInvalidInput)
	}
	return nil
}

// Controller wires the Registry, Pipeline Runner, and stage Registry
// together so every admitted job runs the same fixed stage composition.
type Controller struct {
	log        *logger.Logger
	reg        *registry.Registry
	bus        *bus.Bus
	notif      *notifier.Notifier
	runner     *pipeline.Runner
	weights    map[jobdomain.StageID]jobdomain.StageWeight
	thumbDeps  pipeline.ThumbnailDeps
	background context.Context

	cancels cancelTable
}

func NewController(log *logger.Logger, reg *registry.Registry, b *bus.Bus, notif *notifier.Notifier, runner *pipeline.Runner, thumbDeps pipeline.ThumbnailDeps, background context.Context) *Controller {
	return &Controller{
		log:        log.With("component", "AdmissionController"),
		reg:        reg,
		bus:        b,
		notif:      notif,
		runner:     runner,
		weights:    jobdomain.DefaultStageWeights,
		thumbDeps:  thumbDeps,
		background: background,
		cancels:    newCancelTable(),
	}
}

// Admit validates the request, reserves the JobID, and spawns the pipeline
// task. It returns as soon as the reservation succeeds — it never awaits a
// single stage.
func (c *Controller) Admit(req Request) error {
	if err := req.validate(); err != nil {
		return err
	}
	if err := c.reg.Reserve(c.background, req.JobID); err != nil {
		return err
	}

	jc := pipeline.NewJobContext(c.background, req.JobID, req.Filename, map[string]any{"textbook_id": req.TextbookID}, c.log, c.reg, c.bus, c.notif, c.weights)
	c.cancels.put(req.JobID, jc.Cancel)

	st := &pipeline.State{
		JobID:                   req.JobID,
		Filename:                req.Filename,
		InputBytes:              req.Bytes,
		TextbookID:              req.TextbookID,
		EnablePhonemes:          req.EnablePhonemes,
		MaxConcurrentTransform:  req.MaxConcurrentTransform,
		MaxConcurrentImage:      req.MaxConcurrentImage,
		MaxConcurrentEnrich:     req.MaxConcurrentEnrich,
		MaxTokensPerChunk:       req.MaxTokensPerChunk,
		VocabularyAudio:         req.VocabularyAudioB64,
		VocabularyAudioMimeType: req.VocabularyAudioMimeType,
		StartedAt:               time.Now(),
	}

	go c.run(jc, st)
	return nil
}

// run is the detached pipeline task body: one goroutine per admitted job for
// its entire lifetime, with panic recovery so a defect in a stage worker
// fails the job instead of crashing the process, mirroring the job worker's
// recover-then-fail safety net.
func (c *Controller) run(jc *pipeline.JobContext, st *pipeline.State) {
	defer c.cancels.remove(st.JobID)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("pipeline task panicked", "job_id", st.JobID, "panic", r)
			jc.Fail(jobdomain.StageInitialization, fmt.Errorf("panic: %v", r))
		}
	}()
	c.runner.Run(jc, st)
}

// AdmitThumbnail validates and reserves a thumbnail-generation request the
// same way Admit does for a full document, but spawns the narrower
// RunThumbnail task instead of the full Runner.
func (c *Controller) AdmitThumbnail(req Request) error {
	if err := req.validate(); err != nil {
		return err
	}
	if err := c.reg.Reserve(c.background, req.JobID); err != nil {
		return err
	}

	jc := pipeline.NewJobContext(c.background, req.JobID, req.Filename, map[string]any{"type": "thumbnail"}, c.log, c.reg, c.bus, c.notif, pipeline.ThumbnailWeights)
	c.cancels.put(req.JobID, jc.Cancel)

	st := &pipeline.State{
		JobID:      req.JobID,
		Filename:   req.Filename,
		InputBytes: req.Bytes,
		TextbookID: req.TextbookID,
		StartedAt:  time.Now(),
	}

	go c.runThumbnail(jc, st)
	return nil
}

func (c *Controller) runThumbnail(jc *pipeline.JobContext, st *pipeline.State) {
	defer c.cancels.remove(st.JobID)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("thumbnail task panicked", "job_id", st.JobID, "panic", r)
			jc.Fail(jobdomain.StagePDFPreprocessing, fmt.Errorf("panic: %v", r))
		}
	}()
	pipeline.RunThumbnail(jc, st, c.thumbDeps, c.log)
}

// Cancel signals the JobContext.cancel_token for an active job; the owning
// pipeline observes it at its next suspension point. Returns false if the
// job is not currently active in this process.
func (c *Controller) Cancel(jobID string) bool {
	cancel, ok := c.cancels.get(jobID)
	if !ok {
		return false
	}
	cancel()
	return true
}
