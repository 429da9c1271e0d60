package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-backend/internal/admission"
	"github.com/yungbote/neurobridge-backend/internal/http/response"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/registry"
)

const maxUploadBytes = 64 << 20 // 64MB, generous for a single PDF/thumbnail source

// AdmissionHandler implements the admission surface: a multipart
// POST carrying exactly one source file, admitted into the pipeline and
// returned to the caller as soon as the Job Registry reservation succeeds.
type AdmissionHandler struct {
	log *logger.Logger
	adm *admission.Controller
}

func NewAdmissionHandler(log *logger.Logger, adm *admission.Controller) *AdmissionHandler {
	return &AdmissionHandler{log: log.With("handler", "AdmissionHandler"), adm: adm}
}

// Submit handles POST /process/async. Multipart fields: "file" and "job_id"
// are required; "textbook_id" and "enable_phonemes" are optional.
func (h *AdmissionHandler) Submit(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	form := c.Request.MultipartForm

	fileHeaders := form.File["file"]
	if len(fileHeaders) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_file", nil)
		return
	}
	fh := fileHeaders[0]
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	bytes, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	if len(bytes) > maxUploadBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", nil)
		return
	}

	jobID := strings.TrimSpace(formValue(form, "job_id"))
	if jobID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_job_id", nil)
		return
	}
	enablePhonemes, _ := strconv.ParseBool(formValue(form, "enable_phonemes"))

	var vocabAudio map[string]string
	if raw := formValue(form, "vocabulary_audio_b64"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &vocabAudio); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_vocabulary_audio", err)
			return
		}
	}

	req := admission.Request{
		JobID:                   jobID,
		Filename:                fh.Filename,
		TextbookID:              strings.TrimSpace(formValue(form, "textbook_id")),
		Bytes:                   bytes,
		EnablePhonemes:          enablePhonemes,
		VocabularyAudioB64:      vocabAudio,
		VocabularyAudioMimeType: strings.TrimSpace(formValue(form, "vocabulary_audio_mime_type")),
	}
	if n, err := strconv.Atoi(formValue(form, "max_concurrent_transform")); err == nil {
		req.MaxConcurrentTransform = n
	}
	if n, err := strconv.Atoi(formValue(form, "max_concurrent_image")); err == nil {
		req.MaxConcurrentImage = n
	}
	if n, err := strconv.Atoi(formValue(form, "max_concurrent_enrich")); err == nil {
		req.MaxConcurrentEnrich = n
	}
	if n, err := strconv.Atoi(formValue(form, "max_tokens_per_chunk")); err == nil {
		req.MaxTokensPerChunk = n
	}

	if err := h.adm.Admit(req); err != nil {
		switch {
		case errors.Is(err, admission.ErrInvalidInput):
			response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		case errors.Is(err, registry.ErrAlreadyActive):
			response.RespondError(c, http.StatusConflict, "job_already_active", err)
		default:
			h.log.Error("admission failed", "job_id", jobID, "error", err)
			response.RespondError(c, http.StatusInternalServerError, "admission_failed", err)
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"job_id":  jobID,
		"message": "accepted",
		"status":  "PROCESSING",
	})
}

// SubmitThumbnail handles POST /thumbnail. Multipart fields: "file" required,
// "job_id" optional — when omitted, the caller accepts the assigned job ID
// back in the response rather than choosing it upfront.
func (h *AdmissionHandler) SubmitThumbnail(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	form := c.Request.MultipartForm

	fileHeaders := form.File["file"]
	if len(fileHeaders) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_file", nil)
		return
	}
	fh := fileHeaders[0]
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	bytes, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	if len(bytes) > maxUploadBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", nil)
		return
	}

	jobID := strings.TrimSpace(formValue(form, "job_id"))
	if jobID == "" {
		jobID = uuid.New().String()
	}

	req := admission.Request{
		JobID:      jobID,
		Filename:   fh.Filename,
		TextbookID: strings.TrimSpace(formValue(form, "textbook_id")),
		Bytes:      bytes,
	}

	if err := h.adm.AdmitThumbnail(req); err != nil {
		switch {
		case errors.Is(err, admission.ErrInvalidInput):
			response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
		case errors.Is(err, registry.ErrAlreadyActive):
			response.RespondError(c, http.StatusConflict, "job_already_active", err)
		default:
			h.log.Error("thumbnail admission failed", "job_id", jobID, "error", err)
			response.RespondError(c, http.StatusInternalServerError, "admission_failed", err)
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"job_id":  jobID,
		"message": "accepted",
		"status":  "PROCESSING",
	})
}

func formValue(form *multipart.Form, key string) string {
	if form == nil {
		return ""
	}
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
