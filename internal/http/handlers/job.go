package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-backend/internal/admission"
	"github.com/yungbote/neurobridge-backend/internal/http/response"
	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
	"github.com/yungbote/neurobridge-backend/internal/registry"
)

// JobHandler implements the Query API: get_status, get_result,
// list_active, and cancel, backed directly by the Job Registry's Redis
// snapshots and the in-process Admission Controller cancel table. There is
// no database-backed job record here — the registry snapshot is the only
// record of a job's state.
type JobHandler struct {
	log *logger.Logger
	reg *registry.Registry
	adm *admission.Controller
}

func NewJobHandler(log *logger.Logger, reg *registry.Registry, adm *admission.Controller) *JobHandler {
	return &JobHandler{log: log.With("handler", "JobHandler"), reg: reg, adm: adm}
}

// GetStatus handles GET /process/status/:job_id — the last written progress
// snapshot, shaped `{ job_id, status, progress?, error? }`.
func (h *JobHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_job_id", nil)
		return
	}
	snap, err := h.reg.ReadProgress(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "job_not_found", nil)
			return
		}
		h.log.Error("read progress failed", "job_id", jobID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "registry_unavailable", err)
		return
	}
	response.RespondOK(c, gin.H{
		"job_id":              snap.JobID,
		"status":              snap.Status,
		"progress":            snap.GlobalProgress,
		"error":               snap.Error,
		"estimated_completion": snap.EstimatedCompletion,
	})
}

// GetResult handles GET /result/:job_id — the persisted terminal result.
// 202 while the job is still active, 400 if it failed or was cancelled,
// 404 if the job ID is unknown to the registry altogether.
func (h *JobHandler) GetResult(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_job_id", nil)
		return
	}
	res, err := h.reg.ReadResult(c.Request.Context(), jobID)
	if err == nil {
		response.RespondOK(c, res)
		return
	}
	if !errors.Is(err, registry.ErrNotFound) {
		h.log.Error("read result failed", "job_id", jobID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "registry_unavailable", err)
		return
	}

	snap, perr := h.reg.ReadProgress(c.Request.Context(), jobID)
	if perr != nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", nil)
		return
	}
	switch snap.Status {
	case jobdomain.StatusFailed, jobdomain.StatusCancelled:
		response.RespondError(c, http.StatusBadRequest, "job_not_succeeded", errors.New(string(snap.Status)))
	default:
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": snap.Status})
	}
}

// ListActive handles GET /jobs — the set of job IDs currently holding a
// liveness marker in the registry.
func (h *JobHandler) ListActive(c *gin.Context) {
	ids, err := h.reg.ListActive(c.Request.Context())
	if err != nil {
		h.log.Error("list active failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "registry_unavailable", err)
		return
	}
	response.RespondOK(c, gin.H{"job_ids": ids})
}

// Cancel handles DELETE /jobs/:job_id. It signals the job's context if the
// job is running in this process; it does not itself write a CANCELLED
// snapshot — that transition is observed and recorded by the pipeline
// Runner the next time the cancelled job checks its context.
func (h *JobHandler) Cancel(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_job_id", nil)
		return
	}
	if !h.adm.Cancel(jobID) {
		response.RespondError(c, http.StatusNotFound, "job_not_active", nil)
		return
	}
	response.RespondOK(c, gin.H{"job_id": jobID, "cancel_requested": true})
}
