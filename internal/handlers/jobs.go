package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tmarkov/edumetrics-backend/internal/repos"
	"github.com/tmarkov/edumetrics-backend/internal/services"
)

type JobsHandler struct {
	scheduler services.SchedulerService
	jobRepo   repos.ReportJobRepo
}

func NewJobsHandler(scheduler services.SchedulerService, jobRepo repos.ReportJobRepo) *JobsHandler {
	return &JobsHandler{scheduler: scheduler, jobRepo: jobRepo}
}

type enqueueJobRequest struct {
	InstitutionID *uuid.UUID `json:"institution_id,omitempty"`
	PeriodType    string     `json:"period_type" binding:"required"`
	ReportType    string     `json:"report_type" binding:"required"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
}

// POST /api/jobs
func (h *JobsHandler) EnqueueJob(c *gin.Context) {
	var req enqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	scheduledFor := time.Time{}
	if req.ScheduledFor != nil {
		scheduledFor = *req.ScheduledFor
	}
	job, err := h.scheduler.EnqueueReportJob(c.Request.Context(), req.InstitutionID, req.PeriodType, req.ReportType, scheduledFor)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondCreated(c, gin.H{"job": job})
}

// GET /api/jobs/:id
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobRepo.GetByID(c.Request.Context(), nil, jobID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", errors.New("job not found"))
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs/stats
func (h *JobsHandler) GetJobStats(c *gin.Context) {
	counts, err := h.jobRepo.CountByStatus(c.Request.Context(), nil)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"counts": counts})
}
