package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tmarkov/edumetrics-backend/internal/repos"
	"github.com/tmarkov/edumetrics-backend/internal/services"
)

type AnalyticsHandler struct {
	insight    services.InsightService
	sync       services.AnalyticsSyncService
	reports    services.ReportService
	reportRepo repos.InstitutionReportRepo
	marketRepo repos.MarketReportRepo
}

func NewAnalyticsHandler(
	insight services.InsightService,
	sync services.AnalyticsSyncService,
	reports services.ReportService,
	reportRepo repos.InstitutionReportRepo,
	marketRepo repos.MarketReportRepo,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		insight:    insight,
		sync:       sync,
		reports:    reports,
		reportRepo: reportRepo,
		marketRepo: marketRepo,
	}
}

// GET /api/institutions/:id/report
func (h *AnalyticsHandler) GetLatestReport(c *gin.Context) {
	institutionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_institution_id", err)
		return
	}
	report, err := h.reportRepo.GetLatestByInstitution(c.Request.Context(), nil, institutionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if report == nil {
		RespondError(c, http.StatusNotFound, "report_not_found", errors.New("no report for institution"))
		return
	}
	RespondOK(c, gin.H{"report": report})
}

// GET /api/institutions/:id/similar?limit=5
func (h *AnalyticsHandler) GetSimilarInstitutions(c *gin.Context) {
	institutionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_institution_id", err)
		return
	}
	similar, err := h.insight.FindSimilarInstitutions(c.Request.Context(), institutionID, queryInt(c, "limit", 5))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"similar": similar})
}

// GET /api/institutions/:id/documents?period=2026-02
func (h *AnalyticsHandler) GetAnalyticsDocuments(c *gin.Context) {
	institutionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_institution_id", err)
		return
	}
	docs, err := h.sync.FindDocuments(c.Request.Context(), institutionID, c.Query("period"), queryInt(c, "limit", 10))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"documents": docs})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k,omitempty"`
}

// POST /api/analytics/ask
func (h *AnalyticsHandler) AskQuestion(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	answer := h.insight.AnswerQuestion(c.Request.Context(), req.Question, req.TopK)
	RespondOK(c, gin.H{"answer": answer})
}

// POST /api/reports/:reportId/unpublish
func (h *AnalyticsHandler) UnpublishReport(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("reportId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_report_id", err)
		return
	}
	report, err := h.reports.UnpublishReport(c.Request.Context(), reportID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"report": report})
}

// GET /api/market/latest?period_type=monthly
func (h *AnalyticsHandler) GetLatestMarketReport(c *gin.Context) {
	periodType := c.DefaultQuery("period_type", "monthly")
	report, err := h.marketRepo.GetLatestByPeriodType(c.Request.Context(), nil, periodType)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if report == nil {
		RespondError(c, http.StatusNotFound, "report_not_found", errors.New("no market report for period type"))
		return
	}
	RespondOK(c, gin.H{"report": report})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
