package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tmarkov/edumetrics-backend/internal/services"
)

type StudentsHandler struct {
	metrics services.StudentMetricsService
}

func NewStudentsHandler(metrics services.StudentMetricsService) *StudentsHandler {
	return &StudentsHandler{metrics: metrics}
}

// GET /api/institutions/:id/students/:studentId/snapshot?from=2026-02-01&to=2026-02-28
func (h *StudentsHandler) GetStudentSnapshot(c *gin.Context) {
	institutionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_institution_id", err)
		return
	}
	studentID, err := uuid.Parse(c.Param("studentId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_student_id", err)
		return
	}

	// Defaults to the trailing month.
	to := time.Now()
	from := to.AddDate(0, -1, 0)
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_from_date", err)
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_to_date", err)
			return
		}
		to = parsed
	}

	snapshot, err := h.metrics.ComputeSnapshot(c.Request.Context(), institutionID, studentID, from, to)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"snapshot": snapshot})
}
