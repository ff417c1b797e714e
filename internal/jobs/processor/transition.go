package processor

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tmarkov/edumetrics-backend/internal/pkg/errors"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

// Transition is the durable state change computed for one finished
// execution attempt.
type Transition struct {
	Status       string
	RetryCount   int
	ScheduledFor *time.Time
	CompletedAt  *time.Time
	ReportID     *uuid.UUID
	Error        string
}

// NextTransition decides a running job's next state:
// success is terminal completed; cancellation is recorded, not retried;
// validation failures are terminal immediately; anything else retries
// with exponential backoff until retries are exhausted.
func NextTransition(job *types.ReportGenerationJob, reportID *uuid.UUID, execErr error, now time.Time) Transition {
	if execErr == nil {
		completed := now
		return Transition{
			Status:      types.JobStatusCompleted,
			RetryCount:  job.RetryCount,
			CompletedAt: &completed,
			ReportID:    reportID,
		}
	}

	if errors.Is(execErr, context.Canceled) {
		completed := now
		return Transition{
			Status:      types.JobStatusCancelled,
			RetryCount:  job.RetryCount,
			CompletedAt: &completed,
			Error:       execErr.Error(),
		}
	}

	if errors.Is(execErr, pkgerrors.ErrNotFound) || errors.Is(execErr, pkgerrors.ErrInvalidArgument) {
		completed := now
		return Transition{
			Status:      types.JobStatusFailed,
			RetryCount:  job.RetryCount,
			CompletedAt: &completed,
			Error:       execErr.Error(),
		}
	}

	if job.RetryCount >= job.MaxRetries {
		completed := now
		return Transition{
			Status:      types.JobStatusFailed,
			RetryCount:  job.RetryCount,
			CompletedAt: &completed,
			Error:       execErr.Error(),
		}
	}

	retryCount := job.RetryCount + 1
	next := now.Add(backoffDelay(retryCount))
	return Transition{
		Status:       types.JobStatusPending,
		RetryCount:   retryCount,
		ScheduledFor: &next,
		Error:        execErr.Error(),
	}
}

// backoffDelay doubles per attempt: 2, 4, 8 minutes for attempts 1..3.
func backoffDelay(retryCount int) time.Duration {
	return time.Duration(math.Pow(2, float64(retryCount))) * time.Minute
}

// Updates renders the transition as column updates for the job row.
func (t Transition) Updates() map[string]interface{} {
	updates := map[string]interface{}{
		"status":      t.Status,
		"retry_count": t.RetryCount,
		"error":       t.Error,
	}
	if t.ScheduledFor != nil {
		updates["scheduled_for"] = *t.ScheduledFor
	}
	if t.CompletedAt != nil {
		updates["completed_at"] = *t.CompletedAt
	}
	if t.ReportID != nil {
		updates["report_id"] = *t.ReportID
	}
	return updates
}
