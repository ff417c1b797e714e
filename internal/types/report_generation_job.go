package types

import (
	"time"

	"github.com/google/uuid"
)

// Job lifecycle states. Jobs are never deleted; terminal states are
// completed, failed and cancelled.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

const (
	ReportTypeInstitution = "institution"
	ReportTypeMarket      = "market"
)

const (
	PeriodMonthly   = "monthly"
	PeriodQuarterly = "quarterly"
	PeriodSemester  = "semester"
	PeriodYearly    = "yearly"
)

const DefaultMaxRetries = 3

type ReportGenerationJob struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	InstitutionID *uuid.UUID `gorm:"type:uuid;index" json:"institution_id,omitempty"`
	PeriodType    string     `gorm:"column:period_type;not null;index" json:"period_type"`
	ReportType    string     `gorm:"column:report_type;not null;index" json:"report_type"`
	ScheduledFor  time.Time  `gorm:"column:scheduled_for;not null;index" json:"scheduled_for"`
	Status        string     `gorm:"column:status;not null;index" json:"status"`
	RetryCount    int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	MaxRetries    int        `gorm:"column:max_retries;not null;default:3" json:"max_retries"`
	Error         string     `gorm:"column:error" json:"error,omitempty"`
	ReportID      *uuid.UUID `gorm:"type:uuid" json:"report_id,omitempty"`
	StartedAt     *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (ReportGenerationJob) TableName() string { return "report_generation_job" }
