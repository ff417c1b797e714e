package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Performance categories derived from the academic score via fixed
// thresholds (>=90, >=80, >=70, >=60, else).
const (
	PerformanceExcellent        = "Excellent"
	PerformanceGood             = "Good"
	PerformanceAverage          = "Average"
	PerformanceBelowAverage     = "BelowAverage"
	PerformanceNeedsImprovement = "NeedsImprovement"
)

// InstitutionReport is the durable system of record for one generation
// run. Immutable after insert except for narrative backfill; repeated
// generation for the same institution/period inserts a new row.
type InstitutionReport struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	InstitutionID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"institution_id"`
	PeriodStart         time.Time      `gorm:"column:period_start;not null" json:"period_start"`
	PeriodEnd           time.Time      `gorm:"column:period_end;not null" json:"period_end"`
	PeriodType          string         `gorm:"column:period_type;not null;index" json:"period_type"`
	PeriodLabel         string         `gorm:"column:period_label;not null" json:"period_label"`
	AcademicScore       float64        `gorm:"column:academic_score;not null" json:"academic_score"`
	AttendanceRate      float64        `gorm:"column:attendance_rate;not null" json:"attendance_rate"`
	StudentTeacherRatio float64        `gorm:"column:student_teacher_ratio;not null" json:"student_teacher_ratio"`
	EnrollmentTotal     int            `gorm:"column:enrollment_total;not null" json:"enrollment_total"`
	EnrollmentGrowth    float64        `gorm:"column:enrollment_growth;not null" json:"enrollment_growth"`
	YoYGrowth           float64        `gorm:"column:yoy_growth;not null" json:"yoy_growth"`
	TeacherRetention    float64        `gorm:"column:teacher_retention;not null" json:"teacher_retention"`
	PerformanceCategory string         `gorm:"column:performance_category;not null" json:"performance_category"`
	SubjectScores       datatypes.JSON `gorm:"type:jsonb;column:subject_scores" json:"subject_scores"`
	Achievements        datatypes.JSON `gorm:"type:jsonb;column:achievements" json:"achievements"`
	Narrative           string         `gorm:"column:narrative" json:"narrative,omitempty"`
	Published           bool           `gorm:"column:published;not null;default:false;index" json:"published"`
	CreatedAt           time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (InstitutionReport) TableName() string { return "institution_report" }
