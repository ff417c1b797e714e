package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MarketReport summarizes all published institution reports that share a
// period type. Immutable once persisted.
type MarketReport struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PeriodType        string         `gorm:"column:period_type;not null;index" json:"period_type"`
	PeriodLabel       string         `gorm:"column:period_label;not null" json:"period_label"`
	InstitutionCount  int            `gorm:"column:institution_count;not null" json:"institution_count"`
	TotalStudents     int            `gorm:"column:total_students;not null" json:"total_students"`
	AvgAcademicScore  float64        `gorm:"column:avg_academic_score;not null" json:"avg_academic_score"`
	AvgAttendanceRate float64        `gorm:"column:avg_attendance_rate;not null" json:"avg_attendance_rate"`
	AvgGrowthRate     float64        `gorm:"column:avg_growth_rate;not null" json:"avg_growth_rate"`
	Rankings          datatypes.JSON `gorm:"type:jsonb;column:rankings" json:"rankings"`
	CreatedAt         time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (MarketReport) TableName() string { return "market_report" }

// MarketRankings is the shape serialized into MarketReport.Rankings.
type MarketRankings struct {
	ByEnrollment    []RankedInstitution `json:"by_enrollment"`
	ByAcademicScore []RankedInstitution `json:"by_academic_score"`
	ByGrowthRate    []RankedInstitution `json:"by_growth_rate"`
}

type RankedInstitution struct {
	InstitutionID uuid.UUID `json:"institution_id"`
	Rank          int       `json:"rank"`
	Value         float64   `json:"value"`
}
