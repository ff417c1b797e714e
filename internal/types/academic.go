package types

import (
	"time"

	"github.com/google/uuid"
)

// Read-only academic records owned by the host platform's CRUD layer.
// The analytics core only ever reads these tables.

const (
	AbsenceUnexcused = "unexcused"
	AbsenceExcused   = "excused"
	AbsenceLate      = "late"
)

type Institution struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	Type          string    `gorm:"column:type;not null" json:"type"` // primary|secondary|higher
	Region        string    `gorm:"column:region" json:"region"`
	GradingSystem string    `gorm:"column:grading_system;not null;default:linear4" json:"grading_system"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Institution) TableName() string { return "institution" }

type Student struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InstitutionID uuid.UUID `gorm:"type:uuid;not null;index" json:"institution_id"`
	Active        bool      `gorm:"column:active;not null;default:true;index" json:"active"`
	EnrolledAt    time.Time `gorm:"column:enrolled_at;not null" json:"enrolled_at"`
}

func (Student) TableName() string { return "student" }

type Teacher struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	InstitutionID uuid.UUID  `gorm:"type:uuid;not null;index" json:"institution_id"`
	Active        bool       `gorm:"column:active;not null;default:true;index" json:"active"`
	HiredAt       time.Time  `gorm:"column:hired_at;not null" json:"hired_at"`
	LeftAt        *time.Time `gorm:"column:left_at" json:"left_at,omitempty"`
}

func (Teacher) TableName() string { return "teacher" }

type Subject struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	CreditHours int       `gorm:"column:credit_hours;not null;default:1" json:"credit_hours"`
}

func (Subject) TableName() string { return "subject" }

type Semester struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	StartDate time.Time `gorm:"column:start_date;not null" json:"start_date"`
	EndDate   time.Time `gorm:"column:end_date;not null" json:"end_date"`
}

func (Semester) TableName() string { return "semester" }

type Mark struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"student_id"`
	SubjectID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"subject_id"`
	InstitutionID uuid.UUID  `gorm:"type:uuid;not null;index" json:"institution_id"`
	SemesterID    *uuid.UUID `gorm:"type:uuid;index" json:"semester_id,omitempty"`
	Value         float64    `gorm:"column:value;not null" json:"value"` // 0..100
	RecordedAt    time.Time  `gorm:"column:recorded_at;not null;index" json:"recorded_at"`
}

func (Mark) TableName() string { return "mark" }

type Absence struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID     uuid.UUID `gorm:"type:uuid;not null;index" json:"student_id"`
	InstitutionID uuid.UUID `gorm:"type:uuid;not null;index" json:"institution_id"`
	Kind          string    `gorm:"column:kind;not null" json:"kind"` // unexcused|excused|late
	Date          time.Time `gorm:"column:date;not null;index" json:"date"`
}

func (Absence) TableName() string { return "absence" }
