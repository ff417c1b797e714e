package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

// AcademicRecordRepo reads the host platform's academic tables. It never
// mutates them.
type AcademicRecordRepo interface {
	GetInstitutionByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Institution, error)
	ListInstitutionIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error)
	CountActiveStudents(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID, asOf time.Time) (int, error)
	ListTeachers(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID) ([]*types.Teacher, error)
	ListMarksInRange(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID, from, to time.Time) ([]types.Mark, error)
	ListAbsencesInRange(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID, from, to time.Time) ([]types.Absence, error)
	GetSubjectsByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Subject, error)
}

type academicRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAcademicRecordRepo(db *gorm.DB, baseLog *logger.Logger) AcademicRecordRepo {
	return &academicRecordRepo{
		db:  db,
		log: baseLog.With("repo", "AcademicRecordRepo"),
	}
}

func (r *academicRecordRepo) GetInstitutionByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Institution, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var institution types.Institution
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&institution).Error
	if err != nil {
		return nil, err
	}
	if institution.ID == uuid.Nil {
		return nil, nil
	}
	return &institution, nil
}

func (r *academicRecordRepo) ListInstitutionIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	err := transaction.WithContext(ctx).
		Model(&types.Institution{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *academicRecordRepo) CountActiveStudents(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID, asOf time.Time) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Student{}).
		Where("institution_id = ? AND active = ? AND enrolled_at <= ?", institutionID, true, asOf).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *academicRecordRepo) ListTeachers(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID) ([]*types.Teacher, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var teachers []*types.Teacher
	err := transaction.WithContext(ctx).
		Where("institution_id = ?", institutionID).
		Order("hired_at ASC").
		Find(&teachers).Error
	if err != nil {
		return nil, err
	}
	return teachers, nil
}

func (r *academicRecordRepo) ListMarksInRange(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID, from, to time.Time) ([]types.Mark, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var marks []types.Mark
	err := transaction.WithContext(ctx).
		Where("institution_id = ? AND recorded_at >= ? AND recorded_at <= ?", institutionID, from, to).
		Order("recorded_at ASC").
		Find(&marks).Error
	if err != nil {
		return nil, err
	}
	return marks, nil
}

func (r *academicRecordRepo) ListAbsencesInRange(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID, from, to time.Time) ([]types.Absence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var absences []types.Absence
	err := transaction.WithContext(ctx).
		Where("institution_id = ? AND date >= ? AND date <= ?", institutionID, from, to).
		Order("date ASC").
		Find(&absences).Error
	if err != nil {
		return nil, err
	}
	return absences, nil
}

func (r *academicRecordRepo) GetSubjectsByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Subject, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return []*types.Subject{}, nil
	}
	var subjects []*types.Subject
	err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&subjects).Error
	if err != nil {
		return nil, err
	}
	return subjects, nil
}
