package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

type ReportJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, jobs []*types.ReportGenerationJob) ([]*types.ReportGenerationJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReportGenerationJob, error)
	// ClaimNextDue atomically transitions the oldest due pending job to
	// running. Safe to call from multiple processor instances.
	ClaimNextDue(ctx context.Context, tx *gorm.DB, now time.Time) (*types.ReportGenerationJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	CountByStatus(ctx context.Context, tx *gorm.DB) (map[string]int64, error)
}

type reportJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReportJobRepo(db *gorm.DB, baseLog *logger.Logger) ReportJobRepo {
	return &reportJobRepo{
		db:  db,
		log: baseLog.With("repo", "ReportJobRepo"),
	}
}

func (r *reportJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.ReportGenerationJob) ([]*types.ReportGenerationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.ReportGenerationJob{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *reportJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReportGenerationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ReportGenerationJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *reportJobRepo) ClaimNextDue(ctx context.Context, tx *gorm.DB, now time.Time) (*types.ReportGenerationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var claimed *types.ReportGenerationJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.ReportGenerationJob
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND scheduled_for <= ?", types.JobStatusPending, now).
			Order("scheduled_for ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.ReportGenerationJob{}).
			Where("id = ? AND status = ?", job.ID, types.JobStatusPending).
			Updates(map[string]interface{}{
				"status":     types.JobStatusRunning,
				"started_at": now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.JobStatusRunning
		startedAt := now
		job.StartedAt = &startedAt
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *reportJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.ReportGenerationJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *reportJobRepo) CountByStatus(ctx context.Context, tx *gorm.DB) (map[string]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := transaction.WithContext(ctx).
		Model(&types.ReportGenerationJob{}).
		Select("status, count(*) as n").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
