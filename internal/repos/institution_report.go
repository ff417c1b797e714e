package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

type InstitutionReportRepo interface {
	Create(ctx context.Context, tx *gorm.DB, reports []*types.InstitutionReport) ([]*types.InstitutionReport, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.InstitutionReport, error)
	// GetLatestBefore returns the most recent report for an institution
	// whose period ended at or before the cutoff. Used for year-over-year
	// comparisons.
	GetLatestBefore(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID, cutoff time.Time) (*types.InstitutionReport, error)
	GetLatestByInstitution(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID) (*types.InstitutionReport, error)
	ListPublishedByPeriodType(ctx context.Context, tx *gorm.DB, periodType string) ([]*types.InstitutionReport, error)
	SetNarrative(ctx context.Context, tx *gorm.DB, id uuid.UUID, narrative string) error
	SetPublished(ctx context.Context, tx *gorm.DB, id uuid.UUID, published bool) error
}

type institutionReportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInstitutionReportRepo(db *gorm.DB, baseLog *logger.Logger) InstitutionReportRepo {
	return &institutionReportRepo{
		db:  db,
		log: baseLog.With("repo", "InstitutionReportRepo"),
	}
}

func (r *institutionReportRepo) Create(ctx context.Context, tx *gorm.DB, reports []*types.InstitutionReport) ([]*types.InstitutionReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(reports) == 0 {
		return []*types.InstitutionReport{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *institutionReportRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.InstitutionReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var report types.InstitutionReport
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&report).Error
	if err != nil {
		return nil, err
	}
	if report.ID == uuid.Nil {
		return nil, nil
	}
	return &report, nil
}

func (r *institutionReportRepo) GetLatestBefore(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID, cutoff time.Time) (*types.InstitutionReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if institutionID == uuid.Nil {
		return nil, nil
	}
	var report types.InstitutionReport
	err := transaction.WithContext(ctx).
		Where("institution_id = ? AND period_end <= ?", institutionID, cutoff).
		Order("period_end DESC").
		Limit(1).
		Find(&report).Error
	if err != nil {
		return nil, err
	}
	if report.ID == uuid.Nil {
		return nil, nil
	}
	return &report, nil
}

func (r *institutionReportRepo) GetLatestByInstitution(ctx context.Context, tx *gorm.DB, institutionID uuid.UUID) (*types.InstitutionReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if institutionID == uuid.Nil {
		return nil, nil
	}
	var report types.InstitutionReport
	err := transaction.WithContext(ctx).
		Where("institution_id = ?", institutionID).
		Order("created_at DESC").
		Limit(1).
		Find(&report).Error
	if err != nil {
		return nil, err
	}
	if report.ID == uuid.Nil {
		return nil, nil
	}
	return &report, nil
}

func (r *institutionReportRepo) ListPublishedByPeriodType(ctx context.Context, tx *gorm.DB, periodType string) ([]*types.InstitutionReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.InstitutionReport
	err := transaction.WithContext(ctx).
		Where("period_type = ? AND published = ?", periodType, true).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *institutionReportRepo) SetNarrative(ctx context.Context, tx *gorm.DB, id uuid.UUID, narrative string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.InstitutionReport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"narrative":  narrative,
			"updated_at": time.Now(),
		}).Error
}

func (r *institutionReportRepo) SetPublished(ctx context.Context, tx *gorm.DB, id uuid.UUID, published bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.InstitutionReport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"published":  published,
			"updated_at": time.Now(),
		}).Error
}
