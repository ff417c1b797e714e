package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

type MarketReportRepo interface {
	Create(ctx context.Context, tx *gorm.DB, reports []*types.MarketReport) ([]*types.MarketReport, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MarketReport, error)
	GetLatestByPeriodType(ctx context.Context, tx *gorm.DB, periodType string) (*types.MarketReport, error)
}

type marketReportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMarketReportRepo(db *gorm.DB, baseLog *logger.Logger) MarketReportRepo {
	return &marketReportRepo{
		db:  db,
		log: baseLog.With("repo", "MarketReportRepo"),
	}
}

func (r *marketReportRepo) Create(ctx context.Context, tx *gorm.DB, reports []*types.MarketReport) ([]*types.MarketReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(reports) == 0 {
		return []*types.MarketReport{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *marketReportRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MarketReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var report types.MarketReport
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

func (r *marketReportRepo) GetLatestByPeriodType(ctx context.Context, tx *gorm.DB, periodType string) (*types.MarketReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var report types.MarketReport
	err := transaction.WithContext(ctx).
		Where("period_type = ?", periodType).
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
