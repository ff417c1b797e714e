package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmarkov/edumetrics-backend/internal/cache"
	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/pkg/httpx"
	"github.com/tmarkov/edumetrics-backend/internal/platform/qdrant"
	"github.com/tmarkov/edumetrics-backend/internal/types"
	"github.com/tmarkov/edumetrics-backend/internal/vector"
)

const (
	syncMaxAttempts   = 3
	syncBaseDelay     = 500 * time.Millisecond
	documentCacheTTL  = 30 * time.Minute
	defaultSearchTopK = 5
)

// Embedder is the embedding collaborator contract: text in, fixed-length
// vector out, one vector per input in input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// AnalyticsSyncService projects persisted reports into the vector index
// and serves cached document reads. The index is derived state, so every
// operation here is safe to re-run.
type AnalyticsSyncService interface {
	SyncReport(ctx context.Context, report *types.InstitutionReport, institution *types.Institution) error
	FindDocuments(ctx context.Context, institutionID uuid.UUID, periodLabel string, topK int) ([]vector.AnalyticsDocument, error)
	RemoveReport(ctx context.Context, report *types.InstitutionReport) error
}

type analyticsSyncService struct {
	store    vector.Store
	embedder Embedder
	docCache *cache.TTL
	log      *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewAnalyticsSyncService(store vector.Store, embedder Embedder, docCache *cache.TTL, baseLog *logger.Logger) AnalyticsSyncService {
	return &analyticsSyncService{
		store:    store,
		embedder: embedder,
		docCache: docCache,
		log:      baseLog.With("service", "AnalyticsSyncService"),
		sleep:    sleepWithContext,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BuildAnalyticsDocument denormalizes a report plus its institution into
// the projection stored in the index payload.
func BuildAnalyticsDocument(report *types.InstitutionReport, institution *types.Institution) vector.AnalyticsDocument {
	doc := vector.AnalyticsDocument{
		ReportID:      report.ID,
		InstitutionID: report.InstitutionID,
		PeriodLabel:   report.PeriodLabel,
		ReportType:    types.ReportTypeInstitution,
		StudentCount:  report.EnrollmentTotal,
		OverallScore:  report.AcademicScore,
		Narrative:     report.Narrative,
		Metrics: map[string]float64{
			"academic_score":        report.AcademicScore,
			"attendance_rate":       report.AttendanceRate,
			"student_teacher_ratio": report.StudentTeacherRatio,
			"enrollment_growth":     report.EnrollmentGrowth,
			"yoy_growth":            report.YoYGrowth,
			"teacher_retention":     report.TeacherRetention,
		},
	}
	if institution != nil {
		doc.InstitutionName = institution.Name
		doc.InstitutionType = institution.Type
		doc.Region = institution.Region
	}
	if len(report.Achievements) > 0 {
		var achievements []string
		if err := json.Unmarshal(report.Achievements, &achievements); err == nil {
			doc.Achievements = achievements
		}
	}
	return doc
}

func (s *analyticsSyncService) SyncReport(ctx context.Context, report *types.InstitutionReport, institution *types.Institution) error {
	if report == nil {
		return fmt.Errorf("sync requires a persisted report")
	}
	doc := BuildAnalyticsDocument(report, institution)
	vectors, err := s.embedder.Embed(ctx, []string{doc.CombinedText()})
	if err != nil {
		return fmt.Errorf("embed analytics document: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("embedder returned %d vectors for one input", len(vectors))
	}
	payload, err := doc.PointPayload()
	if err != nil {
		return err
	}
	if err := s.store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	point := vector.Point{ID: report.ID.String(), Values: vectors[0], Payload: payload}

	delay := syncBaseDelay
	var lastErr error
	for attempt := 1; attempt <= syncMaxAttempts; attempt++ {
		lastErr = s.store.Upsert(ctx, []vector.Point{point})
		if lastErr == nil {
			s.docCache.Delete(documentCacheKey(report.InstitutionID, report.PeriodLabel))
			return nil
		}
		if !isTransientSyncError(lastErr) {
			return fmt.Errorf("upsert analytics document: %w", lastErr)
		}
		s.log.Warn("vector upsert failed, will retry",
			"report_id", report.ID,
			"attempt", attempt,
			"error", lastErr)
		if attempt < syncMaxAttempts {
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
	}
	return fmt.Errorf("upsert analytics document after %d attempts: %w", syncMaxAttempts, lastErr)
}

func (s *analyticsSyncService) FindDocuments(ctx context.Context, institutionID uuid.UUID, periodLabel string, topK int) ([]vector.AnalyticsDocument, error) {
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	key := documentCacheKey(institutionID, periodLabel)
	if cached, ok := s.docCache.Get(key); ok {
		if docs, ok := cached.([]vector.AnalyticsDocument); ok {
			return docs, nil
		}
	}
	filter := map[string]any{vector.FieldInstitutionID: institutionID.String()}
	if periodLabel != "" {
		filter[vector.FieldPeriodLabel] = periodLabel
	}
	matches, err := s.store.Scroll(ctx, filter, topK)
	if err != nil {
		return nil, err
	}
	docs := make([]vector.AnalyticsDocument, 0, len(matches))
	for _, m := range matches {
		doc, err := vector.DocumentFromPayload(m.Payload)
		if err != nil {
			s.log.Warn("skipping malformed index payload", "point_id", m.ID, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	s.docCache.Set(key, docs)
	return docs, nil
}

// RemoveReport deletes the report's projection from the index and drops
// the cached documents for its period so reads stop serving it.
func (s *analyticsSyncService) RemoveReport(ctx context.Context, report *types.InstitutionReport) error {
	if report == nil {
		return fmt.Errorf("remove requires a persisted report")
	}
	if err := s.store.Delete(ctx, []string{report.ID.String()}); err != nil {
		return fmt.Errorf("delete analytics document: %w", err)
	}
	s.docCache.Delete(documentCacheKey(report.InstitutionID, report.PeriodLabel))
	return nil
}

func documentCacheKey(institutionID uuid.UUID, periodLabel string) string {
	return institutionID.String() + "|" + periodLabel
}

func isTransientSyncError(err error) bool {
	var opErr *qdrant.OperationError
	if errors.As(err, &opErr) {
		return opErr.IsTransient()
	}
	return httpx.IsRetryableError(err)
}
