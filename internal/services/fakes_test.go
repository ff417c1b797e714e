package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/types"
	"github.com/tmarkov/edumetrics-backend/internal/vector"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

// fakeAcademicRepo serves canned academic records from memory.
type fakeAcademicRepo struct {
	institutions map[uuid.UUID]*types.Institution
	students     []*types.Student
	teachers     []*types.Teacher
	marks        []types.Mark
	absences     []types.Absence
	subjects     map[uuid.UUID]*types.Subject
}

func newFakeAcademicRepo() *fakeAcademicRepo {
	return &fakeAcademicRepo{
		institutions: map[uuid.UUID]*types.Institution{},
		subjects:     map[uuid.UUID]*types.Subject{},
	}
}

func (f *fakeAcademicRepo) GetInstitutionByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Institution, error) {
	return f.institutions[id], nil
}

func (f *fakeAcademicRepo) ListInstitutionIDs(_ context.Context, _ *gorm.DB) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(f.institutions))
	for id := range f.institutions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (f *fakeAcademicRepo) CountActiveStudents(_ context.Context, _ *gorm.DB, institutionID uuid.UUID, asOf time.Time) (int, error) {
	count := 0
	for _, s := range f.students {
		if s.InstitutionID == institutionID && s.Active && !s.EnrolledAt.After(asOf) {
			count++
		}
	}
	return count, nil
}

func (f *fakeAcademicRepo) ListTeachers(_ context.Context, _ *gorm.DB, institutionID uuid.UUID) ([]*types.Teacher, error) {
	var out []*types.Teacher
	for _, t := range f.teachers {
		if t.InstitutionID == institutionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAcademicRepo) ListMarksInRange(_ context.Context, _ *gorm.DB, institutionID uuid.UUID, from, to time.Time) ([]types.Mark, error) {
	var out []types.Mark
	for _, m := range f.marks {
		if m.InstitutionID == institutionID && !m.RecordedAt.Before(from) && !m.RecordedAt.After(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeAcademicRepo) ListAbsencesInRange(_ context.Context, _ *gorm.DB, institutionID uuid.UUID, from, to time.Time) ([]types.Absence, error) {
	var out []types.Absence
	for _, a := range f.absences {
		if a.InstitutionID == institutionID && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAcademicRepo) GetSubjectsByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.Subject, error) {
	var out []*types.Subject
	for _, id := range ids {
		if sub, ok := f.subjects[id]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

// fakeReportRepo stores institution reports in insertion order.
type fakeReportRepo struct {
	mu        sync.Mutex
	reports   []*types.InstitutionReport
	createErr error
}

func (f *fakeReportRepo) Create(_ context.Context, _ *gorm.DB, reports []*types.InstitutionReport) ([]*types.InstitutionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, r := range reports {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		f.reports = append(f.reports, r)
	}
	return reports, nil
}

func (f *fakeReportRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.InstitutionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeReportRepo) GetLatestBefore(_ context.Context, _ *gorm.DB, institutionID uuid.UUID, cutoff time.Time) (*types.InstitutionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.InstitutionReport
	for _, r := range f.reports {
		if r.InstitutionID != institutionID || r.PeriodEnd.After(cutoff) {
			continue
		}
		if latest == nil || r.PeriodEnd.After(latest.PeriodEnd) {
			latest = r
		}
	}
	return latest, nil
}

func (f *fakeReportRepo) GetLatestByInstitution(_ context.Context, _ *gorm.DB, institutionID uuid.UUID) (*types.InstitutionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.reports) - 1; i >= 0; i-- {
		if f.reports[i].InstitutionID == institutionID {
			return f.reports[i], nil
		}
	}
	return nil, nil
}

func (f *fakeReportRepo) ListPublishedByPeriodType(_ context.Context, _ *gorm.DB, periodType string) ([]*types.InstitutionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.InstitutionReport
	for _, r := range f.reports {
		if r.PeriodType == periodType && r.Published {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReportRepo) SetNarrative(_ context.Context, _ *gorm.DB, id uuid.UUID, narrative string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.ID == id {
			r.Narrative = narrative
		}
	}
	return nil
}

func (f *fakeReportRepo) SetPublished(_ context.Context, _ *gorm.DB, id uuid.UUID, published bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.ID == id {
			r.Published = published
		}
	}
	return nil
}

type fakeMarketRepo struct {
	mu      sync.Mutex
	reports []*types.MarketReport
}

func (f *fakeMarketRepo) Create(_ context.Context, _ *gorm.DB, reports []*types.MarketReport) ([]*types.MarketReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, reports...)
	return reports, nil
}

func (f *fakeMarketRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.MarketReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeMarketRepo) GetLatestByPeriodType(_ context.Context, _ *gorm.DB, periodType string) (*types.MarketReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.reports) - 1; i >= 0; i-- {
		if f.reports[i].PeriodType == periodType {
			return f.reports[i], nil
		}
	}
	return nil, nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs []*types.ReportGenerationJob
}

func (f *fakeJobRepo) Create(_ context.Context, _ *gorm.DB, jobs []*types.ReportGenerationJob) ([]*types.ReportGenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobs...)
	return jobs, nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.ReportGenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeJobRepo) ClaimNextDue(_ context.Context, _ *gorm.DB, now time.Time) (*types.ReportGenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due *types.ReportGenerationJob
	for _, j := range f.jobs {
		if j.Status != types.JobStatusPending || j.ScheduledFor.After(now) {
			continue
		}
		if due == nil || j.ScheduledFor.Before(due.ScheduledFor) {
			due = j
		}
	}
	if due != nil {
		due.Status = types.JobStatusRunning
	}
	return due, nil
}

func (f *fakeJobRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID != id {
			continue
		}
		if v, ok := updates["status"].(string); ok {
			j.Status = v
		}
		if v, ok := updates["retry_count"].(int); ok {
			j.RetryCount = v
		}
		if v, ok := updates["error"].(string); ok {
			j.Error = v
		}
	}
	return nil
}

func (f *fakeJobRepo) CountByStatus(_ context.Context, _ *gorm.DB) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int64{}
	for _, j := range f.jobs {
		out[j.Status]++
	}
	return out, nil
}

// fakeEmbedder returns a unit vector per input.
type fakeEmbedder struct {
	err   error
	dim   int
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		v := make([]float32, dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

// fakeVectorStore records calls and can fail upserts on demand.
type fakeVectorStore struct {
	mu          sync.Mutex
	upsertErrs  []error
	upserted    [][]vector.Point
	searchHits  []vector.Match
	scrollHits  []vector.Match
	searchErr   error
	deleteErr   error
	deleted     []string
	scrollCalls int
	lastFilter  map[string]any
}

func (f *fakeVectorStore) EnsureCollection(context.Context) error { return nil }

func (f *fakeVectorStore) Upsert(_ context.Context, points []vector.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		if err != nil {
			return err
		}
	}
	f.upserted = append(f.upserted, points)
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, _ int, filter map[string]any) ([]vector.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchHits, nil
}

func (f *fakeVectorStore) Scroll(_ context.Context, filter map[string]any, _ int) ([]vector.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrollCalls++
	f.lastFilter = filter
	return f.scrollHits, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakeNarrator struct {
	text string
	err  error
}

func (f *fakeNarrator) GenerateText(context.Context, string, string) (string, error) {
	return f.text, f.err
}

func (f *fakeNarrator) AnswerWithContext(_ context.Context, _ string, contexts []string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeSyncService struct {
	mu        sync.Mutex
	err       error
	removeErr error
	calls     int
	removed   []uuid.UUID
}

func (f *fakeSyncService) SyncReport(_ context.Context, _ *types.InstitutionReport, _ *types.Institution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeSyncService) FindDocuments(context.Context, uuid.UUID, string, int) ([]vector.AnalyticsDocument, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSyncService) RemoveReport(_ context.Context, report *types.InstitutionReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, report.ID)
	return nil
}
