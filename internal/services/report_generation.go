package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/metrics"
	pkgerrors "github.com/tmarkov/edumetrics-backend/internal/pkg/errors"
	"github.com/tmarkov/edumetrics-backend/internal/repos"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

const (
	defaultEnrollmentGrowth = 0.05
	retentionNoBaseline     = 0.85
	marketRankingSize       = 10
)

var tracer = otel.Tracer("services.reports")

// TextGenerator is the narrative collaborator contract.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// ReportService assembles immutable report records from raw academic
// data. Each call inserts a new row; existing reports are never mutated
// except for narrative backfill.
type ReportService interface {
	GenerateInstitutionReport(ctx context.Context, institutionID uuid.UUID, from, to time.Time, periodType string) (*types.InstitutionReport, error)
	GenerateMarketReport(ctx context.Context, periodType, label string) (*types.MarketReport, error)
	UnpublishReport(ctx context.Context, reportID uuid.UUID) (*types.InstitutionReport, error)
}

type reportService struct {
	academic    repos.AcademicRecordRepo
	reportRepo  repos.InstitutionReportRepo
	marketRepo  repos.MarketReportRepo
	narrator    TextGenerator
	syncService AnalyticsSyncService
	log         *logger.Logger
}

func NewReportService(
	academic repos.AcademicRecordRepo,
	reportRepo repos.InstitutionReportRepo,
	marketRepo repos.MarketReportRepo,
	narrator TextGenerator,
	syncService AnalyticsSyncService,
	baseLog *logger.Logger,
) ReportService {
	return &reportService{
		academic:    academic,
		reportRepo:  reportRepo,
		marketRepo:  marketRepo,
		narrator:    narrator,
		syncService: syncService,
		log:         baseLog.With("service", "ReportService"),
	}
}

func (s *reportService) GenerateInstitutionReport(ctx context.Context, institutionID uuid.UUID, from, to time.Time, periodType string) (*types.InstitutionReport, error) {
	ctx, span := tracer.Start(ctx, "reports.generate_institution",
		trace.WithAttributes(
			attribute.String("institution_id", institutionID.String()),
			attribute.String("period_type", periodType),
		),
	)
	defer span.End()

	report, err := s.generateInstitutionReport(ctx, institutionID, from, to, periodType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "institution report failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("report_id", report.ID.String()))
	return report, nil
}

func (s *reportService) generateInstitutionReport(ctx context.Context, institutionID uuid.UUID, from, to time.Time, periodType string) (*types.InstitutionReport, error) {
	institution, err := s.academic.GetInstitutionByID(ctx, nil, institutionID)
	if err != nil {
		return nil, fmt.Errorf("load institution: %w", err)
	}
	if institution == nil {
		return nil, fmt.Errorf("institution %s: %w", institutionID, pkgerrors.ErrNotFound)
	}

	studentCount, err := s.academic.CountActiveStudents(ctx, nil, institutionID, to)
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	teachers, err := s.academic.ListTeachers(ctx, nil, institutionID)
	if err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	marks, err := s.academic.ListMarksInRange(ctx, nil, institutionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	absences, err := s.academic.ListAbsencesInRange(ctx, nil, institutionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}

	academicScore := meanMarkValue(marks)
	subjectScores, err := s.subjectScoreBreakdown(ctx, marks)
	if err != nil {
		return nil, err
	}

	expectedSessions := weekdaysBetween(from, to) * studentCount
	attendanceRate := metrics.AttendanceRate(absences, expectedSessions)

	currentTeachers := teacherIDsActiveAt(teachers, to)
	baselineTeachers := teacherIDsActiveAt(teachers, to.AddDate(-1, 0, 0))
	retention := teacherRetention(currentTeachers, baselineTeachers)

	ratio := 0.0
	if len(currentTeachers) > 0 {
		ratio = float64(studentCount) / float64(len(currentTeachers))
	}

	prior, err := s.reportRepo.GetLatestBefore(ctx, nil, institutionID, from)
	if err != nil {
		return nil, fmt.Errorf("load prior report: %w", err)
	}
	priorYear, err := s.reportRepo.GetLatestBefore(ctx, nil, institutionID, to.AddDate(-1, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("load prior-year report: %w", err)
	}

	enrollmentGrowth := defaultEnrollmentGrowth
	if prior != nil && prior.EnrollmentTotal > 0 {
		enrollmentGrowth = (float64(studentCount) - float64(prior.EnrollmentTotal)) / float64(prior.EnrollmentTotal)
	}
	yoyGrowth := 0.0
	if priorYear != nil && priorYear.AcademicScore > 0 {
		yoyGrowth = (academicScore - priorYear.AcademicScore) / priorYear.AcademicScore
	}

	report := &types.InstitutionReport{
		ID:                  uuid.New(),
		InstitutionID:       institutionID,
		PeriodStart:         from,
		PeriodEnd:           to,
		PeriodType:          periodType,
		PeriodLabel:         PeriodLabel(periodType, from),
		AcademicScore:       academicScore,
		AttendanceRate:      attendanceRate,
		StudentTeacherRatio: ratio,
		EnrollmentTotal:     studentCount,
		EnrollmentGrowth:    enrollmentGrowth,
		YoYGrowth:           yoyGrowth,
		TeacherRetention:    retention,
		PerformanceCategory: categoryFor(academicScore),
		SubjectScores:       subjectScores,
		Published:           true,
	}
	report.Achievements = achievementsJSON(report)

	created, err := s.reportRepo.Create(ctx, nil, []*types.InstitutionReport{report})
	if err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}
	report = created[0]

	s.attachNarrative(ctx, report, institution)

	// Vector sync failure never discards the persisted report.
	if s.syncService != nil {
		if err := s.syncService.SyncReport(ctx, report, institution); err != nil {
			s.log.Error("vector sync failed for report",
				"report_id", report.ID,
				"institution_id", institutionID,
				"error", err)
		}
	}

	return report, nil
}

// attachNarrative backfills the narrative column. A generation failure
// degrades to a deterministic templated summary.
func (s *reportService) attachNarrative(ctx context.Context, report *types.InstitutionReport, institution *types.Institution) {
	narrative := ""
	if s.narrator != nil {
		generated, err := s.narrator.GenerateText(ctx,
			"You are an education analyst. Write a concise factual summary of an institution's performance report.",
			narrativePrompt(report, institution))
		if err != nil {
			s.log.Warn("narrative generation failed, using templated summary",
				"report_id", report.ID, "error", err)
		} else {
			narrative = generated
		}
	}
	if narrative == "" {
		narrative = TemplatedSummary(report, institution)
	}
	report.Narrative = narrative
	if err := s.reportRepo.SetNarrative(ctx, nil, report.ID, narrative); err != nil {
		s.log.Error("narrative backfill failed", "report_id", report.ID, "error", err)
	}
}

func narrativePrompt(report *types.InstitutionReport, institution *types.Institution) string {
	return fmt.Sprintf(
		"Institution: %s (%s). Period: %s. Academic score: %.1f/100. Attendance: %.1f%%. "+
			"Enrollment: %d students (growth %.1f%%). Student-teacher ratio: %.1f. Teacher retention: %.1f%%. "+
			"Performance category: %s. Summarize in 3 sentences.",
		institution.Name, institution.Type, report.PeriodLabel,
		report.AcademicScore, report.AttendanceRate*100,
		report.EnrollmentTotal, report.EnrollmentGrowth*100,
		report.StudentTeacherRatio, report.TeacherRetention*100,
		report.PerformanceCategory)
}

// TemplatedSummary is the deterministic fallback narrative.
func TemplatedSummary(report *types.InstitutionReport, institution *types.Institution) string {
	name := "The institution"
	if institution != nil && institution.Name != "" {
		name = institution.Name
	}
	return fmt.Sprintf(
		"%s recorded an academic score of %.1f out of 100 for %s, with an attendance rate of %.1f%% across %d enrolled students. Overall performance is rated %s.",
		name, report.AcademicScore, report.PeriodLabel,
		report.AttendanceRate*100, report.EnrollmentTotal, report.PerformanceCategory)
}

// UnpublishReport withdraws a report from market aggregation and removes
// its projection from the vector index. The row itself stays for audit.
func (s *reportService) UnpublishReport(ctx context.Context, reportID uuid.UUID) (*types.InstitutionReport, error) {
	report, err := s.reportRepo.GetByID(ctx, nil, reportID)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("report %s: %w", reportID, pkgerrors.ErrNotFound)
	}
	if err := s.reportRepo.SetPublished(ctx, nil, report.ID, false); err != nil {
		return nil, fmt.Errorf("unpublish report: %w", err)
	}
	report.Published = false
	if err := s.syncService.RemoveReport(ctx, report); err != nil {
		s.log.Error("vector removal failed for unpublished report",
			"report_id", report.ID,
			"error", err)
	}
	return report, nil
}

func (s *reportService) GenerateMarketReport(ctx context.Context, periodType, label string) (*types.MarketReport, error) {
	ctx, span := tracer.Start(ctx, "reports.generate_market",
		trace.WithAttributes(
			attribute.String("period_type", periodType),
			attribute.String("period_label", label),
		),
	)
	defer span.End()

	report, err := s.generateMarketReport(ctx, periodType, label)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "market report failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("report_id", report.ID.String()))
	return report, nil
}

func (s *reportService) generateMarketReport(ctx context.Context, periodType, label string) (*types.MarketReport, error) {
	published, err := s.reportRepo.ListPublishedByPeriodType(ctx, nil, periodType)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	// Latest report per institution; list ordering is created_at ASC so
	// later entries win.
	latest := make(map[uuid.UUID]*types.InstitutionReport, len(published))
	var order []uuid.UUID
	for _, r := range published {
		if _, seen := latest[r.InstitutionID]; !seen {
			order = append(order, r.InstitutionID)
		}
		latest[r.InstitutionID] = r
	}

	report := &types.MarketReport{
		ID:               uuid.New(),
		PeriodType:       periodType,
		PeriodLabel:      label,
		InstitutionCount: len(latest),
	}

	if len(latest) > 0 {
		var sumScore, sumAttendance, sumGrowth float64
		for _, id := range order {
			r := latest[id]
			report.TotalStudents += r.EnrollmentTotal
			sumScore += r.AcademicScore
			sumAttendance += r.AttendanceRate
			sumGrowth += r.EnrollmentGrowth
		}
		n := float64(len(latest))
		report.AvgAcademicScore = sumScore / n
		report.AvgAttendanceRate = sumAttendance / n
		report.AvgGrowthRate = sumGrowth / n

		rankings := types.MarketRankings{
			ByEnrollment:    rankTop(order, latest, func(r *types.InstitutionReport) float64 { return float64(r.EnrollmentTotal) }),
			ByAcademicScore: rankTop(order, latest, func(r *types.InstitutionReport) float64 { return r.AcademicScore }),
			ByGrowthRate:    rankTop(order, latest, func(r *types.InstitutionReport) float64 { return r.EnrollmentGrowth }),
		}
		blob, err := json.Marshal(rankings)
		if err != nil {
			return nil, fmt.Errorf("serialize rankings: %w", err)
		}
		report.Rankings = datatypes.JSON(blob)
	}

	created, err := s.marketRepo.Create(ctx, nil, []*types.MarketReport{report})
	if err != nil {
		return nil, fmt.Errorf("persist market report: %w", err)
	}
	return created[0], nil
}

// rankTop sorts descending by value, ties broken by input order, and
// keeps the top entries.
func rankTop(order []uuid.UUID, latest map[uuid.UUID]*types.InstitutionReport, value func(*types.InstitutionReport) float64) []types.RankedInstitution {
	ranked := make([]types.RankedInstitution, 0, len(order))
	for _, id := range order {
		ranked = append(ranked, types.RankedInstitution{
			InstitutionID: id,
			Value:         value(latest[id]),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })
	if len(ranked) > marketRankingSize {
		ranked = ranked[:marketRankingSize]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func (s *reportService) subjectScoreBreakdown(ctx context.Context, marks []types.Mark) (datatypes.JSON, error) {
	if len(marks) == 0 {
		return datatypes.JSON([]byte("{}")), nil
	}

	sums := make(map[uuid.UUID]float64)
	counts := make(map[uuid.UUID]int)
	var subjectIDs []uuid.UUID
	for _, m := range marks {
		if counts[m.SubjectID] == 0 {
			subjectIDs = append(subjectIDs, m.SubjectID)
		}
		sums[m.SubjectID] += m.Value
		counts[m.SubjectID]++
	}

	subjects, err := s.academic.GetSubjectsByIDs(ctx, nil, subjectIDs)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	names := make(map[uuid.UUID]string, len(subjects))
	for _, sub := range subjects {
		names[sub.ID] = sub.Name
	}

	breakdown := make(map[string]float64, len(subjectIDs))
	for _, id := range subjectIDs {
		name := names[id]
		if name == "" {
			name = id.String()
		}
		breakdown[name] = sums[id] / float64(counts[id])
	}
	blob, err := json.Marshal(breakdown)
	if err != nil {
		return nil, fmt.Errorf("serialize subject scores: %w", err)
	}
	return datatypes.JSON(blob), nil
}

func achievementsJSON(report *types.InstitutionReport) datatypes.JSON {
	var achievements []string
	if report.AcademicScore >= 90 {
		achievements = append(achievements, "Academic excellence")
	}
	if report.AttendanceRate >= 0.95 {
		achievements = append(achievements, "Outstanding attendance")
	}
	if report.EnrollmentGrowth >= 0.10 {
		achievements = append(achievements, "Rapid enrollment growth")
	}
	if report.TeacherRetention >= 0.95 {
		achievements = append(achievements, "Strong teacher retention")
	}
	if achievements == nil {
		achievements = []string{}
	}
	blob, _ := json.Marshal(achievements)
	return datatypes.JSON(blob)
}

func categoryFor(score float64) string {
	switch {
	case score >= 90:
		return types.PerformanceExcellent
	case score >= 80:
		return types.PerformanceGood
	case score >= 70:
		return types.PerformanceAverage
	case score >= 60:
		return types.PerformanceBelowAverage
	default:
		return types.PerformanceNeedsImprovement
	}
}

func meanMarkValue(marks []types.Mark) float64 {
	if len(marks) == 0 {
		return 0
	}
	var sum float64
	for _, m := range marks {
		sum += m.Value
	}
	return sum / float64(len(marks))
}

// teacherIDsActiveAt treats a teacher as active at t when hired at or
// before t and not yet departed.
func teacherIDsActiveAt(teachers []*types.Teacher, t time.Time) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	for _, teacher := range teachers {
		if teacher.HiredAt.After(t) {
			continue
		}
		if teacher.LeftAt != nil && !teacher.LeftAt.After(t) {
			continue
		}
		if teacher.LeftAt == nil && !teacher.Active {
			continue
		}
		out[teacher.ID] = struct{}{}
	}
	return out
}

func teacherRetention(current, baseline map[uuid.UUID]struct{}) float64 {
	if len(current) == 0 {
		return 1.0
	}
	if len(baseline) == 0 {
		return retentionNoBaseline
	}
	retained := 0
	for id := range baseline {
		if _, ok := current[id]; ok {
			retained++
		}
	}
	r := float64(retained) / float64(len(baseline))
	if r > 1.0 {
		r = 1.0
	}
	return r
}

func weekdaysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	days := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	return days
}

// PeriodLabel renders the canonical label for a period starting at from.
func PeriodLabel(periodType string, from time.Time) string {
	switch periodType {
	case types.PeriodMonthly:
		return from.Format("2006-01")
	case types.PeriodQuarterly:
		return fmt.Sprintf("%d-Q%d", from.Year(), (int(from.Month())-1)/3+1)
	case types.PeriodSemester:
		semester := 1
		if from.Month() >= time.July {
			semester = 2
		}
		return fmt.Sprintf("%d-S%d", from.Year(), semester)
	case types.PeriodYearly:
		return from.Format("2006")
	default:
		return from.Format("2006-01-02")
	}
}
