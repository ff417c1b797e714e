package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmarkov/edumetrics-backend/internal/grading"
	"github.com/tmarkov/edumetrics-backend/internal/logger"
	"github.com/tmarkov/edumetrics-backend/internal/metrics"
	pkgerrors "github.com/tmarkov/edumetrics-backend/internal/pkg/errors"
	"github.com/tmarkov/edumetrics-backend/internal/repos"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

// StudentSnapshot is the per-student analytics view for one period.
type StudentSnapshot struct {
	StudentID            uuid.UUID `json:"student_id"`
	GPA                  float64   `json:"gpa"`
	LetterGrade          string    `json:"letter_grade"`
	Status               string    `json:"status"`
	AverageScore         float64   `json:"average_score"`
	AttendanceRate       float64   `json:"attendance_rate"`
	ClassRank            int       `json:"class_rank,omitempty"`
	ClassSize            int       `json:"class_size"`
	Correlation          float64   `json:"attendance_correlation"`
	ImprovementPotential float64   `json:"improvement_potential"`
}

type StudentMetricsService interface {
	ComputeSnapshot(ctx context.Context, institutionID, studentID uuid.UUID, from, to time.Time) (*StudentSnapshot, error)
}

type studentMetricsService struct {
	academic repos.AcademicRecordRepo
	log      *logger.Logger
}

func NewStudentMetricsService(academic repos.AcademicRecordRepo, baseLog *logger.Logger) StudentMetricsService {
	return &studentMetricsService{
		academic: academic,
		log:      baseLog.With("service", "StudentMetricsService"),
	}
}

func (s *studentMetricsService) ComputeSnapshot(ctx context.Context, institutionID, studentID uuid.UUID, from, to time.Time) (*StudentSnapshot, error) {
	institution, err := s.academic.GetInstitutionByID(ctx, nil, institutionID)
	if err != nil {
		return nil, fmt.Errorf("load institution: %w", err)
	}
	if institution == nil {
		return nil, fmt.Errorf("institution %s: %w", institutionID, pkgerrors.ErrNotFound)
	}
	policy := grading.ForSystem(institution.GradingSystem)

	marks, err := s.academic.ListMarksInRange(ctx, nil, institutionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	absences, err := s.academic.ListAbsencesInRange(ctx, nil, institutionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}

	credits, err := s.subjectCredits(ctx, marks)
	if err != nil {
		return nil, err
	}

	// Per-student grouping in first-appearance order so ranking ties
	// resolve deterministically.
	marksByStudent := make(map[uuid.UUID][]types.Mark)
	var studentOrder []uuid.UUID
	for _, m := range marks {
		if _, seen := marksByStudent[m.StudentID]; !seen {
			studentOrder = append(studentOrder, m.StudentID)
		}
		marksByStudent[m.StudentID] = append(marksByStudent[m.StudentID], m)
	}
	if _, ok := marksByStudent[studentID]; !ok {
		return nil, fmt.Errorf("student %s has no marks in period: %w", studentID, pkgerrors.ErrNotFound)
	}

	absencesByStudent := make(map[uuid.UUID][]types.Absence)
	for _, a := range absences {
		absencesByStudent[a.StudentID] = append(absencesByStudent[a.StudentID], a)
	}

	expectedSessions := weekdaysBetween(from, to)

	entries := make([]metrics.GPAEntry, 0, len(studentOrder))
	attendanceSeries := make([]float64, 0, len(studentOrder))
	scoreSeries := make([]float64, 0, len(studentOrder))
	var classAttendanceSum, classScoreSum float64
	for _, id := range studentOrder {
		gpa := metrics.GPA(marksByStudent[id], credits, policy)
		entries = append(entries, metrics.GPAEntry{StudentID: id, GPA: gpa})

		attendance := metrics.AttendanceRate(absencesByStudent[id], expectedSessions)
		score := meanMarkValue(marksByStudent[id])
		attendanceSeries = append(attendanceSeries, attendance)
		scoreSeries = append(scoreSeries, score)
		classAttendanceSum += attendance
		classScoreSum += score
	}

	n := float64(len(studentOrder))
	classAvgAttendance := classAttendanceSum / n
	classAvgScore := classScoreSum / n
	correlation := metrics.Correlation(attendanceSeries, scoreSeries)

	studentScore := meanMarkValue(marksByStudent[studentID])
	studentAttendance := metrics.AttendanceRate(absencesByStudent[studentID], expectedSessions)
	studentGPA := metrics.GPA(marksByStudent[studentID], credits, policy)

	snapshot := &StudentSnapshot{
		StudentID:      studentID,
		GPA:            studentGPA,
		LetterGrade:    policy.Letter(studentScore),
		Status:         policy.Status(studentScore),
		AverageScore:   studentScore,
		AttendanceRate: studentAttendance,
		ClassSize:      len(studentOrder),
		Correlation:    correlation,
		ImprovementPotential: metrics.ImprovementPotential(
			studentAttendance, studentScore, classAvgAttendance, classAvgScore, correlation),
	}
	if rank, ok := metrics.ClassRank(studentID, entries); ok {
		snapshot.ClassRank = rank
	}
	return snapshot, nil
}

func (s *studentMetricsService) subjectCredits(ctx context.Context, marks []types.Mark) (map[uuid.UUID]int, error) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, m := range marks {
		if _, ok := seen[m.SubjectID]; ok {
			continue
		}
		seen[m.SubjectID] = struct{}{}
		ids = append(ids, m.SubjectID)
	}
	subjects, err := s.academic.GetSubjectsByIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	credits := make(map[uuid.UUID]int, len(subjects))
	for _, sub := range subjects {
		credits[sub.ID] = sub.CreditHours
	}
	return credits, nil
}
