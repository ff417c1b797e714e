package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/tmarkov/edumetrics-backend/internal/pkg/errors"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

func TestComputeSnapshotCreditWeightedGPA(t *testing.T) {
	academic := newFakeAcademicRepo()
	institutionID := seedInstitution(academic)
	studentID := academic.students[0].ID
	svc := NewStudentMetricsService(academic, newTestLogger(t))

	snapshot, err := svc.ComputeSnapshot(context.Background(), institutionID, studentID, periodFrom, periodTo)
	if err != nil {
		t.Fatalf("ComputeSnapshot: %v", err)
	}

	// 90 over 3 credits and 70 over 1 credit under the linear map.
	if math.Abs(snapshot.GPA-3.4) > 1e-9 {
		t.Fatalf("gpa = %v, want 3.4", snapshot.GPA)
	}
	if snapshot.AverageScore != 80 {
		t.Fatalf("average score = %v, want 80", snapshot.AverageScore)
	}
	if snapshot.ClassRank != 1 || snapshot.ClassSize != 1 {
		t.Fatalf("rank/size = %d/%d", snapshot.ClassRank, snapshot.ClassSize)
	}
	if snapshot.AttendanceRate != 1.0 {
		t.Fatalf("attendance = %v", snapshot.AttendanceRate)
	}
	// Single-student class has no correlation signal.
	if snapshot.Correlation != 0 || snapshot.ImprovementPotential != 0 {
		t.Fatalf("correlation/improvement = %v/%v, want zeros", snapshot.Correlation, snapshot.ImprovementPotential)
	}
}

func TestComputeSnapshotWeightedAbsences(t *testing.T) {
	academic := newFakeAcademicRepo()
	institutionID := seedInstitution(academic)
	studentID := academic.students[0].ID
	academic.absences = append(academic.absences,
		types.Absence{ID: uuid.New(), StudentID: studentID, InstitutionID: institutionID, Kind: types.AbsenceUnexcused, Date: periodFrom.AddDate(0, 0, 2)},
		types.Absence{ID: uuid.New(), StudentID: studentID, InstitutionID: institutionID, Kind: types.AbsenceExcused, Date: periodFrom.AddDate(0, 0, 3)},
		types.Absence{ID: uuid.New(), StudentID: studentID, InstitutionID: institutionID, Kind: types.AbsenceLate, Date: periodFrom.AddDate(0, 0, 4)},
	)
	svc := NewStudentMetricsService(academic, newTestLogger(t))

	snapshot, err := svc.ComputeSnapshot(context.Background(), institutionID, studentID, periodFrom, periodTo)
	if err != nil {
		t.Fatalf("ComputeSnapshot: %v", err)
	}

	// February 2026 has 20 weekdays; weighted absences 1 + 0.5 + 0.25.
	want := (20.0 - 1.75) / 20.0
	if math.Abs(snapshot.AttendanceRate-want) > 1e-9 {
		t.Fatalf("attendance = %v, want %v", snapshot.AttendanceRate, want)
	}
}

func TestComputeSnapshotUnknownStudent(t *testing.T) {
	academic := newFakeAcademicRepo()
	institutionID := seedInstitution(academic)
	svc := NewStudentMetricsService(academic, newTestLogger(t))

	_, err := svc.ComputeSnapshot(context.Background(), institutionID, uuid.New(), periodFrom, periodTo)
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestComputeSnapshotUnknownInstitution(t *testing.T) {
	svc := NewStudentMetricsService(newFakeAcademicRepo(), newTestLogger(t))

	_, err := svc.ComputeSnapshot(context.Background(), uuid.New(), uuid.New(), periodFrom, periodTo)
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
