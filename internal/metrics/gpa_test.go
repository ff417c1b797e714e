package metrics

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/tmarkov/edumetrics-backend/internal/grading"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

func mark(student, subject uuid.UUID, value float64) types.Mark {
	return types.Mark{
		ID:        uuid.New(),
		StudentID: student,
		SubjectID: subject,
		Value:     value,
	}
}

func TestGPACreditWeighting(t *testing.T) {
	student := uuid.New()
	mathSubj := uuid.New()
	artSubj := uuid.New()

	marks := []types.Mark{
		mark(student, mathSubj, 90),
		mark(student, artSubj, 70),
	}
	credits := map[uuid.UUID]int{
		mathSubj: 3,
		artSubj:  1,
	}

	// Linear 0-100 -> 0-4: (3.6*3 + 2.8*1) / 4 = 3.4
	got := GPA(marks, credits, grading.Linear4{})
	if math.Abs(got-3.4) > 1e-9 {
		t.Fatalf("gpa: want=3.4 got=%v", got)
	}
}

func TestGPASubjectAveragingBeforeConversion(t *testing.T) {
	student := uuid.New()
	subject := uuid.New()

	// Two marks in one subject average to 80 before conversion.
	marks := []types.Mark{
		mark(student, subject, 100),
		mark(student, subject, 60),
	}

	got := GPA(marks, nil, grading.Linear4{})
	if math.Abs(got-3.2) > 1e-9 {
		t.Fatalf("gpa: want=3.2 got=%v", got)
	}
}

func TestGPADefaultCreditIsOne(t *testing.T) {
	student := uuid.New()
	a := uuid.New()
	b := uuid.New()

	marks := []types.Mark{
		mark(student, a, 100),
		mark(student, b, 50),
	}

	// No credit lookup: both subjects weigh 1, (4.0 + 2.0) / 2 = 3.0.
	got := GPA(marks, map[uuid.UUID]int{}, grading.Linear4{})
	if math.Abs(got-3.0) > 1e-9 {
		t.Fatalf("gpa: want=3.0 got=%v", got)
	}
}

func TestGPAEmptyMarks(t *testing.T) {
	if got := GPA(nil, nil, grading.Linear4{}); got != 0 {
		t.Fatalf("gpa of no marks: want=0 got=%v", got)
	}
}

func TestGPANilPolicy(t *testing.T) {
	student := uuid.New()
	marks := []types.Mark{mark(student, uuid.New(), 90)}
	if got := GPA(marks, nil, nil); got != 0 {
		t.Fatalf("gpa with nil policy: want=0 got=%v", got)
	}
}
