// Package metrics holds the pure computation core of the analytics
// subsystem. Nothing here does I/O; malformed inputs produce documented
// defaults instead of errors.
package metrics

import (
	"github.com/google/uuid"

	"github.com/tmarkov/edumetrics-backend/internal/grading"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

// GPA computes a credit-weighted grade point average. Marks are grouped
// by subject, averaged per subject, converted to grade points through the
// policy, then weighted by the subject's credit hours. Subjects missing
// from credits weigh 1. No marks means GPA 0.
func GPA(marks []types.Mark, credits map[uuid.UUID]int, policy grading.Policy) float64 {
	if len(marks) == 0 || policy == nil {
		return 0
	}

	sums := map[uuid.UUID]float64{}
	counts := map[uuid.UUID]int{}
	order := make([]uuid.UUID, 0)
	for _, m := range marks {
		if _, seen := counts[m.SubjectID]; !seen {
			order = append(order, m.SubjectID)
		}
		sums[m.SubjectID] += m.Value
		counts[m.SubjectID]++
	}

	var weighted, totalCredits float64
	for _, subjectID := range order {
		avg := sums[subjectID] / float64(counts[subjectID])
		credit := 1
		if c, ok := credits[subjectID]; ok && c > 0 {
			credit = c
		}
		weighted += policy.GPAPoints(avg) * float64(credit)
		totalCredits += float64(credit)
	}
	if totalCredits == 0 {
		return 0
	}
	return weighted / totalCredits
}
