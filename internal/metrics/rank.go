package metrics

import (
	"sort"

	"github.com/google/uuid"
)

// GPAEntry pairs a student with a computed GPA. Slice order is
// significant: rank ties are broken by input order.
type GPAEntry struct {
	StudentID uuid.UUID
	GPA       float64
}

// ClassRank returns the 1-based rank of a student by descending GPA.
// The sort is stable, so students with equal GPAs keep their input
// order. Returns false when the student has no entry.
func ClassRank(studentID uuid.UUID, entries []GPAEntry) (int, bool) {
	if len(entries) == 0 {
		return 0, false
	}

	sorted := make([]GPAEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].GPA > sorted[j].GPA
	})

	for i, e := range sorted {
		if e.StudentID == studentID {
			return i + 1, true
		}
	}
	return 0, false
}
