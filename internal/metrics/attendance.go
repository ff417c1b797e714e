package metrics

import "github.com/tmarkov/edumetrics-backend/internal/types"

// Absence weights toward the weighted-absence total.
const (
	weightUnexcused = 1.0
	weightExcused   = 0.5
	weightLate      = 0.25
)

// AttendanceRate returns the share of expected sessions attended, in
// [0,1]. Unexcused absences count full, excused half, late arrivals a
// quarter. A non-positive expected count yields 1.0: no penalty when the
// session calendar is unavailable.
func AttendanceRate(absences []types.Absence, expectedSessions int) float64 {
	if expectedSessions <= 0 {
		return 1.0
	}

	var weighted float64
	for _, a := range absences {
		switch a.Kind {
		case types.AbsenceExcused:
			weighted += weightExcused
		case types.AbsenceLate:
			weighted += weightLate
		default:
			weighted += weightUnexcused
		}
	}

	attended := float64(expectedSessions) - weighted
	if attended < 0 {
		attended = 0
	}
	rate := attended / float64(expectedSessions)
	if rate > 1 {
		rate = 1
	}
	return rate
}
