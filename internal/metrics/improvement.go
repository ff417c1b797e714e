package metrics

import "math"

const (
	// attendanceCeiling is the absolute attendance target above which no
	// improvement is projected.
	attendanceCeiling = 0.95
	// maxImprovementPoints bounds a projection so one outlier never
	// produces an unbounded promised score gain.
	maxImprovementPoints = 15.0
)

// ImprovementPotential projects how many score points a student could
// plausibly gain by closing their attendance gap. The target is
// min(0.95, classAvgAttendance*1.15). Returns 0 when the student is
// already at or above the target, when the attendance-performance
// correlation is non-positive, or when the student already scores at or
// above the class average. Otherwise the attendance gap is scaled by the
// correlation magnitude and the score gap, capped at 15 points.
func ImprovementPotential(attendance, score, classAvgAttendance, classAvgScore, correlation float64) float64 {
	target := math.Min(attendanceCeiling, classAvgAttendance*1.15)
	if attendance >= target || correlation <= 0 {
		return 0
	}

	scoreGap := classAvgScore - score
	if scoreGap <= 0 {
		return 0
	}

	attendanceGap := target - attendance
	projected := attendanceGap * math.Abs(correlation) * scoreGap
	if projected > maxImprovementPoints {
		return maxImprovementPoints
	}
	return projected
}
