package grading

import "strings"

// Policy converts a 0-100 numeric score into the institution's grade
// vocabulary. Resolved once per institution and passed into the metrics
// engine; never re-fetched per call.
type Policy interface {
	Letter(score float64) string
	GPAPoints(score float64) float64
	Status(score float64) string
	Score(letter string) float64
}

const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// ForSystem resolves a named grading system to its policy. Unknown
// systems fall back to Linear4.
func ForSystem(id string) Policy {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "fivepoint", "five_point":
		return FivePoint{}
	case "usletter", "us_letter":
		return USLetter{}
	default:
		return Linear4{}
	}
}

// Linear4 maps 0-100 linearly onto 0-4 grade points.
type Linear4 struct{}

func (Linear4) GPAPoints(score float64) float64 {
	return clampScore(score) * 4.0 / 100.0
}

func (Linear4) Letter(score float64) string {
	return bandLetter(score)
}

func (Linear4) Status(score float64) string {
	if clampScore(score) >= 60 {
		return StatusPass
	}
	return StatusFail
}

func (Linear4) Score(letter string) float64 {
	return bandScore(letter)
}

// FivePoint maps onto the 2-5 scale used by eastern-european institutions.
type FivePoint struct{}

func (FivePoint) GPAPoints(score float64) float64 {
	s := clampScore(score)
	switch {
	case s >= 90:
		return 5.0
	case s >= 75:
		return 4.0
	case s >= 60:
		return 3.0
	default:
		return 2.0
	}
}

func (p FivePoint) Letter(score float64) string {
	switch p.GPAPoints(score) {
	case 5.0:
		return "5"
	case 4.0:
		return "4"
	case 3.0:
		return "3"
	default:
		return "2"
	}
}

func (FivePoint) Status(score float64) string {
	if clampScore(score) >= 60 {
		return StatusPass
	}
	return StatusFail
}

func (FivePoint) Score(letter string) float64 {
	switch strings.TrimSpace(letter) {
	case "5":
		return 95
	case "4":
		return 82
	case "3":
		return 67
	default:
		return 50
	}
}

// USLetter maps letter bands onto the conventional 4.0 scale.
type USLetter struct{}

func (USLetter) GPAPoints(score float64) float64 {
	s := clampScore(score)
	switch {
	case s >= 90:
		return 4.0
	case s >= 80:
		return 3.0
	case s >= 70:
		return 2.0
	case s >= 60:
		return 1.0
	default:
		return 0.0
	}
}

func (USLetter) Letter(score float64) string {
	return bandLetter(score)
}

func (USLetter) Status(score float64) string {
	if clampScore(score) >= 60 {
		return StatusPass
	}
	return StatusFail
}

func (USLetter) Score(letter string) float64 {
	return bandScore(letter)
}

func bandLetter(score float64) string {
	s := clampScore(score)
	switch {
	case s >= 90:
		return "A"
	case s >= 80:
		return "B"
	case s >= 70:
		return "C"
	case s >= 60:
		return "D"
	default:
		return "F"
	}
}

func bandScore(letter string) float64 {
	switch strings.ToUpper(strings.TrimSpace(letter)) {
	case "A":
		return 95
	case "B":
		return 85
	case "C":
		return 75
	case "D":
		return 65
	default:
		return 50
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
