package grading

import (
	"math"
	"testing"
)

func TestLinear4GPAPoints(t *testing.T) {
	cases := []struct {
		score float64
		want  float64
	}{
		{0, 0},
		{50, 2.0},
		{90, 3.6},
		{100, 4.0},
		{120, 4.0}, // clamped
		{-5, 0},    // clamped
	}
	for _, tc := range cases {
		if got := (Linear4{}).GPAPoints(tc.score); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Linear4.GPAPoints(%v): want=%v got=%v", tc.score, tc.want, got)
		}
	}
}

func TestUSLetterBands(t *testing.T) {
	p := USLetter{}
	cases := []struct {
		score  float64
		letter string
		points float64
	}{
		{95, "A", 4.0},
		{85, "B", 3.0},
		{75, "C", 2.0},
		{65, "D", 1.0},
		{30, "F", 0.0},
	}
	for _, tc := range cases {
		if got := p.Letter(tc.score); got != tc.letter {
			t.Fatalf("USLetter.Letter(%v): want=%q got=%q", tc.score, tc.letter, got)
		}
		if got := p.GPAPoints(tc.score); got != tc.points {
			t.Fatalf("USLetter.GPAPoints(%v): want=%v got=%v", tc.score, tc.points, got)
		}
	}
}

func TestStatusThreshold(t *testing.T) {
	for _, p := range []Policy{Linear4{}, FivePoint{}, USLetter{}} {
		if got := p.Status(60); got != StatusPass {
			t.Fatalf("Status(60): want=pass got=%q", got)
		}
		if got := p.Status(59.9); got != StatusFail {
			t.Fatalf("Status(59.9): want=fail got=%q", got)
		}
	}
}

func TestForSystemFallback(t *testing.T) {
	if _, ok := ForSystem("fivepoint").(FivePoint); !ok {
		t.Fatalf("ForSystem(fivepoint): wrong policy type")
	}
	if _, ok := ForSystem("us_letter").(USLetter); !ok {
		t.Fatalf("ForSystem(us_letter): wrong policy type")
	}
	if _, ok := ForSystem("something-unknown").(Linear4); !ok {
		t.Fatalf("ForSystem(unknown): want Linear4 fallback")
	}
}
