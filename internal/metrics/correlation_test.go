package metrics

import (
	"math"
	"testing"
)

func TestCorrelationPerfectPositive(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	ys := []float64{10, 20, 30, 40}
	if got := Correlation(xs, ys); math.Abs(got-1) > 1e-9 {
		t.Fatalf("correlation: want=1 got=%v", got)
	}
}

func TestCorrelationPerfectNegative(t *testing.T) {
	xs := []float64{1, 2, 3}
	ys := []float64{9, 6, 3}
	if got := Correlation(xs, ys); math.Abs(got+1) > 1e-9 {
		t.Fatalf("correlation: want=-1 got=%v", got)
	}
}

func TestCorrelationBounds(t *testing.T) {
	xs := []float64{0.4, 0.9, 0.1, 0.75, 0.62, 0.33}
	ys := []float64{55, 88, 42, 70, 91, 50}
	got := Correlation(xs, ys)
	if got < -1 || got > 1 {
		t.Fatalf("correlation out of [-1,1]: got=%v", got)
	}
	if got == 0 {
		t.Fatalf("correlation of varying series should be non-zero")
	}
}

func TestCorrelationConstantSeries(t *testing.T) {
	xs := []float64{5, 5, 5, 5}
	ys := []float64{1, 2, 3, 4}
	if got := Correlation(xs, ys); got != 0 {
		t.Fatalf("correlation with zero x variance: want=0 got=%v", got)
	}
	if got := Correlation(ys, xs); got != 0 {
		t.Fatalf("correlation with zero y variance: want=0 got=%v", got)
	}
}

func TestCorrelationDegenerateInputs(t *testing.T) {
	if got := Correlation(nil, nil); got != 0 {
		t.Fatalf("correlation of empty series: want=0 got=%v", got)
	}
	if got := Correlation([]float64{1}, []float64{2}); got != 0 {
		t.Fatalf("correlation of single pair: want=0 got=%v", got)
	}
	if got := Correlation([]float64{1, 2, 3}, []float64{1, 2}); got != 0 {
		t.Fatalf("correlation of mismatched lengths: want=0 got=%v", got)
	}
}
