package market

import "testing"

func bars4h(prices ...[4]float64) []Bar {
	out := make([]Bar, len(prices))
	for i, p := range prices {
		out[i] = Bar{
			Time: int64(i) * 14400,
			Open: p[0], High: p[1], Low: p[2], Close: p[3],
		}
	}
	return out
}

func TestIntervalInferred(t *testing.T) {
	s := NewSeries([]Bar{
		{Time: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Time: 1300, Open: 1.5, High: 2.5, Low: 1, Close: 2},
	})

	if got := s.Interval(); got != 300 {
		t.Errorf("Expected interval 300, got %d", got)
	}

	empty := NewSeries(nil)
	if got := empty.Interval(); got != 0 {
		t.Errorf("Expected 0 interval for empty series, got %d", got)
	}
}

func TestIndexAtContainingBar(t *testing.T) {
	s := NewSeries(bars4h(
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 102, 99, 101},
		[4]float64{101, 103, 100, 102},
	))

	// Mid-bar timestamp resolves to the containing bar.
	if got := s.IndexAt(14400 + 7200); got != 1 {
		t.Errorf("Expected index 1 for mid-bar time, got %d", got)
	}

	// Exact open time.
	if got := s.IndexAt(0); got != 0 {
		t.Errorf("Expected index 0, got %d", got)
	}

	// Past the final bar's interval.
	if got := s.IndexAt(3 * 14400); got != -1 {
		t.Errorf("Expected -1 for time past series end, got %d", got)
	}
}

func TestIndexAtGapFallsForward(t *testing.T) {
	// Gap between bar 1 and bar 2 (one interval missing).
	s := NewSeries([]Bar{
		{Time: 0, High: 1, Low: 0},
		{Time: 100, High: 1, Low: 0},
		{Time: 300, High: 1, Low: 0},
	})

	if got := s.IndexAt(250); got != 2 {
		t.Errorf("Expected gap time to resolve to next bar (2), got %d", got)
	}
}

func TestLowestLowAfter(t *testing.T) {
	s := NewSeries(bars4h(
		[4]float64{100, 105, 95, 100},
		[4]float64{100, 102, 90, 95},
		[4]float64{95, 98, 85, 90},
		[4]float64{90, 96, 88, 92},
	))

	if got := s.LowestLowAfter(0); got != 2 {
		t.Errorf("Expected lowest low at index 2, got %d", got)
	}
	if got := s.LowestLowAfter(3); got != -1 {
		t.Errorf("Expected -1 when nothing follows, got %d", got)
	}
}

func TestAnyHighAtOrAbove(t *testing.T) {
	s := NewSeries(bars4h(
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 110, 99, 105},
		[4]float64{105, 106, 100, 102},
	))

	if !s.AnyHighAtOrAbove(0, 2, 110) {
		t.Error("Expected touch at 110")
	}
	if s.AnyHighAtOrAbove(2, 2, 110) {
		t.Error("Did not expect touch at 110 in last bar only")
	}
	// Range clamping must not panic or change the result.
	if !s.AnyHighAtOrAbove(-5, 99, 110) {
		t.Error("Expected clamped range to still find the touch")
	}
}
