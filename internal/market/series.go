// Package market holds the bar data model shared by every analysis stage.
package market

// Bar is a single OHLC candle. Time is unix seconds of the bar open.
type Bar struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Series is an ascending, time-unique sequence of bars for one instrument.
// All analysis stages treat a Series as immutable: they read it and return
// fresh values, never modify it.
type Series struct {
	bars []Bar
}

// NewSeries wraps bars that are already sorted ascending by time.
// Exchange and store layers guarantee ordering; Series does not re-sort.
func NewSeries(bars []Bar) *Series {
	return &Series{bars: bars}
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bars)
}

// Bar returns the bar at index i. Callers must bound-check with Len.
func (s *Series) Bar(i int) Bar {
	return s.bars[i]
}

// Bars exposes the underlying slice for read-only iteration.
func (s *Series) Bars() []Bar {
	if s == nil {
		return nil
	}
	return s.bars
}

// Last returns the most recent bar and false when the series is empty.
func (s *Series) Last() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Interval infers the nominal bar interval in seconds from the first two
// bars. A series with fewer than two bars has no measurable interval.
func (s *Series) Interval() int64 {
	if s.Len() < 2 {
		return 0
	}
	return s.bars[1].Time - s.bars[0].Time
}

// IndexAt locates the bar whose interval contains t. When t falls in a gap
// it returns the first bar at or after t. Returns -1 when t is past the end
// of the series.
func (s *Series) IndexAt(t int64) int {
	n := s.Len()
	if n == 0 {
		return -1
	}
	interval := s.Interval()
	for i := 0; i < n; i++ {
		bt := s.bars[i].Time
		if interval > 0 && t >= bt && t < bt+interval {
			return i
		}
		if bt >= t {
			return i
		}
	}
	return -1
}

// LowestLowAfter returns the index of the single lowest low strictly after
// index from. Returns -1 when no bars follow.
func (s *Series) LowestLowAfter(from int) int {
	n := s.Len()
	if from+1 >= n {
		return -1
	}
	lowest := from + 1
	for i := from + 2; i < n; i++ {
		if s.bars[i].Low < s.bars[lowest].Low {
			lowest = i
		}
	}
	return lowest
}

// AnyHighAtOrAbove reports whether any bar in [from, to] (inclusive,
// clamped to the series) has a high at or above price.
func (s *Series) AnyHighAtOrAbove(from, to int, price float64) bool {
	if from < 0 {
		from = 0
	}
	if to >= s.Len() {
		to = s.Len() - 1
	}
	for i := from; i <= to; i++ {
		if s.bars[i].High >= price {
			return true
		}
	}
	return false
}
