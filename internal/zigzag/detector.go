// Package zigzag reduces a bar series to an alternating sequence of
// high/low pivots, filtering noise below a configured deviation.
package zigzag

import (
	"math"
	"sort"

	"fibonacci-trading-bot/internal/market"
)

// Kind marks a pivot as a local maximum or minimum.
type Kind string

const (
	KindHigh Kind = "HIGH"
	KindLow  Kind = "LOW"
)

// Pivot is a surviving local extremum.
type Pivot struct {
	Index int     `json:"index"`
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
	Kind  Kind    `json:"kind"`
}

// Config holds the detection parameters for one timeframe. Deviation is the
// minimum reversal between opposite pivots, in percent. Depth is the window
// half-width a bar must dominate to qualify as a candidate.
type Config struct {
	Deviation float64
	Depth     int
}

// Detect scans the series for local extrema and reduces them to an
// alternating pivot skeleton. A series shorter than 2*depth yields nil.
func Detect(series *market.Series, cfg Config) []Pivot {
	n := series.Len()
	depth := cfg.Depth
	if depth < 1 || n < 2*depth {
		return nil
	}

	candidates := collectCandidates(series, depth)
	if len(candidates) == 0 {
		return nil
	}

	pivots := reduce(candidates, cfg.Deviation/100)

	// The backstep correction can reorder entries; restore index order
	// before enforcing alternation.
	sort.Slice(pivots, func(i, j int) bool { return pivots[i].Index < pivots[j].Index })

	return enforceAlternation(pivots)
}

// collectCandidates finds bars whose high (low) strictly dominates every
// other high (low) inside the [i-depth, i+depth] window. Border bars are
// excluded because their windows are truncated.
func collectCandidates(series *market.Series, depth int) []Pivot {
	n := series.Len()
	var candidates []Pivot

	for i := depth; i < n-depth; i++ {
		bar := series.Bar(i)
		isHigh := true
		isLow := true

		for j := i - depth; j <= i+depth; j++ {
			if j == i {
				continue
			}
			other := series.Bar(j)
			if other.High >= bar.High {
				isHigh = false
			}
			if other.Low <= bar.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			candidates = append(candidates, Pivot{Index: i, Time: bar.Time, Price: bar.High, Kind: KindHigh})
		}
		if isLow {
			candidates = append(candidates, Pivot{Index: i, Time: bar.Time, Price: bar.Low, Kind: KindLow})
		}
	}

	return candidates
}

// reduce walks the candidates with a running pivot. A same-kind candidate
// replaces the running pivot only when more extreme, letting an in-progress
// extreme grow before it is fixed. An opposite-kind candidate must clear the
// deviation gate; a rejected one may still correct the pivot two positions
// back (backstep).
func reduce(candidates []Pivot, deviation float64) []Pivot {
	pivots := []Pivot{candidates[0]}

	for _, c := range candidates[1:] {
		last := &pivots[len(pivots)-1]

		if c.Kind == last.Kind {
			if moreExtreme(c, *last) {
				*last = c
			}
			continue
		}

		if relativeChange(c.Price, last.Price) >= deviation {
			pivots = append(pivots, c)
			continue
		}

		// Backstep: the reversal is too shallow to stand on its own, but
		// it may still deepen the previous pivot of its own kind.
		if len(pivots) >= 2 {
			prev := &pivots[len(pivots)-2]
			if prev.Kind == c.Kind && moreExtreme(c, *prev) {
				*prev = c
			}
		}
	}

	return pivots
}

// enforceAlternation collapses adjacent same-kind pivots to the more
// extreme one so the result strictly alternates HIGH/LOW.
func enforceAlternation(pivots []Pivot) []Pivot {
	if len(pivots) == 0 {
		return nil
	}

	out := []Pivot{pivots[0]}
	for _, p := range pivots[1:] {
		last := &out[len(out)-1]
		if p.Kind == last.Kind {
			if moreExtreme(p, *last) {
				*last = p
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func moreExtreme(candidate, current Pivot) bool {
	if candidate.Kind == KindHigh {
		return candidate.Price > current.Price
	}
	return candidate.Price < current.Price
}

func relativeChange(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return math.Abs(a-b) / math.Abs(b)
}
