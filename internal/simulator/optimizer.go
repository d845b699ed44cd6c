package simulator

import (
	"math"
	"sync"

	"fibonacci-trading-bot/internal/market"
)

// GridConfig bounds a TP/SL sweep. All values are fractions of the
// swing range; Step defaults to half a percent.
type GridConfig struct {
	TPMin   float64 `json:"tp_min"`
	TPMax   float64 `json:"tp_max"`
	SLMin   float64 `json:"sl_min"`
	SLMax   float64 `json:"sl_max"`
	Step    float64 `json:"step"`
	Workers int     `json:"workers"`
}

// GridPoint is one simulated TP/SL combination.
type GridPoint struct {
	TPPct  float64 `json:"tp_pct"`
	SLPct  float64 `json:"sl_pct"`
	Result Result  `json:"result"`
}

// Optimizer sweeps TP/SL combinations over one position's bar history.
// Instead of rescanning bars per combination it precomputes the first
// touch time of every candidate level once, then resolves each grid
// point from two lookups.
type Optimizer struct {
	path *PathSimulator
}

func NewOptimizer(path *PathSimulator) *Optimizer {
	return &Optimizer{path: path}
}

// Optimize evaluates every TP/SL pair in the grid against the
// position's swing. Points come back in deterministic TP-major order
// regardless of worker scheduling.
func (o *Optimizer) Optimize(pos Position, grid GridConfig, series *market.Series) []GridPoint {
	if series.Len() == 0 {
		return nil
	}

	step := grid.Step
	if step <= 0 {
		step = 0.005
	}
	workers := grid.Workers
	if workers <= 0 {
		workers = 4
	}

	tpPcts := gridSteps(grid.TPMin, grid.TPMax, step)
	slPcts := gridSteps(grid.SLMin, grid.SLMax, step)
	if len(tpPcts) == 0 || len(slPcts) == 0 {
		return nil
	}

	start := series.IndexAt(pos.OpenedAt)
	if start < 0 {
		start = series.Len() - 1
	}

	tpTouch := make(map[float64]touchTime, len(tpPcts))
	slTouch := make(map[float64]touchTime, len(slPcts))
	for _, pct := range tpPcts {
		tpTouch[pct] = firstTouch(series, start, pos.Level(pct), false)
	}
	for _, pct := range slPcts {
		slTouch[pct] = firstTouch(series, start, pos.Level(pct), true)
	}

	points := make([]GridPoint, len(tpPcts)*len(slPcts))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				tpPct := tpPcts[idx/len(slPcts)]
				slPct := slPcts[idx%len(slPcts)]
				points[idx] = GridPoint{
					TPPct:  tpPct,
					SLPct:  slPct,
					Result: o.resolve(pos, tpPct, slPct, tpTouch[tpPct], slTouch[slPct], series),
				}
			}
		}()
	}
	for i := range points {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return points
}

// Best returns the grid point with the highest net PnL among decided
// outcomes, and false when every point was still running or had no data.
func Best(points []GridPoint) (GridPoint, bool) {
	best := GridPoint{}
	found := false
	for _, p := range points {
		if p.Result.Status != StatusTP && p.Result.Status != StatusSL {
			continue
		}
		if !found || p.Result.NetPnl > best.Result.NetPnl {
			best = p
			found = true
		}
	}
	return best, found
}

// touchTime is the first bar time a level was reached, if ever.
type touchTime struct {
	at int64
	ok bool
}

// resolve turns two first-touch times into the same outcome a full bar
// scan would produce. Equal times mean both levels were touched in one
// bar, which resolves as the stop.
func (o *Optimizer) resolve(pos Position, tpPct, slPct float64, tpTouch, slTouch touchTime, series *market.Series) Result {
	tpPrice := pos.Level(tpPct)
	slPrice := pos.Level(slPct)
	qty := o.path.Quantity(pos.EntryPrice, tpPrice)

	switch {
	case slTouch.ok && (!tpTouch.ok || slTouch.at <= tpTouch.at):
		return o.path.outcome(pos, StatusSL, slTouch.at, slPrice, qty)
	case tpTouch.ok:
		return o.path.outcome(pos, StatusTP, tpTouch.at, tpPrice, qty)
	}

	last, _ := series.Last()
	if last.Close >= slPrice {
		return o.path.outcome(pos, StatusSL, last.Time, slPrice, qty)
	}
	if last.Close <= tpPrice {
		return o.path.outcome(pos, StatusTP, last.Time, tpPrice, qty)
	}

	floating := (pos.EntryPrice - last.Close) * qty
	return Result{
		Status:         StatusRunning,
		ReferencePrice: last.Close,
		Quantity:       qty,
		GrossPnl:       floating,
		NetPnl:         floating,
	}
}

// firstTouch finds the first bar from start whose high (above=true) or
// low (above=false) reaches price.
func firstTouch(series *market.Series, start int, price float64, above bool) touchTime {
	for i := start; i < series.Len(); i++ {
		bar := series.Bar(i)
		if above && bar.High >= price {
			return touchTime{at: bar.Time, ok: true}
		}
		if !above && bar.Low <= price {
			return touchTime{at: bar.Time, ok: true}
		}
	}
	return touchTime{}
}

func gridSteps(min, max, step float64) []float64 {
	if max < min {
		return nil
	}
	var out []float64
	for pct := min; pct <= max+1e-9; pct += step {
		out = append(out, math.Round(pct*1e6)/1e6)
	}
	return out
}
