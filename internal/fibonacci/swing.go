// Package fibonacci selects the High→Low swing the SHORT strategy trades
// against and classifies the current price into one of the entry cases.
package fibonacci

import (
	"fibonacci-trading-bot/internal/zigzag"
)

// Swing is a High→Low excursion anchoring the 0-100% retracement scale.
// The LOW is the literal lowest low of the bars after the HIGH, not
// necessarily a detected pivot.
type Swing struct {
	High zigzag.Pivot `json:"high"`
	Low  zigzag.Pivot `json:"low"`
}

// Range returns the swing height in price units.
func (s Swing) Range() float64 {
	return s.High.Price - s.Low.Price
}

// Level converts a fraction of the range into a price. Level(0) is the
// LOW, Level(1) the HIGH; fractions above 1 extend past the HIGH.
func (s Swing) Level(pct float64) float64 {
	return s.Low.Price + s.Range()*pct
}

// PctOf converts a price into its fraction of the range.
func (s Swing) PctOf(price float64) float64 {
	rng := s.Range()
	if rng <= 0 {
		return 0
	}
	return (price - s.Low.Price) / rng
}
