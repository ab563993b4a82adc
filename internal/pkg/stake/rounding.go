package stake

import (
	"github.com/shopspring/decimal"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

// RoundStake snaps v to unit (0 = cents) using mode.
func RoundStake(v float64, unit int, mode models.RoundingMode) float64 {
	d := decimal.NewFromFloat(v)
	if unit <= 0 {
		return d.Round(2).InexactFloat64()
	}
	u := decimal.NewFromInt(int64(unit))
	q := d.Div(u)
	switch mode {
	case models.RoundDown:
		q = q.Floor()
	case models.RoundUp:
		q = q.Ceil()
	default:
		q = q.Round(0)
	}
	return q.Mul(u).InexactFloat64()
}

// RoundStakes applies RoundStake to every stake.
func RoundStakes(stakes []float64, unit int, mode models.RoundingMode) []float64 {
	out := make([]float64, len(stakes))
	for i, s := range stakes {
		out[i] = RoundStake(s, unit, mode)
	}
	return out
}
