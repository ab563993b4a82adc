// Package stake holds the pure stake-allocation math used by alert rendering.
// Everything here is side-effect free; monetary outputs are rounded to cents.
package stake

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyOdds    = errors.New("stake: odds are empty")
	ErrZeroOdds     = errors.New("stake: american odds cannot be 0")
	ErrInvalidStake = errors.New("stake: cashh must be positive")
	ErrInvalidRisk  = errors.New("stake: invalid risk")
	ErrInvalidFavor = errors.New("stake: favor index out of range")
)

// AmericanToDecimal converts American odds to decimal odds.
// American +150 → Decimal 2.50
// American -200 → Decimal 1.50
func AmericanToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, ErrZeroOdds
	}
	if american > 0 {
		return float64(american)/100.0 + 1.0, nil
	}
	return 100.0/math.Abs(float64(american)) + 1.0, nil
}

// DecimalToAmerican converts decimal odds back to American odds.
func DecimalToAmerican(dec float64) (int, error) {
	if dec <= 1.0 || math.IsNaN(dec) || math.IsInf(dec, 0) {
		return 0, fmt.Errorf("stake: invalid decimal odds %v", dec)
	}
	if dec >= 2.0 {
		return int(math.Round((dec - 1.0) * 100.0)), nil
	}
	return int(math.Round(-100.0 / (dec - 1.0))), nil
}

func decimals(odds []int) ([]float64, error) {
	if len(odds) == 0 {
		return nil, ErrEmptyOdds
	}
	out := make([]float64, len(odds))
	for i, a := range odds {
		d, err := AmericanToDecimal(a)
		if err != nil {
			return nil, fmt.Errorf("outcome %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// InverseSum returns S = Σ 1/decimal(oᵢ).
func InverseSum(odds []int) (float64, error) {
	decs, err := decimals(odds)
	if err != nil {
		return 0, err
	}
	var s float64
	for _, d := range decs {
		s += 1.0 / d
	}
	return s, nil
}

// HasArbitrage reports whether the outcome set guarantees a profit.
func HasArbitrage(odds []int) (bool, error) {
	s, err := InverseSum(odds)
	if err != nil {
		return false, err
	}
	return s < 1.0, nil
}

// ArbitragePercent returns (1 − S)/S · 100, or 0 when no arbitrage exists.
func ArbitragePercent(odds []int) (float64, error) {
	s, err := InverseSum(odds)
	if err != nil {
		return 0, err
	}
	if s >= 1.0 {
		return 0, nil
	}
	return (1.0 - s) / s * 100.0, nil
}

// ROI is a return on investment expressed both ways.
type ROI struct {
	Decimal float64 `json:"roi_decimal"`
	Pct     float64 `json:"roi_pct"`
}

// ComputeROI returns profit relative to cashh.
func ComputeROI(cashh, profit float64) (ROI, error) {
	if cashh <= 0 || math.IsNaN(cashh) {
		return ROI{}, ErrInvalidStake
	}
	r := profit / cashh
	return ROI{Decimal: r, Pct: Round2(r * 100.0)}, nil
}

// Round2 rounds half away from zero to cents.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
