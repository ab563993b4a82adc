package stake

import (
	"math"

	"github.com/shopspring/decimal"
)

// SafeResult is the equal-return split of cashh across all outcomes.
type SafeResult struct {
	Stakes       []float64 `json:"stakes"`
	Returns      []float64 `json:"returns"`
	Profit       float64   `json:"profit"`
	ProfitPct    float64   `json:"profit_pct"` // theoretical margin, (1-S)/S*100
	ROIPct       float64   `json:"roi_pct"`    // realized from the rounded money
	HasArbitrage bool      `json:"has_arbitrage"`
	InverseSum   float64   `json:"inverse_sum"`
}

// SafeStakes splits cashh so every outcome returns the same amount.
// Stakes are computed even without an arbitrage so the loss-minimizing split can be shown.
// The rounding residue goes to the last stake so the stakes always sum to cashh.
func SafeStakes(cashh float64, odds []int) (SafeResult, error) {
	if cashh <= 0 || math.IsNaN(cashh) || math.IsInf(cashh, 0) {
		return SafeResult{}, ErrInvalidStake
	}
	decs, err := decimals(odds)
	if err != nil {
		return SafeResult{}, err
	}
	var s float64
	for _, d := range decs {
		s += 1.0 / d
	}

	total := decimal.NewFromFloat(cashh).Round(2)
	stakes := make([]float64, len(decs))
	returns := make([]float64, len(decs))
	allocated := decimal.Zero
	for i, d := range decs {
		raw := (cashh / s) * (1.0 / d)
		returns[i] = Round2(raw * d)
		if i == len(decs)-1 {
			stakes[i] = total.Sub(allocated).InexactFloat64()
			continue
		}
		st := decimal.NewFromFloat(raw).Round(2)
		allocated = allocated.Add(st)
		stakes[i] = st.InexactFloat64()
	}

	minReturn := returns[0]
	for _, r := range returns[1:] {
		if r < minReturn {
			minReturn = r
		}
	}
	profit := Round2(minReturn - cashh)
	roi, _ := ComputeROI(cashh, profit)

	res := SafeResult{
		Stakes:       stakes,
		Returns:      returns,
		Profit:       profit,
		ROIPct:       roi.Pct,
		HasArbitrage: s < 1.0,
		InverseSum:   s,
	}
	if s < 1.0 {
		res.ProfitPct = Round2((1.0 - s) / s * 100.0)
	}
	return res, nil
}

// Risk describes how much of cashh the unfavored side may lose.
// Amount takes precedence over Pct when both are set.
type Risk struct {
	Amount float64
	Pct    float64
}

// resolve passes negative and NaN inputs through so RiskedStakes rejects them.
func (r Risk) resolve(cashh float64) float64 {
	if r.Amount != 0 {
		return r.Amount
	}
	if r.Pct != 0 {
		return cashh * r.Pct / 100.0
	}
	return 0
}

// RiskedResult is a two-way split skewed toward one outcome.
type RiskedResult struct {
	Stakes     []float64 `json:"stakes"`
	Returns    []float64 `json:"returns"`
	Profits    []float64 `json:"profits"` // profit if outcome i wins
	RiskAmount float64   `json:"risk_amount"`
	RiskReward float64   `json:"risk_reward"` // risk / favored profit, 0 when undefined
	FavorIndex int       `json:"favor_index"`
}

// RiskedStakes allocates so the unfavored side returns cashh − risk and the rest
// backs the favored side.
func RiskedStakes(cashh float64, odds []int, risk Risk, favor int) (RiskedResult, error) {
	if cashh <= 0 || math.IsNaN(cashh) {
		return RiskedResult{}, ErrInvalidStake
	}
	if len(odds) != 2 {
		if len(odds) == 0 {
			return RiskedResult{}, ErrEmptyOdds
		}
		return RiskedResult{}, ErrInvalidFavor
	}
	if favor < 0 || favor > 1 {
		return RiskedResult{}, ErrInvalidFavor
	}
	decs, err := decimals(odds)
	if err != nil {
		return RiskedResult{}, err
	}
	amount := risk.resolve(cashh)
	if amount < 0 || amount >= cashh || math.IsNaN(amount) {
		return RiskedResult{}, ErrInvalidRisk
	}

	unfavored := 1 - favor
	stakes := make([]float64, 2)
	stakes[unfavored] = Round2((cashh - amount) / decs[unfavored])
	stakes[favor] = decimal.NewFromFloat(cashh).Round(2).Sub(decimal.NewFromFloat(stakes[unfavored])).InexactFloat64()

	returns := make([]float64, 2)
	profits := make([]float64, 2)
	for i := range stakes {
		returns[i] = Round2(stakes[i] * decs[i])
		profits[i] = Round2(returns[i] - cashh)
	}

	res := RiskedResult{
		Stakes:     stakes,
		Returns:    returns,
		Profits:    profits,
		RiskAmount: Round2(amount),
		FavorIndex: favor,
	}
	if profits[favor] > 0 {
		res.RiskReward = Round2(amount / profits[favor])
	}
	return res, nil
}

// BalancedStakes keeps the unfavored side at break-even and puts the whole surplus
// on the favored side.
func BalancedStakes(cashh float64, odds []int, favor int) (RiskedResult, error) {
	return RiskedStakes(cashh, odds, Risk{}, favor)
}

// Allocation is the outcome of a fixed set of stakes.
type Allocation struct {
	Stakes     []float64 `json:"stakes"`
	Returns    []float64 `json:"returns"`
	TotalStake float64   `json:"total_stake"`
	Profit     float64   `json:"profit"` // worst single-outcome profit
	ROIPct     float64   `json:"roi_pct"`
}

// Evaluate recomputes returns and worst-case profit for the given stakes,
// so displayed figures stay consistent after rounding.
func Evaluate(stakes []float64, odds []int) (Allocation, error) {
	decs, err := decimals(odds)
	if err != nil {
		return Allocation{}, err
	}
	if len(stakes) != len(decs) {
		return Allocation{}, ErrEmptyOdds
	}
	total := decimal.Zero
	for _, s := range stakes {
		total = total.Add(decimal.NewFromFloat(s))
	}
	totalF := total.Round(2).InexactFloat64()
	returns := make([]float64, len(stakes))
	minReturn := math.Inf(1)
	for i, s := range stakes {
		returns[i] = Round2(s * decs[i])
		if returns[i] < minReturn {
			minReturn = returns[i]
		}
	}
	a := Allocation{
		Stakes:     append([]float64(nil), stakes...),
		Returns:    returns,
		TotalStake: totalF,
		Profit:     Round2(minReturn - totalF),
	}
	if totalF > 0 {
		roi, _ := ComputeROI(totalF, a.Profit)
		a.ROIPct = roi.Pct
	}
	return a, nil
}
