package stake

import "fmt"

// MiddleResult is the per-scenario outcome of a two-leg middle.
type MiddleResult struct {
	Allocation
	OnlyFirst  float64 `json:"only_first"`  // profit when only leg 0 wins
	OnlySecond float64 `json:"only_second"` // profit when only leg 1 wins
	BothWin    float64 `json:"both_win"`    // profit when the result lands in the middle
	HitProb    float64 `json:"hit_prob"`
	EV         float64 `json:"ev"`
}

// MiddleScenarios evaluates stakes on two overlapping lines. hitProb is the
// estimated probability the result lands inside the middle zone.
func MiddleScenarios(stakes []float64, odds []int, hitProb float64) (MiddleResult, error) {
	if len(odds) != 2 || len(stakes) != 2 {
		return MiddleResult{}, fmt.Errorf("stake: middle needs exactly 2 legs")
	}
	a, err := Evaluate(stakes, odds)
	if err != nil {
		return MiddleResult{}, err
	}
	if hitProb < 0 {
		hitProb = 0
	}
	if hitProb > 1 {
		hitProb = 1
	}
	res := MiddleResult{
		Allocation: a,
		OnlyFirst:  Round2(a.Returns[0] - a.TotalStake),
		OnlySecond: Round2(a.Returns[1] - a.TotalStake),
		BothWin:    Round2(a.Returns[0] + a.Returns[1] - a.TotalStake),
		HitProb:    hitProb,
	}
	single := (res.OnlyFirst + res.OnlySecond) / 2
	res.EV = Round2(hitProb*res.BothWin + (1-hitProb)*single)
	return res, nil
}

// GoodEVResult describes a single +EV bet.
type GoodEVResult struct {
	Stake        float64 `json:"stake"`
	Decimal      float64 `json:"decimal"`
	ImpliedProb  float64 `json:"implied_prob"`
	TrueWinRate  float64 `json:"true_win_rate"`
	EVPerBet     float64 `json:"ev_per_bet"`
	EVOverN      float64 `json:"ev_over_n"`
	N            int     `json:"n"`
	PotentialWin float64 `json:"potential_win"`
}

// GoodEV computes the true win rate p = (ev/100 + 1)/decimal and the
// expected value of staking stake n times.
func GoodEV(stake, evPct float64, american, n int) (GoodEVResult, error) {
	if stake <= 0 {
		return GoodEVResult{}, ErrInvalidStake
	}
	dec, err := AmericanToDecimal(american)
	if err != nil {
		return GoodEVResult{}, err
	}
	p := (evPct/100.0 + 1.0) / dec
	if p > 1 {
		p = 1
	}
	ev := stake * evPct / 100.0
	return GoodEVResult{
		Stake:        Round2(stake),
		Decimal:      dec,
		ImpliedProb:  1.0 / dec,
		TrueWinRate:  p,
		EVPerBet:     Round2(ev),
		EVOverN:      Round2(ev * float64(n)),
		N:            n,
		PotentialWin: Round2(stake * (dec - 1.0)),
	}, nil
}
