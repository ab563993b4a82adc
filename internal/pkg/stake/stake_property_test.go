package stake

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSafeStakesProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("arbitrage split returns equal amounts and sums to cashh", prop.ForAll(
		func(a, b, cashh int) bool {
			odds := []int{a, b}
			res, err := SafeStakes(float64(cashh), odds)
			if err != nil || !res.HasArbitrage {
				return false
			}
			sum := res.Stakes[0] + res.Stakes[1]
			if math.Abs(sum-float64(cashh)) > 1e-6 {
				return false
			}
			if math.Abs(res.Returns[0]-res.Returns[1]) > 0.01+1e-9 {
				return false
			}
			if math.Abs(res.Profit-(res.Returns[0]-float64(cashh))) > 0.01+1e-9 {
				return false
			}
			return res.Profit > 0
		},
		gen.IntRange(105, 600),
		gen.IntRange(105, 600),
		gen.IntRange(10, 20000),
	))

	properties.Property("no arbitrage still normalizes stakes", prop.ForAll(
		func(a, b, cashh int) bool {
			res, err := SafeStakes(float64(cashh), []int{a, b})
			if err != nil {
				return false
			}
			sum := res.Stakes[0] + res.Stakes[1]
			return !res.HasArbitrage && res.Profit <= 0 && math.Abs(sum-float64(cashh)) <= 1e-6
		},
		gen.IntRange(-600, -101),
		gen.IntRange(-600, -101),
		gen.IntRange(10, 20000),
	))

	properties.TestingRun(t)
}
