package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// Property: hourly cost is always sixty times the per-minute cost for bets with at most 4 decimals
func TestCalculateCostProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("perHour equals 60 x perMinute", prop.ForAll(
		func(rate int, milli int64) bool {
			bet := decimal.New(milli, -4)
			cost := CalculateCost(rate, bet)
			perMinute := decimal.RequireFromString(cost.PerMinute)
			perHour := decimal.RequireFromString(cost.PerHour)
			return perHour.Equal(perMinute.Mul(decimal.NewFromInt(60)))
		},
		gen.IntRange(MinRate, MaxRate),
		gen.Int64Range(1, 1000000),
	))

	properties.Property("every valid rate yields a positive interval of at least two seconds", prop.ForAll(
		func(rate int) bool {
			cfg := DefaultAutomationConfig()
			cfg.Rate = rate
			return cfg.Validate() == nil && cfg.Interval().Seconds() >= 2
		},
		gen.IntRange(MinRate, MaxRate),
	))

	properties.TestingRun(t)
}
