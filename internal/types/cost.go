package types

import "github.com/shopspring/decimal"

// Cost is the native token spend of an automation config, excluding gas
type Cost struct {
	PerMinute string `json:"perMinute"`
	PerHour   string `json:"perHour"`
}

var sixty = decimal.NewFromInt(60)

// CalculateCost returns the spend per minute and per hour for rate bets of betSize each
func CalculateCost(rate int, betSize decimal.Decimal) Cost {
	perMinute := decimal.NewFromInt(int64(rate)).Mul(betSize)
	return Cost{
		PerMinute: perMinute.StringFixed(4),
		PerHour:   perMinute.Mul(sixty).StringFixed(4),
	}
}
