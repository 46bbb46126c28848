package advisor

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultKellyFraction is used wherever a portfolio carries no Kelly fraction.
const DefaultKellyFraction = 0.5

// DefaultRiskScore is reported to the model when an assessment has no score.
const DefaultRiskScore = 50

// PositionsValue sums quantity × avg_price across positions.
func PositionsValue(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.AvgPrice)))
	}
	return total
}

func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func formatFixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// formatFraction renders a 0..1 fraction as a whole percent number.
func formatFraction(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(0)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
