package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quote is the latest known price on one exchange.
type Quote struct {
	Exchange string
	Price    decimal.Decimal
}

// Opportunity describes a price gap between two exchanges large enough to act on.
type Opportunity struct {
	Buy               string
	Sell              string
	DifferencePercent decimal.Decimal
}

func (o Opportunity) String() string {
	return fmt.Sprintf("buy %s / sell %s (%s%%)", o.Buy, o.Sell, o.DifferencePercent.StringFixed(2))
}

var hundred = decimal.NewFromInt(100)

// DifferencePercent returns (a - b) / b * 100 rounded to two places.
func DifferencePercent(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: zero reference price", ErrDecode)
	}
	diff := a.Sub(b).DivRound(b, SignificantDigits).Mul(hundred)
	return diff.Round(2), nil
}

// DetermineDirection compares two quotes. When first is priced at least
// threshold percent above second, the route buys on first and sells on second;
// at or below -threshold the route is reversed. Otherwise ok is false.
func DetermineDirection(first, second Quote, threshold decimal.Decimal) (opp Opportunity, ok bool, err error) {
	diff, err := DifferencePercent(first.Price, second.Price)
	if err != nil {
		return Opportunity{}, false, err
	}

	switch {
	case diff.GreaterThanOrEqual(threshold):
		return Opportunity{Buy: first.Exchange, Sell: second.Exchange, DifferencePercent: diff}, true, nil
	case diff.LessThanOrEqual(threshold.Neg()):
		return Opportunity{Buy: second.Exchange, Sell: first.Exchange, DifferencePercent: diff}, true, nil
	default:
		return Opportunity{DifferencePercent: diff}, false, nil
	}
}
