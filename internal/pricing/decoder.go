// Package pricing turns concentrated-liquidity pool state into spot prices.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// SignificantDigits is the minimum precision carried by a decoded price.
const SignificantDigits = 40

// maxInputDigits bounds both the integer digits and the fractional places of
// a sqrtPriceX96 input. A uint160 has at most 49 digits.
const maxInputDigits = 256

// ErrDecode is returned when a sqrtPriceX96 value cannot be turned into a price.
var ErrDecode = errors.New("price decode failed")

var (
	q96    = new(big.Int).Lsh(big.NewInt(1), 96)
	q192   = new(big.Int).Lsh(big.NewInt(1), 192)
	ratOne = big.NewRat(1, 1)
)

// Pair names the pool's token0/token1 symbols.
type Pair struct {
	Token0 string
	Token1 string
}

// DefaultPair is the WETH/ARB pool the monitor was built around.
var DefaultPair = Pair{Token0: "WETH", Token1: "ARB"}

func (p Pair) String() string {
	return p.Token1 + "/" + p.Token0
}

// Q96 returns 2^96 as a decimal.
func Q96() decimal.Decimal {
	return decimal.NewFromBigInt(q96, 0)
}

// Decode converts a sqrtPriceX96 decimal string into a spot price.
//
// ratio = (sqrtPriceX96 / 2^96)^2 is computed exactly. For WETH/ARB the ratio
// is only inverted when it is below 1; every other pair is always inverted.
func Decode(sqrtPriceX96, token0, token1 string) (decimal.Decimal, error) {
	ratio, err := rawRatio(sqrtPriceX96)
	if err != nil {
		return decimal.Zero, err
	}
	if ratio.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: sqrtPriceX96 %q gives a zero ratio", ErrDecode, sqrtPriceX96)
	}

	if token0 == "WETH" && token1 == "ARB" {
		if ratio.Cmp(ratOne) < 0 {
			ratio.Inv(ratio)
		}
	} else {
		ratio.Inv(ratio)
	}

	return ratToDecimal(ratio, SignificantDigits), nil
}

// DecodePair is Decode with the symbols taken from p.
func DecodePair(sqrtPriceX96 string, p Pair) (decimal.Decimal, error) {
	return Decode(sqrtPriceX96, p.Token0, p.Token1)
}

// RawRatio returns (sqrtPriceX96 / 2^96)^2 without any orientation applied.
func RawRatio(sqrtPriceX96 string) (decimal.Decimal, error) {
	ratio, err := rawRatio(sqrtPriceX96)
	if err != nil {
		return decimal.Zero, err
	}
	return ratToDecimal(ratio, SignificantDigits), nil
}

// Float converts a decoded price for chart consumers. Non-finite or
// non-positive results are decode failures.
func Float(price decimal.Decimal) (float64, error) {
	f, _ := price.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) || f <= 0 {
		return 0, fmt.Errorf("%w: price %s is not representable", ErrDecode, price.String())
	}
	return f, nil
}

func rawRatio(sqrtPriceX96 string) (*big.Rat, error) {
	s := strings.TrimSpace(sqrtPriceX96)
	if s == "" {
		return nil, fmt.Errorf("%w: empty sqrtPriceX96", ErrDecode)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: parse sqrtPriceX96 %q: %v", ErrDecode, sqrtPriceX96, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative sqrtPriceX96 %q", ErrDecode, sqrtPriceX96)
	}
	// exponent notation like "1e99999999" would expand to a huge big.Int
	if exp := int(d.Exponent()); exp < -maxInputDigits || d.NumDigits()+exp > maxInputDigits {
		return nil, fmt.Errorf("%w: sqrtPriceX96 %q is out of range", ErrDecode, sqrtPriceX96)
	}

	r := d.Rat()
	r.Mul(r, r)
	return r.Quo(r, new(big.Rat).SetInt(q192)), nil
}

// ratToDecimal renders r with at least digits significant digits.
func ratToDecimal(r *big.Rat, digits int) decimal.Decimal {
	num := decimal.NewFromBigInt(r.Num(), 0)
	den := decimal.NewFromBigInt(r.Denom(), 0)

	places := digits - (decimalDigits(r.Num()) - decimalDigits(r.Denom())) + 1
	if places < 0 {
		places = 0
	}
	return num.DivRound(den, int32(places))
}

func decimalDigits(x *big.Int) int {
	return len(new(big.Int).Abs(x).String())
}
