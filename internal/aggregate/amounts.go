package aggregate

import (
	"fmt"
	"math/big"
)

const usdScale = 6

// FormatTokenAmount renders value scaled down by decimals.
func FormatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// USDValue returns amount / 10^decimals * price exactly.
func USDValue(amount *big.Int, decimals uint8, price *big.Rat) *big.Rat {
	if amount == nil || price == nil || price.Sign() == 0 {
		return new(big.Rat)
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Rat).SetFrac(amount, denom)
	return value.Mul(value, price)
}

// FormatUSD renders a USD value with fixed precision.
func FormatUSD(value *big.Rat) string {
	if value == nil {
		return new(big.Rat).FloatString(usdScale)
	}
	return value.FloatString(usdScale)
}

// USDCents floors a decimal USD string to whole cents.
func USDCents(usd string) (*big.Int, error) {
	if usd == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Rat).SetString(usd)
	if !ok {
		return nil, fmt.Errorf("invalid usd amount: %s", usd)
	}
	value.Mul(value, big.NewRat(100, 1))
	cents := new(big.Int).Quo(value.Num(), value.Denom())
	if value.Sign() < 0 && new(big.Int).Mul(cents, value.Denom()).Cmp(value.Num()) != 0 {
		cents.Sub(cents, big.NewInt(1))
	}
	return cents, nil
}
