package ledger

import "math/big"

// Numeric conventions. USD amounts carry the stablecoin's native 6 decimals,
// share amounts and prices carry 18. All intermediate products are computed
// in big.Int before dividing down, and division truncates toward zero. Fee
// and price computations must share this exact rounding policy.

const (
	// UsdDecimals is the stablecoin's native precision.
	UsdDecimals = 6
	// ShareDecimals is the precision of share amounts and prices.
	ShareDecimals = 18
	// SecondsPerYear prorates annual fee rates (365-day year).
	SecondsPerYear = 31_536_000
)

var (
	basisPoints = big.NewInt(10_000)
	// wad is one unit in 18-decimal fixed point.
	wad = mustBigInt("1000000000000000000")
	// usdToWad lifts a 6-decimal USD amount to 18 decimals.
	usdToWad = big.NewInt(1_000_000_000_000)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes floor(a*b/d). d must be non-zero.
func mulDiv(a, b, d *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, d)
}

// usdWad lifts a 6-decimal USD amount into 18-decimal fixed point.
func usdWad(usd *big.Int) *big.Int {
	return new(big.Int).Mul(usd, usdToWad)
}

// wadUsd drops an 18-decimal USD value back to the stablecoin's 6 decimals,
// truncating toward zero.
func wadUsd(value *big.Int) *big.Int {
	return new(big.Int).Quo(value, usdToWad)
}

// bpsOf computes floor(amount*bps/10000).
func bpsOf(amount *big.Int, bps uint32) *big.Int {
	return mulDiv(amount, big.NewInt(int64(bps)), basisPoints)
}

func clone(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(x)
}

func isZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}
