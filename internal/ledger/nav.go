package ledger

import "math/big"

// NAVMark is one entry of the append-only NAV history. Price is derived from
// AUM and supply at the mark with the ledger's shared rounding policy.
type NAVMark struct {
	// Aum is the manager-attested 6-decimal stablecoin value backing the fund.
	Aum *big.Int `json:"aum"`
	// Supply is the observable share supply at the mark (18 decimals).
	Supply *big.Int `json:"supply"`
	// Price is 18-decimal USD per share.
	Price *big.Int `json:"price"`
	// TotalCapital is the cumulative 6-decimal stablecoin ever contributed.
	TotalCapital *big.Int `json:"totalCapital"`
	Timestamp    int64    `json:"timestamp"`
}

// priceFor derives the 18-decimal share price from a 6-decimal AUM and an
// 18-decimal supply: price = aum*1e12*1e18/supply, floor-divided.
func priceFor(aum, supply *big.Int) *big.Int {
	if isZero(supply) {
		return big.NewInt(0)
	}
	return mulDiv(usdWad(aum), wad, supply)
}

// sharesForUsd computes the shares minted for a 6-decimal USD contribution at
// the given mark: usd*supply/aum, the exact proportional-ownership formula.
// With zero supply the initial share price applies instead.
func sharesForUsd(usd, aum, supply, initialPrice *big.Int) *big.Int {
	if isZero(supply) || isZero(aum) {
		return mulDiv(usdWad(usd), wad, initialPrice)
	}
	return mulDiv(usdWad(usd), supply, usdWad(aum))
}

// usdForShares computes the 18-decimal USD value of a share amount at the
// given mark: shares*aum/supply.
func usdForShares(shares, aum, supply *big.Int) *big.Int {
	if isZero(supply) {
		return big.NewInt(0)
	}
	return mulDiv(shares, usdWad(aum), supply)
}
