package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Investor tracks whitelist status and the replay-protection nonce for one
// address. Revoking the whitelist does not invalidate existing investments.
type Investor struct {
	Address     common.Address `json:"address"`
	Whitelisted bool           `json:"whitelisted"`
	Name        string         `json:"name,omitempty"`
	// ActiveInvestments counts non-redeemed investments.
	ActiveInvestments int `json:"activeInvestments"`
	// NextNonce is the expected nonce of the next signed request.
	NextNonce uint64 `json:"nextNonce"`
}

// InvestmentRequest is a pending investment intent. A request with a zero
// UsdAmount is an empty slot.
type InvestmentRequest struct {
	UsdAmount *big.Int `json:"usdAmount"`
	// MinShares and MaxShares bound acceptable execution (18 decimals).
	// A nil MaxShares means unbounded.
	MinShares *big.Int `json:"minShares"`
	MaxShares *big.Int `json:"maxShares,omitempty"`
	Deadline  int64    `json:"deadline"`
	Nonce     uint64   `json:"nonce"`
	CreatedAt int64    `json:"createdAt"`
}

// Empty reports whether the slot holds no pending request.
func (r *InvestmentRequest) Empty() bool {
	return r == nil || isZero(r.UsdAmount)
}

// RedemptionRequest is a pending exit intent against one investment.
type RedemptionRequest struct {
	InvestmentID uint64   `json:"investmentId"`
	MinUsdOut    *big.Int `json:"minUsdOut"`
	Deadline     int64    `json:"deadline"`
	Nonce        uint64   `json:"nonce"`
	CreatedAt    int64    `json:"createdAt"`
}

// Empty reports whether the slot holds no pending request.
func (r *RedemptionRequest) Empty() bool {
	return r == nil || r.InvestmentID == 0
}

// Investment is the core ledger row. Cost-basis fields are immutable after
// creation; fee fields are mutated only by sweeps and redemption fields only
// by the redemption path. Redeemed investments are kept as historical
// records, never deleted.
type Investment struct {
	ID       uint64         `json:"id"`
	Investor common.Address `json:"investor"`

	// InitialUsdAmount is the 6-decimal cost basis.
	InitialUsdAmount *big.Int `json:"initialUsdAmount"`
	// InitialShares is the 18-decimal share amount minted at entry.
	InitialShares *big.Int `json:"initialShares"`
	// Shares is the current 18-decimal balance attributed to this
	// investment; it shrinks only via fee sweeps and redemption.
	Shares *big.Int `json:"shares"`
	// HighWaterMark is the highest 18-decimal USD value this investment has
	// been charged performance fees at. Monotonically non-decreasing.
	HighWaterMark *big.Int `json:"highWaterMark"`

	CreatedAt    int64 `json:"createdAt"`
	LastFeeSweep int64 `json:"lastFeeSweep"`

	ManagementFeeShares  *big.Int `json:"managementFeeShares"`
	PerformanceFeeShares *big.Int `json:"performanceFeeShares"`

	Redeemed          bool     `json:"redeemed"`
	RedeemedAt        int64    `json:"redeemedAt,omitempty"`
	RedeemedUsd       *big.Int `json:"redeemedUsd,omitempty"`
	TransferCompleted bool     `json:"transferCompleted,omitempty"`
	// Manual investments record migrated off-chain positions.
	Manual bool   `json:"manual,omitempty"`
	Note   string `json:"note,omitempty"`
}

// FeesSwept returns the cumulative fee shares taken from this investment.
func (inv *Investment) FeesSwept() *big.Int {
	total := clone(inv.ManagementFeeShares)
	return total.Add(total, inv.PerformanceFeeShares)
}
