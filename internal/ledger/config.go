package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol-wide fee ceilings, in basis points.
const (
	MaxManagementFeeBps  = 500
	MaxPerformanceFeeBps = 5000
)

// FundConfig is the immutable per-fund configuration fixed at creation.
type FundConfig struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	LogoURL string `json:"logoUrl,omitempty"`

	// Address identifies the fund as an EIP-712 permit spender.
	Address common.Address `json:"address"`
	// Manager is the only caller allowed on manager entrypoints.
	Manager common.Address `json:"manager"`
	// FeeRecipient receives withdrawn fees.
	FeeRecipient common.Address `json:"feeRecipient"`

	// ManagementFeeBps accrues per year, prorated by elapsed seconds.
	ManagementFeeBps uint32 `json:"managementFeeBps"`
	// PerformanceFeeBps applies to gains above the per-investment high-water mark.
	PerformanceFeeBps uint32 `json:"performanceFeeBps"`
	// FeeCapBps bounds lifetime fee shares per investment as a fraction of its
	// initial share amount. Zero disables the cap.
	FeeCapBps uint32 `json:"feeCapBps"`

	// MinInvestmentUsd is 6-decimal stablecoin units.
	MinInvestmentUsd *big.Int `json:"minInvestmentUsd"`
	// InitialSharePrice is 18-decimal USD per share, used while supply is zero.
	InitialSharePrice *big.Int `json:"initialSharePrice"`

	// LockupPeriod must elapse after an investment before a redemption
	// request may be filed against it.
	LockupPeriod time.Duration `json:"lockupPeriod"`
	// RedemptionNoticePeriod must elapse after a redemption request before
	// the manager may process it.
	RedemptionNoticePeriod time.Duration `json:"redemptionNoticePeriod"`
	// FeeSweepInterval is the minimum spacing between fee sweeps on one
	// investment.
	FeeSweepInterval time.Duration `json:"feeSweepInterval"`
	// NavMarkInterval is the minimum spacing between NAV marks.
	NavMarkInterval time.Duration `json:"navMarkInterval"`

	// BypassWhitelist lets any address file investment requests.
	BypassWhitelist bool `json:"bypassWhitelist"`
}

// Validate checks the configuration against protocol limits.
func (c *FundConfig) Validate() error {
	if c.Name == "" || c.Symbol == "" {
		return ErrInvalidConfig
	}
	if c.Manager == (common.Address{}) || c.FeeRecipient == (common.Address{}) {
		return ErrInvalidConfig
	}
	if c.ManagementFeeBps > MaxManagementFeeBps || c.PerformanceFeeBps > MaxPerformanceFeeBps {
		return ErrInvalidConfig
	}
	if isZero(c.InitialSharePrice) || c.InitialSharePrice.Sign() <= 0 {
		return ErrInvalidConfig
	}
	if c.MinInvestmentUsd != nil && c.MinInvestmentUsd.Sign() < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// clone returns a deep copy so stored configuration cannot be mutated
// through shared big.Int pointers.
func (c *FundConfig) clone() *FundConfig {
	cp := *c
	cp.MinInvestmentUsd = clone(c.MinInvestmentUsd)
	cp.InitialSharePrice = clone(c.InitialSharePrice)
	return &cp
}
