package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fund-ledger/internal/types"
)

// Fee sweep engine. Management fees accrue on the current share balance of
// each investment, prorated by elapsed seconds; performance fees apply only
// to value above the investment's high-water mark. Swept shares move from
// the investor to the fund's own address, an internal "accrued, not yet
// withdrawn" pool, so the share supply is conserved by every sweep.

// FeeSweepResult reports the shares taken from one investment.
type FeeSweepResult struct {
	InvestmentID         uint64
	ManagementFeeShares  *big.Int
	PerformanceFeeShares *big.Int
	// HighWaterMark is the investment's mark after the sweep (18-decimal USD).
	HighWaterMark *big.Int
}

// feePlan is a computed, not yet applied, sweep for one investment.
type feePlan struct {
	inv        *Investment
	mgmtShares *big.Int
	perfShares *big.Int
	newMark    *big.Int
}

// SweepFees realizes management and performance fees for the given
// investments. The whole call is atomic: every id is validated and its fee
// computed before any balance moves, so one failing id leaves all
// investments untouched.
func (e *Engine) SweepFees(caller common.Address, investmentIDs []uint64) ([]FeeSweepResult, error) {
	if err := e.requireManager(caller); err != nil {
		return nil, err
	}
	if err := e.requireOpen(); err != nil {
		return nil, err
	}
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}

	now := e.now()
	price := e.SharePrice()
	plans := make([]feePlan, 0, len(investmentIDs))
	seen := make(map[uint64]struct{}, len(investmentIDs))
	for _, id := range investmentIDs {
		// Plans are computed against pre-sweep state, so a repeated id would
		// charge the same interval and gain twice.
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicateInvestment
		}
		seen[id] = struct{}{}
		inv, ok := e.state.Investments[id]
		if !ok {
			return nil, ErrUnknownInvestment
		}
		plan, err := e.planSweep(inv, now, price)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	results := make([]FeeSweepResult, 0, len(plans))
	for _, plan := range plans {
		total := new(big.Int).Add(plan.mgmtShares, plan.perfShares)
		if total.Sign() > 0 {
			if err := e.state.Shares.Transfer(plan.inv.Investor, e.state.Config.Address, total); err != nil {
				return nil, err
			}
			plan.inv.Shares.Sub(plan.inv.Shares, total)
			plan.inv.ManagementFeeShares.Add(plan.inv.ManagementFeeShares, plan.mgmtShares)
			plan.inv.PerformanceFeeShares.Add(plan.inv.PerformanceFeeShares, plan.perfShares)
		}
		if plan.newMark != nil {
			plan.inv.HighWaterMark = plan.newMark
		}
		plan.inv.LastFeeSweep = now

		e.emit(types.EventFeesSwept, map[string]string{
			"id":         attrID(plan.inv.ID),
			"mgmtShares": attrAmount(plan.mgmtShares),
			"perfShares": attrAmount(plan.perfShares),
			"hwm":        attrAmount(plan.inv.HighWaterMark),
		})
		results = append(results, FeeSweepResult{
			InvestmentID:         plan.inv.ID,
			ManagementFeeShares:  plan.mgmtShares,
			PerformanceFeeShares: plan.perfShares,
			HighWaterMark:        clone(plan.inv.HighWaterMark),
		})
	}
	return results, nil
}

// planSweep computes the fee shares due on one investment without mutating
// it.
func (e *Engine) planSweep(inv *Investment, now int64, price *big.Int) (feePlan, error) {
	if inv.Redeemed {
		return feePlan{}, ErrAlreadyRedeemed
	}
	elapsed := now - inv.LastFeeSweep
	if elapsed < int64(e.state.Config.FeeSweepInterval/time.Second) {
		return feePlan{}, ErrFeeTimelockNotElapsed
	}

	cfg := e.state.Config

	// Management fee: shares * bps * elapsed / (10000 * secondsPerYear).
	mgmt := new(big.Int).Mul(inv.Shares, big.NewInt(int64(cfg.ManagementFeeBps)))
	mgmt.Mul(mgmt, big.NewInt(elapsed))
	mgmt.Quo(mgmt, new(big.Int).Mul(basisPoints, big.NewInt(SecondsPerYear)))

	// Performance fee: charged only on value above the high-water mark; the
	// mark advances to the current value when gains are realized.
	perf := big.NewInt(0)
	var newMark *big.Int
	if !isZero(price) {
		value := mulDiv(inv.Shares, price, wad)
		if value.Cmp(inv.HighWaterMark) > 0 {
			gain := new(big.Int).Sub(value, inv.HighWaterMark)
			perf = mulDiv(bpsOf(gain, cfg.PerformanceFeeBps), wad, price)
			newMark = value
		}
	}

	total := new(big.Int).Add(mgmt, perf)
	if total.Cmp(inv.Shares) > 0 {
		// Fees never take more than the lot holds.
		overrun := new(big.Int).Sub(total, inv.Shares)
		mgmt.Sub(mgmt, overrun)
		if mgmt.Sign() < 0 {
			perf.Add(perf, mgmt)
			mgmt.SetInt64(0)
		}
		total = new(big.Int).Add(mgmt, perf)
	}

	if cfg.FeeCapBps > 0 {
		capShares := bpsOf(inv.InitialShares, cfg.FeeCapBps)
		projected := new(big.Int).Add(inv.FeesSwept(), total)
		if projected.Cmp(capShares) > 0 {
			return feePlan{}, ErrFeeCapExceeded
		}
	}
	return feePlan{inv: inv, mgmtShares: mgmt, perfShares: perf, newMark: newMark}, nil
}

// AccruedFeeShares returns the fund's self-held fee pool balance.
func (e *Engine) AccruedFeeShares() *big.Int {
	return e.state.Shares.BalanceOf(e.state.Config.Address)
}

// WithdrawResult reports the stablecoin owed to the fee recipient after a
// withdrawal.
type WithdrawResult struct {
	SharesBurned *big.Int
	// UsdOut is the 6-decimal stablecoin amount owed to the fee recipient.
	UsdOut *big.Int
}

// WithdrawFees converts up to shareAmount of pooled fee shares into a burn
// plus a stablecoin obligation to the fee recipient. Withdrawal stays
// possible after the fund closes.
func (e *Engine) WithdrawFees(caller common.Address, shareAmount *big.Int) (*WithdrawResult, error) {
	if err := e.requireManager(caller); err != nil {
		return nil, err
	}
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool := e.AccruedFeeShares()
	if shareAmount.Cmp(pool) > 0 {
		return nil, ErrInsufficientAccruedFees
	}
	usd18 := usdForShares(shareAmount, e.state.Aum, e.state.Shares.TotalSupply())
	usdOut := wadUsd(usd18)
	if err := e.state.Shares.Burn(e.state.Config.Address, shareAmount); err != nil {
		return nil, err
	}
	e.state.Aum.Sub(e.state.Aum, usdOut)
	e.appendMark()

	e.emit(types.EventFeesWithdrawn, map[string]string{
		"shares": attrAmount(shareAmount),
		"usd":    attrAmount(usdOut),
	})
	return &WithdrawResult{SharesBurned: clone(shareAmount), UsdOut: usdOut}, nil
}
