package ledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 10,000 USDC at $0.01 entry with a 200 bps annual management fee accrues
// 1e24 * 200/10000 * 30/365 share units over 30 days, truncated.
func TestManagementFeeAccrual(t *testing.T) {
	e, clk, inv := newFundedEngine(t, testConfig())

	clk.advance(30 * 24 * time.Hour)
	results, err := e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)

	wantMgmt := mustBigInt("1643835616438356164383")
	assert.Equal(t, wantMgmt, results[0].ManagementFeeShares)
	assert.Equal(t, big.NewInt(0), results[0].PerformanceFeeShares)
	assert.Equal(t, wantMgmt, inv.ManagementFeeShares)
	assert.Equal(t, wantMgmt, e.AccruedFeeShares())

	// Sweeps move shares to the fund's own pool; the supply is untouched.
	wantShares := new(big.Int).Sub(mustBigInt("1000000000000000000000000"), wantMgmt)
	assert.Equal(t, wantShares, inv.Shares)
	assert.Equal(t, wantShares, e.State().Shares.BalanceOf(investor))
	assert.Equal(t, mustBigInt("1100000000000000000000000"), e.State().Shares.TotalSupply())

	// Flat price means no performance fee and an unchanged high-water mark.
	assert.Equal(t, usdWad(units(10_000)), inv.HighWaterMark)
	assert.Equal(t, clk.ts, inv.LastFeeSweep)
}

func TestSweepTimelock(t *testing.T) {
	e, clk, inv := newFundedEngine(t, testConfig())

	clk.advance(30 * 24 * time.Hour)
	_, err := e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)

	sharesAfter := clone(inv.Shares)
	lastSweep := inv.LastFeeSweep

	clk.advance(time.Hour)
	_, err = e.SweepFees(manager, []uint64{inv.ID})
	assert.ErrorIs(t, err, ErrFeeTimelockNotElapsed)
	assert.Equal(t, sharesAfter, inv.Shares)
	assert.Equal(t, lastSweep, inv.LastFeeSweep)

	clk.advance(24 * time.Hour)
	_, err = e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)
}

func TestPerformanceFeeAboveHighWaterMark(t *testing.T) {
	cfg := testConfig()
	cfg.ManagementFeeBps = 0
	e, clk, inv := newFundedEngine(t, cfg)

	// A 20% markup lifts the price to $0.012 and the lot's value to 12,000.
	clk.advance(30 * 24 * time.Hour)
	_, err := e.UpdateAUM(manager, units(13_200), nil)
	require.NoError(t, err)

	results, err := e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)

	// 20% of the 2,000 USD gain, paid in shares at $0.012.
	wantPerf := mustBigInt("33333333333333333333333")
	assert.Equal(t, big.NewInt(0), results[0].ManagementFeeShares)
	assert.Equal(t, wantPerf, results[0].PerformanceFeeShares)
	assert.Equal(t, usdWad(units(12_000)), inv.HighWaterMark)

	// A flat second period realizes nothing and leaves the mark alone.
	clk.advance(30 * 24 * time.Hour)
	results, err = e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), results[0].PerformanceFeeShares)
	assert.Equal(t, usdWad(units(12_000)), inv.HighWaterMark)
}

func TestNoPerformanceFeeBelowHighWaterMark(t *testing.T) {
	cfg := testConfig()
	cfg.ManagementFeeBps = 0
	e, clk, inv := newFundedEngine(t, cfg)

	clk.advance(30 * 24 * time.Hour)
	_, err := e.UpdateAUM(manager, units(8_800), nil)
	require.NoError(t, err)

	results, err := e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), results[0].PerformanceFeeShares)
	// Drawdowns never lower the mark.
	assert.Equal(t, usdWad(units(10_000)), inv.HighWaterMark)
}

func TestFeeCap(t *testing.T) {
	cfg := testConfig()
	cfg.FeeCapBps = 1 // 0.01% of initial shares, far below one month of fees
	e, clk, inv := newFundedEngine(t, cfg)

	clk.advance(30 * 24 * time.Hour)
	sharesBefore := clone(inv.Shares)
	_, err := e.SweepFees(manager, []uint64{inv.ID})
	assert.ErrorIs(t, err, ErrFeeCapExceeded)
	assert.Equal(t, sharesBefore, inv.Shares)
	assert.Equal(t, big.NewInt(0), e.AccruedFeeShares())
}

func TestSweepAtomicAcrossInvestments(t *testing.T) {
	e, clk, first := newFundedEngine(t, testConfig())

	second, err := e.AddManualInvestment(manager, addr(0xB2), units(5_000), "")
	require.NoError(t, err)
	_, err = e.AddManualRedemption(manager, second.ID, nil)
	require.NoError(t, err)

	// One redeemed id poisons the whole batch; the healthy lot keeps its
	// shares and its sweep timestamp.
	clk.advance(30 * 24 * time.Hour)
	sharesBefore := clone(first.Shares)
	lastSweep := first.LastFeeSweep
	_, err = e.SweepFees(manager, []uint64{first.ID, second.ID})
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
	assert.Equal(t, sharesBefore, first.Shares)
	assert.Equal(t, lastSweep, first.LastFeeSweep)

	results, err := e.SweepFees(manager, []uint64{first.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSweepRejectsDuplicateIDs(t *testing.T) {
	e, clk, inv := newFundedEngine(t, testConfig())

	// A repeated id would pass the timelock twice against pre-sweep state
	// and take the same interval's fee twice, so the batch must fail whole.
	clk.advance(30 * 24 * time.Hour)
	sharesBefore := clone(inv.Shares)
	_, err := e.SweepFees(manager, []uint64{inv.ID, inv.ID})
	assert.ErrorIs(t, err, ErrDuplicateInvestment)
	assert.Equal(t, sharesBefore, inv.Shares)
	assert.Equal(t, big.NewInt(0), inv.ManagementFeeShares)

	results, err := e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, results[0].ManagementFeeShares, inv.ManagementFeeShares)
}

func TestSweepRequiresManager(t *testing.T) {
	e, clk, inv := newFundedEngine(t, testConfig())
	clk.advance(30 * 24 * time.Hour)
	_, err := e.SweepFees(investor, []uint64{inv.ID})
	assert.ErrorIs(t, err, ErrNotManager)
	_, err = e.SweepFees(manager, []uint64{42})
	assert.ErrorIs(t, err, ErrUnknownInvestment)
}

func TestWithdrawFees(t *testing.T) {
	e, clk, inv := newFundedEngine(t, testConfig())

	clk.advance(30 * 24 * time.Hour)
	_, err := e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)
	pool := e.AccruedFeeShares()
	require.True(t, pool.Sign() > 0)

	over := new(big.Int).Add(pool, big.NewInt(1))
	_, err = e.WithdrawFees(manager, over)
	assert.ErrorIs(t, err, ErrInsufficientAccruedFees)

	aumBefore := clone(e.State().Aum)
	res, err := e.WithdrawFees(manager, pool)
	require.NoError(t, err)
	// 1643.83... shares at $0.01 is 16.43 USDC.
	assert.Equal(t, units(16).Add(units(16), big.NewInt(438356)), res.UsdOut)
	assert.Equal(t, aumBefore.Sub(aumBefore, res.UsdOut), e.State().Aum)
	assert.Equal(t, big.NewInt(0), e.AccruedFeeShares())
}

func TestWithdrawFeesAfterClose(t *testing.T) {
	e, clk, inv := newFundedEngine(t, testConfig())

	clk.advance(30 * 24 * time.Hour)
	_, err := e.SweepFees(manager, []uint64{inv.ID})
	require.NoError(t, err)
	require.NoError(t, e.CloseFund(manager))

	pool := e.AccruedFeeShares()
	res, err := e.WithdrawFees(manager, pool)
	require.NoError(t, err)
	assert.True(t, res.UsdOut.Sign() > 0)
}

// The high-water mark never decreases, whatever AUM path the fund takes.
func TestHighWaterMarkMonotoneProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("mark is non-decreasing across sweeps", prop.ForAll(
		func(aums []int64) bool {
			e, clk, inv := newFundedEngine(t, testConfig())
			prev := clone(inv.HighWaterMark)
			for _, aum := range aums {
				clk.advance(31 * 24 * time.Hour)
				if _, err := e.UpdateAUM(manager, units(aum), nil); err != nil {
					return false
				}
				if _, err := e.SweepFees(manager, []uint64{inv.ID}); err != nil {
					return false
				}
				if inv.HighWaterMark.Cmp(prev) < 0 {
					return false
				}
				prev = clone(inv.HighWaterMark)
			}
			return true
		},
		gen.SliceOfN(8, gen.Int64Range(1_000, 100_000)),
	))

	properties.TestingRun(t)
}
