package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	e, clk, inv := newFundedEngine(t, testConfig())
	require.NoError(t, e.SubmitInvestmentRequest(investor, units(500), nil, nil, clk.ts+3600, 1))

	data, err := EncodeState(e.State())
	require.NoError(t, err)

	state, err := DecodeState(data)
	require.NoError(t, err)

	restored, err := NewEngineFromState(state)
	require.NoError(t, err)

	assert.Equal(t, e.State().Aum, restored.State().Aum)
	assert.Equal(t, e.State().Shares.TotalSupply(), restored.State().Shares.TotalSupply())
	assert.Equal(t, e.State().Shares.BalanceOf(investor), restored.State().Shares.BalanceOf(investor))
	assert.Equal(t, e.SharePrice(), restored.SharePrice())

	got := restored.State().Investments[inv.ID]
	require.NotNil(t, got)
	assert.Equal(t, inv.Shares, got.Shares)
	assert.Equal(t, inv.HighWaterMark, got.HighWaterMark)
	assert.False(t, restored.State().InvestmentRequests[investor].Empty())
	assert.Equal(t, uint64(2), restored.State().Investors[investor].NextNonce)

	// The restored engine keeps working.
	restored.SetNowFunc(clk.now)
	_, err = restored.ProcessInvestmentRequest(manager, investor)
	require.NoError(t, err)
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := DecodeState([]byte(`{"schemaVersion": 99}`))
	assert.Error(t, err)
}

// Version-1 snapshots carried one fund-wide high-water price instead of
// per-investment marks. Migration seeds each open lot's mark with the larger
// of its entry cost and its value at the old fund-wide price.
func TestDecodeV1SeedsHighWaterMarks(t *testing.T) {
	e, _, inv := newFundedEngine(t, testConfig())

	old := stateV1{
		FundState: *e.State(),
		// $0.012 fund-wide mark, 20% above the entry price.
		FundHighWaterMark: mustBigInt("12000000000000000"),
	}
	old.SchemaVersion = 1
	inv.HighWaterMark = nil

	data, err := json.Marshal(old)
	require.NoError(t, err)

	state, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, state.SchemaVersion)

	// 1e24 shares at the $0.012 mark price beats the 10,000 USD cost basis.
	migrated := state.Investments[inv.ID]
	require.NotNil(t, migrated)
	assert.Equal(t, usdWad(units(12_000)), migrated.HighWaterMark)
}

func TestDecodeV1PrefersCostBasisWhenHigher(t *testing.T) {
	e, _, inv := newFundedEngine(t, testConfig())

	old := stateV1{
		FundState: *e.State(),
		// A mark price below entry must not seed a mark under cost.
		FundHighWaterMark: mustBigInt("8000000000000000"),
	}
	old.SchemaVersion = 1
	inv.HighWaterMark = nil

	data, err := json.Marshal(old)
	require.NoError(t, err)

	state, err := DecodeState(data)
	require.NoError(t, err)

	migrated := state.Investments[inv.ID]
	require.NotNil(t, migrated)
	assert.Equal(t, usdWad(units(10_000)), migrated.HighWaterMark)
}
