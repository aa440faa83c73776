package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Persisted fund state carries an explicit schema version. Loading runs pure
// migration functions forward until the snapshot reaches the current
// version, so a deployment upgrade never needs in-place storage surgery.
//
// Version history:
//
//	1: fund-wide high-water mark, management fee on cost basis.
//	2: per-investment high-water marks, management fee on current balance.
const CurrentSchemaVersion = 2

// EncodeState serializes a fund state snapshot.
func EncodeState(state *FundState) ([]byte, error) {
	if state == nil {
		return nil, ErrInvalidConfig
	}
	state.SchemaVersion = CurrentSchemaVersion
	return json.Marshal(state)
}

// DecodeState deserializes a snapshot, migrating older schema versions
// forward.
func DecodeState(data []byte) (*FundState, error) {
	var header struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	switch header.SchemaVersion {
	case 1:
		return decodeV1(data)
	case CurrentSchemaVersion:
		state := &FundState{}
		if err := json.Unmarshal(data, state); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		normalizeState(state)
		return state, nil
	default:
		return nil, fmt.Errorf("unsupported schema version %d", header.SchemaVersion)
	}
}

// stateV1 is the version-1 wire shape: the high-water mark was a single
// fund-wide price and investments did not carry their own marks.
type stateV1 struct {
	FundState
	FundHighWaterMark *big.Int `json:"fundHighWaterMark"`
}

// decodeV1 migrates a version-1 snapshot. Each open investment's mark is
// seeded with the larger of its entry cost and its value at the fund-wide
// mark price, so no investor can be charged performance fees on gains that
// were already realized under the old accounting.
func decodeV1(data []byte) (*FundState, error) {
	var old stateV1
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("decode v1 state: %w", err)
	}
	state := &old.FundState
	normalizeState(state)
	for _, inv := range state.Investments {
		if inv.HighWaterMark != nil && inv.HighWaterMark.Sign() > 0 {
			continue
		}
		mark := usdWad(inv.InitialUsdAmount)
		if !isZero(old.FundHighWaterMark) {
			atFundMark := mulDiv(inv.Shares, old.FundHighWaterMark, wad)
			if atFundMark.Cmp(mark) > 0 {
				mark = atFundMark
			}
		}
		inv.HighWaterMark = mark
	}
	state.SchemaVersion = CurrentSchemaVersion
	return state, nil
}

// normalizeState fills nil maps and big.Ints left by older encoders so
// callers never branch on missing fields.
func normalizeState(state *FundState) {
	if state.Shares == nil {
		state.Shares = NewShareLedger()
	}
	if state.Aum == nil {
		state.Aum = big.NewInt(0)
	}
	if state.TotalCapital == nil {
		state.TotalCapital = big.NewInt(0)
	}
	if state.Investors == nil {
		state.Investors = make(map[common.Address]*Investor)
	}
	if state.InvestmentRequests == nil {
		state.InvestmentRequests = make(map[common.Address]*InvestmentRequest)
	}
	if state.RedemptionRequests == nil {
		state.RedemptionRequests = make(map[common.Address]*RedemptionRequest)
	}
	if state.Investments == nil {
		state.Investments = make(map[uint64]*Investment)
	}
	if state.NextInvestmentID == 0 {
		state.NextInvestmentID = 1
	}
	for _, inv := range state.Investments {
		if inv.ManagementFeeShares == nil {
			inv.ManagementFeeShares = big.NewInt(0)
		}
		if inv.PerformanceFeeShares == nil {
			inv.PerformanceFeeShares = big.NewInt(0)
		}
	}
}
