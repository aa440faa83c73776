package ledger

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FundState is the single owned aggregate holding every entity of one fund:
// investor table, request slots, investment records, NAV history and the
// share ledger. Operations receive it by exclusive reference through the
// Engine; there are no global singletons.
type FundState struct {
	SchemaVersion int         `json:"schemaVersion"`
	Config        *FundConfig `json:"config"`

	Initialized bool  `json:"initialized"`
	Closed      bool  `json:"closed"`
	ClosedAt    int64 `json:"closedAt,omitempty"`

	Shares *ShareLedger `json:"shares"`

	// Aum is the latest manager-attested 6-decimal stablecoin value.
	Aum *big.Int `json:"aum"`
	// TotalCapital is the cumulative 6-decimal stablecoin ever contributed.
	TotalCapital *big.Int   `json:"totalCapital"`
	NavHistory   []*NAVMark `json:"navHistory"`

	Investors          map[common.Address]*Investor          `json:"investors"`
	InvestmentRequests map[common.Address]*InvestmentRequest `json:"investmentRequests"`
	RedemptionRequests map[common.Address]*RedemptionRequest `json:"redemptionRequests"`

	Investments      map[uint64]*Investment `json:"investments"`
	NextInvestmentID uint64                 `json:"nextInvestmentId"`

	// InvestorCount increments only on first-time whitelisting.
	InvestorCount int `json:"investorCount"`
}

// NewFundState creates an empty, uninitialized fund state for a validated
// configuration.
func NewFundState(cfg *FundConfig) *FundState {
	return &FundState{
		SchemaVersion:      CurrentSchemaVersion,
		Config:             cfg.clone(),
		Shares:             NewShareLedger(),
		Aum:                big.NewInt(0),
		TotalCapital:       big.NewInt(0),
		Investors:          make(map[common.Address]*Investor),
		InvestmentRequests: make(map[common.Address]*InvestmentRequest),
		RedemptionRequests: make(map[common.Address]*RedemptionRequest),
		Investments:        make(map[uint64]*Investment),
		NextInvestmentID:   1,
	}
}

// LatestMark returns the most recent NAV mark, or nil before initialization.
func (s *FundState) LatestMark() *NAVMark {
	if len(s.NavHistory) == 0 {
		return nil
	}
	return s.NavHistory[len(s.NavHistory)-1]
}

// investor returns the record for an address, creating it lazily.
func (s *FundState) investor(addr common.Address) *Investor {
	if inv, ok := s.Investors[addr]; ok {
		return inv
	}
	inv := &Investor{Address: addr}
	s.Investors[addr] = inv
	return inv
}

// hasOpenRequests reports whether any request slot is non-empty.
func (s *FundState) hasOpenRequests() bool {
	for _, req := range s.InvestmentRequests {
		if !req.Empty() {
			return true
		}
	}
	for _, req := range s.RedemptionRequests {
		if !req.Empty() {
			return true
		}
	}
	return false
}

// shareLedgerJSON is the wire form of ShareLedger state.
type shareLedgerJSON struct {
	Bases      map[common.Address]*big.Int `json:"bases"`
	BaseSupply *big.Int                    `json:"baseSupply"`
	Supply     *big.Int                    `json:"supply"`
}

// MarshalJSON implements json.Marshaler.
func (l *ShareLedger) MarshalJSON() ([]byte, error) {
	return json.Marshal(shareLedgerJSON{
		Bases:      l.bases,
		BaseSupply: l.baseSupply,
		Supply:     l.supply,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ShareLedger) UnmarshalJSON(data []byte) error {
	var wire shareLedgerJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	l.bases = wire.Bases
	if l.bases == nil {
		l.bases = make(map[common.Address]*big.Int)
	}
	l.baseSupply = wire.BaseSupply
	if l.baseSupply == nil {
		l.baseSupply = big.NewInt(0)
	}
	l.supply = wire.Supply
	if l.supply == nil {
		l.supply = big.NewInt(0)
	}
	return nil
}
