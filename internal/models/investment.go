package models

import (
	"time"

	"github.com/fund-ledger/internal/types"
)

// Investment is the query projection of one ledger investment row. Numeric
// columns are stored as decimal strings; USD amounts carry 6 decimals and
// share amounts 18.
type Investment struct {
	FundID           string                 `json:"fundId" db:"fund_id"`
	InvestmentID     uint64                 `json:"investmentId" db:"investment_id"`
	Investor         string                 `json:"investor" db:"investor"`
	Status           types.InvestmentStatus `json:"status" db:"status"`
	InitialUsdAmount string                 `json:"initialUsdAmount" db:"initial_usd_amount"`
	InitialShares    string                 `json:"initialShares" db:"initial_shares"`
	Shares           string                 `json:"shares" db:"shares"`
	HighWaterMark    string                 `json:"highWaterMark" db:"high_water_mark"`
	ManagementFees   string                 `json:"managementFees" db:"management_fees"`
	PerformanceFees  string                 `json:"performanceFees" db:"performance_fees"`
	RedeemedUsd      string                 `json:"redeemedUsd,omitempty" db:"redeemed_usd"`
	Manual           bool                   `json:"manual,omitempty" db:"manual"`
	Note             string                 `json:"note,omitempty" db:"note"`
	CreatedAt        time.Time              `json:"createdAt" db:"created_at"`
	RedeemedAt       *time.Time             `json:"redeemedAt,omitempty" db:"redeemed_at"`
}

// InvestorSummary aggregates an investor's standing within one fund.
type InvestorSummary struct {
	FundID            string `json:"fundId"`
	Address           string `json:"address"`
	Name              string `json:"name,omitempty"`
	Whitelisted       bool   `json:"whitelisted"`
	ActiveInvestments int    `json:"activeInvestments"`
	Shares            string `json:"shares"`
	NextNonce         uint64 `json:"nextNonce"`
}
