// Package models provides data models for the fund ledger system.
package models

import (
	"time"

	"github.com/fund-ledger/internal/types"
)

// Fund is the registry row for one fund. The authoritative accounting state
// lives in the versioned snapshot; the scalar columns are projections for
// listing and filtering.
type Fund struct {
	ID           string           `json:"id" db:"id"`
	Name         string           `json:"name" db:"name"`
	Symbol       string           `json:"symbol" db:"symbol"`
	LogoURL      string           `json:"logoUrl,omitempty" db:"logo_url"`
	Address      string           `json:"address" db:"address"`
	Manager      string           `json:"manager" db:"manager"`
	Status       types.FundStatus `json:"status" db:"status"`
	Aum          string           `json:"aum" db:"aum"`
	SharePrice   string           `json:"sharePrice" db:"share_price"`
	TotalSupply  string           `json:"totalSupply" db:"total_supply"`
	TotalCapital string           `json:"totalCapital" db:"total_capital"`
	// Snapshot is the schema-versioned aggregate, stored as JSONB.
	Snapshot  []byte    `json:"-" db:"snapshot"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
