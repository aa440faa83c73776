package models

import "time"

// NavMark is the query projection of one NAV history point.
type NavMark struct {
	FundID       string    `json:"fundId" db:"fund_id"`
	Aum          string    `json:"aum" db:"aum"`
	Supply       string    `json:"supply" db:"supply"`
	Price        string    `json:"price" db:"price"`
	TotalCapital string    `json:"totalCapital" db:"total_capital"`
	MarkedAt     time.Time `json:"markedAt" db:"marked_at"`
}
