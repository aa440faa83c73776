// Package types provides common type definitions for the fund ledger system.
package types

// InvestmentStatus represents the lifecycle state of an investment
type InvestmentStatus string

const (
	// StatusActive represents an open investment accruing fees
	StatusActive InvestmentStatus = "active"
	// StatusRedeemed represents a closed investment kept as a historical record
	StatusRedeemed InvestmentStatus = "redeemed"
)

// RequestKind distinguishes pending request slots
type RequestKind string

const (
	// KindInvestment represents a pending investment request
	KindInvestment RequestKind = "investment"
	// KindRedemption represents a pending redemption request
	KindRedemption RequestKind = "redemption"
)

// FundStatus represents the lifecycle state of a fund
type FundStatus string

const (
	// FundOpen represents a fund accepting requests
	FundOpen FundStatus = "open"
	// FundClosed represents a terminally closed fund
	FundClosed FundStatus = "closed"
)

// EventType identifies ledger events published for off-chain indexers
type EventType string

const (
	// EventFundCreated is emitted when the registry creates a fund
	EventFundCreated EventType = "fund_created"
	// EventFundInitialized is emitted when a fund's initial AUM is set
	EventFundInitialized EventType = "fund_initialized"
	// EventInvestorWhitelisted is emitted on first-time whitelisting
	EventInvestorWhitelisted EventType = "investor_whitelisted"
	// EventRequestCreated is emitted when a request slot is filled
	EventRequestCreated EventType = "request_created"
	// EventRequestCancelled is emitted when a request slot is zeroed
	EventRequestCancelled EventType = "request_cancelled"
	// EventInvestmentCreated is emitted when a request is processed or a manual investment recorded
	EventInvestmentCreated EventType = "investment_created"
	// EventNavUpdated is emitted on every NAV mark
	EventNavUpdated EventType = "nav_updated"
	// EventFeesSwept is emitted per investment on a fee sweep
	EventFeesSwept EventType = "fees_swept"
	// EventFeesWithdrawn is emitted when accrued fees are converted to stablecoin
	EventFeesWithdrawn EventType = "fees_withdrawn"
	// EventRedemptionCompleted is emitted when an investment is redeemed
	EventRedemptionCompleted EventType = "redemption_completed"
	// EventFundClosed is emitted when a fund is terminally closed
	EventFundClosed EventType = "fund_closed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
