package ledger

import "errors"

// Every ledger operation is all-or-nothing: validation happens before any
// state is touched, so a returned error guarantees the fund state is
// unchanged. The sentinel values below are matched with errors.Is by the
// service and API layers.

// Authorization errors
var (
	ErrNotWhitelisted = errors.New("investor is not whitelisted")
	ErrNotManager     = errors.New("caller is not the fund manager")
	ErrFundClosed     = errors.New("fund is closed")
)

// Validation errors
var (
	ErrDeadlineExpired      = errors.New("deadline expired")
	ErrStaleNonce           = errors.New("stale request nonce")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrSlippageExceeded     = errors.New("share amount outside slippage bounds")
	ErrInsufficientBalance  = errors.New("insufficient share balance")
	ErrInvalidRecipient     = errors.New("invalid recipient address")
	ErrMinimumInvestment    = errors.New("amount below minimum investment")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidConfig        = errors.New("invalid fund configuration")
	ErrAlreadyInitialized   = errors.New("fund already initialized")
	ErrNotInitialized       = errors.New("fund not initialized")
	ErrUnknownInvestment    = errors.New("unknown investment id")
	ErrNoPendingRequest     = errors.New("no pending request")
	ErrRequestExpired       = errors.New("request deadline expired")
)

// Temporal errors
var (
	ErrFeeTimelockNotElapsed  = errors.New("fee timelock not elapsed")
	ErrStaleAum               = errors.New("minimum interval since last NAV mark not elapsed")
	ErrLockupNotElapsed       = errors.New("lockup period not elapsed")
	ErrNoticePeriodNotElapsed = errors.New("redemption notice period not elapsed")
)

// Ledger-consistency errors
var (
	ErrDuplicateInvestment        = errors.New("duplicate investment id in batch")
	ErrFeeCapExceeded             = errors.New("lifetime fee cap exceeded")
	ErrInsufficientAccruedFees    = errors.New("amount exceeds accrued fee pool")
	ErrAlreadyRedeemed            = errors.New("investment already redeemed")
	ErrOpenRequestsPreventClosing = errors.New("open requests prevent closing")
)
