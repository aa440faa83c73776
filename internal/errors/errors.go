package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/fund-ledger/internal/adapter"
	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/sig"
	"github.com/fund-ledger/internal/storage"
	"github.com/fund-ledger/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryChain represents stablecoin chain errors
	CategoryChain ErrorCategory = "chain"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents ledger state conflicts
	CategoryConflict ErrorCategory = "conflict"
	// CategoryTimelock represents operations attempted before a required
	// interval elapsed
	CategoryTimelock ErrorCategory = "timelock"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// User Input Errors (4xx)

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Chain Errors

// NewChainError creates a stablecoin chain error
func NewChainError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryChain,
		StatusCode: http.StatusBadGateway,
		Code:       "CHAIN_ERROR",
		Message:    fmt.Sprintf("chain error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewChainTimeoutError creates a chain timeout error
func NewChainTimeoutError(operation string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryChain,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "CHAIN_TIMEOUT",
		Message:    fmt.Sprintf("chain timeout during %s", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// ledgerErrorCodes maps each ledger sentinel to its wire code, category and
// HTTP status. Authorization failures are 403, precondition and timelock
// failures 409/425-style conflicts, validation failures 400/422.
var ledgerErrorCodes = []struct {
	sentinel error
	code     string
	category ErrorCategory
	status   int
}{
	{ledger.ErrNotWhitelisted, "NOT_WHITELISTED", CategoryAuthorization, http.StatusForbidden},
	{ledger.ErrNotManager, "NOT_MANAGER", CategoryAuthorization, http.StatusForbidden},
	{ledger.ErrFundClosed, "FUND_CLOSED", CategoryConflict, http.StatusConflict},
	{ledger.ErrDeadlineExpired, "DEADLINE_EXPIRED", CategoryValidation, http.StatusBadRequest},
	{ledger.ErrStaleNonce, "STALE_NONCE", CategoryValidation, http.StatusConflict},
	{ledger.ErrInvalidSignature, "INVALID_SIGNATURE", CategoryAuthorization, http.StatusUnauthorized},
	{ledger.ErrSlippageExceeded, "SLIPPAGE_EXCEEDED", CategoryConflict, http.StatusConflict},
	{ledger.ErrInsufficientBalance, "INSUFFICIENT_BALANCE", CategoryValidation, http.StatusUnprocessableEntity},
	{ledger.ErrInvalidRecipient, "INVALID_RECIPIENT", CategoryValidation, http.StatusBadRequest},
	{ledger.ErrMinimumInvestment, "BELOW_MINIMUM_INVESTMENT", CategoryValidation, http.StatusBadRequest},
	{ledger.ErrInvalidAmount, "INVALID_AMOUNT", CategoryValidation, http.StatusBadRequest},
	{ledger.ErrInvalidConfig, "INVALID_FUND_CONFIG", CategoryValidation, http.StatusBadRequest},
	{ledger.ErrAlreadyInitialized, "ALREADY_INITIALIZED", CategoryConflict, http.StatusConflict},
	{ledger.ErrNotInitialized, "NOT_INITIALIZED", CategoryConflict, http.StatusConflict},
	{ledger.ErrUnknownInvestment, "INVESTMENT_NOT_FOUND", CategoryNotFound, http.StatusNotFound},
	{ledger.ErrNoPendingRequest, "NO_PENDING_REQUEST", CategoryNotFound, http.StatusNotFound},
	{ledger.ErrRequestExpired, "REQUEST_EXPIRED", CategoryConflict, http.StatusConflict},
	{ledger.ErrFeeTimelockNotElapsed, "FEE_TIMELOCK_NOT_ELAPSED", CategoryTimelock, http.StatusConflict},
	{ledger.ErrStaleAum, "NAV_MARK_TOO_SOON", CategoryTimelock, http.StatusConflict},
	{ledger.ErrLockupNotElapsed, "LOCKUP_NOT_ELAPSED", CategoryTimelock, http.StatusConflict},
	{ledger.ErrNoticePeriodNotElapsed, "NOTICE_PERIOD_NOT_ELAPSED", CategoryTimelock, http.StatusConflict},
	{ledger.ErrDuplicateInvestment, "DUPLICATE_INVESTMENT", CategoryValidation, http.StatusBadRequest},
	{ledger.ErrFeeCapExceeded, "FEE_CAP_EXCEEDED", CategoryConflict, http.StatusConflict},
	{ledger.ErrInsufficientAccruedFees, "INSUFFICIENT_ACCRUED_FEES", CategoryValidation, http.StatusUnprocessableEntity},
	{ledger.ErrAlreadyRedeemed, "ALREADY_REDEEMED", CategoryConflict, http.StatusConflict},
	{ledger.ErrOpenRequestsPreventClosing, "OPEN_REQUESTS", CategoryConflict, http.StatusConflict},

	// Permit verification and custody sentinels share the ledger taxonomy.
	{sig.ErrInvalidSignature, "INVALID_SIGNATURE", CategoryAuthorization, http.StatusUnauthorized},
	{adapter.ErrWrongSpender, "INVALID_PERMIT_SPENDER", CategoryValidation, http.StatusBadRequest},
	{adapter.ErrPermitExpired, "DEADLINE_EXPIRED", CategoryValidation, http.StatusBadRequest},
	{adapter.ErrStalePermitNonce, "STALE_NONCE", CategoryValidation, http.StatusConflict},
	{storage.ErrFundNotFound, "FUND_NOT_FOUND", CategoryNotFound, http.StatusNotFound},
}

// FromLedger converts a ledger sentinel error into a CategorizedError.
// Unrecognized errors fall through to nil so callers can keep categorizing.
func FromLedger(err error) *CategorizedError {
	for _, m := range ledgerErrorCodes {
		if stderrors.Is(err, m.sentinel) {
			return &CategorizedError{
				Category:   m.category,
				StatusCode: m.status,
				Code:       m.code,
				Message:    m.sentinel.Error(),
				Cause:      err,
			}
		}
	}
	return nil
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized, return as-is
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	if ledgerErr := FromLedger(err); ledgerErr != nil {
		return ledgerErr
	}

	// If it's a ServiceError, convert it
	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch err.Code {
	case "INVALID_ADDRESS", "INVALID_PARAMETER", "INVALID_AMOUNT":
		return &CategorizedError{
			Category:   CategoryUserInput,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "FUND_NOT_FOUND", "INVESTMENT_NOT_FOUND", "INVESTOR_NOT_FOUND":
		return &CategorizedError{
			Category:   CategoryNotFound,
			StatusCode: http.StatusNotFound,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "UNAUTHORIZED", "INVALID_SIGNATURE":
		return &CategorizedError{
			Category:   CategoryAuthorization,
			StatusCode: http.StatusUnauthorized,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "FORBIDDEN", "NOT_MANAGER", "NOT_WHITELISTED":
		return &CategorizedError{
			Category:   CategoryAuthorization,
			StatusCode: http.StatusForbidden,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	default:
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	// Retryable categories
	switch catErr.Category {
	case CategoryChain, CategoryDatabase, CategoryCache:
		return true
	case CategorySystem:
		// Some system errors are retryable
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
