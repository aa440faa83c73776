package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/sig"
	"github.com/fund-ledger/internal/storage"
	"github.com/fund-ledger/internal/types"
)

func TestCategorizeLedgerSentinels(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{ledger.ErrNotManager, "NOT_MANAGER", http.StatusForbidden},
		{ledger.ErrFundClosed, "FUND_CLOSED", http.StatusConflict},
		{ledger.ErrStaleNonce, "STALE_NONCE", http.StatusConflict},
		{ledger.ErrFeeTimelockNotElapsed, "FEE_TIMELOCK_NOT_ELAPSED", http.StatusConflict},
		{sig.ErrInvalidSignature, "INVALID_SIGNATURE", http.StatusUnauthorized},
		{storage.ErrFundNotFound, "FUND_NOT_FOUND", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			categorized := Categorize(tt.err)
			require.NotNil(t, categorized)
			assert.Equal(t, tt.code, categorized.Code)
			assert.Equal(t, tt.status, categorized.StatusCode)
		})
	}
}

func TestCategorizeWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("processing request: %w", ledger.ErrSlippageExceeded)

	categorized := Categorize(wrapped)
	require.NotNil(t, categorized)
	assert.Equal(t, "SLIPPAGE_EXCEEDED", categorized.Code)
	assert.ErrorIs(t, categorized, ledger.ErrSlippageExceeded)
}

func TestCategorizeServiceError(t *testing.T) {
	err := &types.ServiceError{Code: "INVALID_ADDRESS", Message: "bad address"}

	categorized := Categorize(err)
	require.NotNil(t, categorized)
	assert.Equal(t, http.StatusBadRequest, categorized.StatusCode)
	assert.Equal(t, "INVALID_ADDRESS", categorized.Code)
}

func TestCategorizeUnknownErrorIsInternal(t *testing.T) {
	categorized := Categorize(fmt.Errorf("boom"))
	require.NotNil(t, categorized)
	assert.Equal(t, http.StatusInternalServerError, categorized.StatusCode)
}
