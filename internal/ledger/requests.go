package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fund-ledger/internal/types"
)

// Request store. Each investor owns at most one pending investment request
// and one pending redemption request; filing a new request overwrites the
// prior slot (the old one is implicitly cancelled). Nonces advance on every
// accepted submission or cancellation, so a signature captured for request N
// can never be replayed once N has been consumed.

// checkRequestCommon validates the shared preconditions of a signed request.
func (e *Engine) checkRequestCommon(investor common.Address, deadline int64, nonce uint64) error {
	if err := e.requireOpen(); err != nil {
		return err
	}
	if err := e.requireInitialized(); err != nil {
		return err
	}
	if deadline < e.now() {
		return ErrDeadlineExpired
	}
	if nonce != e.state.investor(investor).NextNonce {
		return ErrStaleNonce
	}
	return nil
}

// SubmitInvestmentRequest files or overwrites the investor's pending
// investment request. The permit signature accompanying the request is
// verified by the caller against the stablecoin's EIP-712 domain before this
// is invoked; the ledger enforces whitelist, nonce, deadline and minimum.
func (e *Engine) SubmitInvestmentRequest(investor common.Address, usdAmount, minShares, maxShares *big.Int, deadline int64, nonce uint64) error {
	if err := e.checkRequestCommon(investor, deadline, nonce); err != nil {
		return err
	}
	holder := e.state.investor(investor)
	if !holder.Whitelisted && !e.state.Config.BypassWhitelist {
		return ErrNotWhitelisted
	}
	if usdAmount == nil || usdAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.state.Config.MinInvestmentUsd != nil && usdAmount.Cmp(e.state.Config.MinInvestmentUsd) < 0 {
		return ErrMinimumInvestment
	}

	e.state.InvestmentRequests[investor] = &InvestmentRequest{
		UsdAmount: clone(usdAmount),
		MinShares: clone(minShares),
		MaxShares: copyOrNil(maxShares),
		Deadline:  deadline,
		Nonce:     nonce,
		CreatedAt: e.now(),
	}
	holder.NextNonce++
	e.emit(types.EventRequestCreated, map[string]string{
		"kind":     string(types.KindInvestment),
		"investor": investor.Hex(),
		"usd":      attrAmount(usdAmount),
	})
	return nil
}

// CancelInvestmentRequest zeroes the investor's pending investment request
// and advances the nonce so stale signatures die with the slot.
func (e *Engine) CancelInvestmentRequest(investor common.Address) error {
	req := e.state.InvestmentRequests[investor]
	if req.Empty() {
		return ErrNoPendingRequest
	}
	delete(e.state.InvestmentRequests, investor)
	e.state.investor(investor).NextNonce++
	e.emit(types.EventRequestCancelled, map[string]string{
		"kind":     string(types.KindInvestment),
		"investor": investor.Hex(),
	})
	return nil
}

// SubmitRedemptionRequest files or overwrites the investor's pending
// redemption request against one of their investments. The lockup period
// must have elapsed since the investment was created.
func (e *Engine) SubmitRedemptionRequest(investor common.Address, investmentID uint64, minUsdOut *big.Int, deadline int64, nonce uint64) error {
	if err := e.checkRequestCommon(investor, deadline, nonce); err != nil {
		return err
	}
	inv, ok := e.state.Investments[investmentID]
	if !ok || inv.Investor != investor {
		return ErrUnknownInvestment
	}
	if inv.Redeemed {
		return ErrAlreadyRedeemed
	}
	if e.now()-inv.CreatedAt < int64(e.state.Config.LockupPeriod/time.Second) {
		return ErrLockupNotElapsed
	}

	e.state.RedemptionRequests[investor] = &RedemptionRequest{
		InvestmentID: investmentID,
		MinUsdOut:    clone(minUsdOut),
		Deadline:     deadline,
		Nonce:        nonce,
		CreatedAt:    e.now(),
	}
	e.state.investor(investor).NextNonce++
	e.emit(types.EventRequestCreated, map[string]string{
		"kind":     string(types.KindRedemption),
		"investor": investor.Hex(),
		"id":       attrID(investmentID),
	})
	return nil
}

// CancelRedemptionRequest zeroes the investor's pending redemption request.
func (e *Engine) CancelRedemptionRequest(investor common.Address) error {
	req := e.state.RedemptionRequests[investor]
	if req.Empty() {
		return ErrNoPendingRequest
	}
	delete(e.state.RedemptionRequests, investor)
	e.state.investor(investor).NextNonce++
	e.emit(types.EventRequestCancelled, map[string]string{
		"kind":     string(types.KindRedemption),
		"investor": investor.Hex(),
	})
	return nil
}

// checkProcessableInvestment verifies that the investor's pending investment
// request could be processed at the given AUM without mutating anything.
// Used by the combined update-AUM-and-process path.
func (e *Engine) checkProcessableInvestment(investor common.Address, atAum *big.Int) error {
	req := e.state.InvestmentRequests[investor]
	if req.Empty() {
		return ErrNoPendingRequest
	}
	if req.Deadline < e.now() {
		return ErrRequestExpired
	}
	shares := sharesForUsd(req.UsdAmount, atAum, e.state.Shares.TotalSupply(), e.state.Config.InitialSharePrice)
	if req.MinShares != nil && shares.Cmp(req.MinShares) < 0 {
		return ErrSlippageExceeded
	}
	if req.MaxShares != nil && req.MaxShares.Sign() > 0 && shares.Cmp(req.MaxShares) > 0 {
		return ErrSlippageExceeded
	}
	return nil
}

// ProcessInvestmentRequest executes the investor's pending investment
// request at the latest NAV mark: shares are minted, the Investment record
// is created with its entry high-water mark, and the slot is cleared.
func (e *Engine) ProcessInvestmentRequest(caller common.Address, investor common.Address) (*Investment, error) {
	if err := e.requireManager(caller); err != nil {
		return nil, err
	}
	if err := e.requireOpen(); err != nil {
		return nil, err
	}
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	req := e.state.InvestmentRequests[investor]
	if req.Empty() {
		return nil, ErrNoPendingRequest
	}
	if req.Deadline < e.now() {
		return nil, ErrRequestExpired
	}
	inv, err := e.createInvestment(investor, req.UsdAmount, req.MinShares, req.MaxShares)
	if err != nil {
		return nil, err
	}
	delete(e.state.InvestmentRequests, investor)
	return inv, nil
}

// ProcessRedemptionRequest executes the investor's pending redemption
// request after the notice period has elapsed.
func (e *Engine) ProcessRedemptionRequest(caller common.Address, investor common.Address) (*RedemptionResult, error) {
	if err := e.requireManager(caller); err != nil {
		return nil, err
	}
	if err := e.requireOpen(); err != nil {
		return nil, err
	}
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	req := e.state.RedemptionRequests[investor]
	if req.Empty() {
		return nil, ErrNoPendingRequest
	}
	if req.Deadline < e.now() {
		return nil, ErrRequestExpired
	}
	if e.now()-req.CreatedAt < int64(e.state.Config.RedemptionNoticePeriod/time.Second) {
		return nil, ErrNoticePeriodNotElapsed
	}
	inv, ok := e.state.Investments[req.InvestmentID]
	if !ok {
		return nil, ErrUnknownInvestment
	}
	result, err := e.redeem(inv, req.MinUsdOut)
	if err != nil {
		return nil, err
	}
	delete(e.state.RedemptionRequests, investor)
	return result, nil
}

func copyOrNil(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
