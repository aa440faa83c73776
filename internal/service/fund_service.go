package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fund-ledger/internal/adapter"
	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/logging"
	"github.com/fund-ledger/internal/models"
	"github.com/fund-ledger/internal/sig"
	"github.com/fund-ledger/internal/types"
)

// FundService executes ledger operations against persisted fund snapshots.
// Each mutating call follows the same cycle: load the snapshot, rebuild the
// engine, apply the operation in memory, settle the stablecoin leg, then
// commit the new snapshot and its projections in one transaction. Events and
// the NAV cache are written after the commit.
//
// A per-fund mutex serializes mutations so concurrent API calls cannot fork
// the snapshot. Custody legs settle before the commit; a commit failure
// after a settled leg is surfaced by cmd/reconcile.
type FundService struct {
	fundRepo   FundRepository
	invRepo    InvestmentRepository
	navRepo    NavRepository
	navCache   NavCache
	sink       EventSink
	stablecoin adapter.StablecoinClient

	mu      sync.Mutex
	handles map[string]*fundHandle
}

// fundHandle serializes operations on one fund.
type fundHandle struct {
	mu sync.Mutex
}

// NewFundService creates a new fund service. The NAV cache and event sink
// are optional.
func NewFundService(
	fundRepo FundRepository,
	invRepo InvestmentRepository,
	navRepo NavRepository,
	navCache NavCache,
	sink EventSink,
	stablecoin adapter.StablecoinClient,
) *FundService {
	return &FundService{
		fundRepo:   fundRepo,
		invRepo:    invRepo,
		navRepo:    navRepo,
		navCache:   navCache,
		sink:       sink,
		stablecoin: stablecoin,
		handles:    make(map[string]*fundHandle),
	}
}

func (s *FundService) handle(fundID string) *fundHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[fundID]
	if !ok {
		h = &fundHandle{}
		s.handles[fundID] = h
	}
	return h
}

// captureEmitter accumulates events emitted during one operation so they can
// be flushed to the sink after the snapshot commits.
type captureEmitter struct {
	events []ledger.Event
}

func (c *captureEmitter) Emit(event ledger.Event) {
	c.events = append(c.events, event)
}

// withFund runs one mutating ledger operation under the fund's lock and
// commits the resulting snapshot. fn may settle custody legs; returning an
// error aborts the commit and discards the in-memory mutation.
func (s *FundService) withFund(ctx context.Context, fundID string, fn func(engine *ledger.Engine) error) error {
	h := s.handle(fundID)
	h.mu.Lock()
	defer h.mu.Unlock()

	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return err
	}
	state, err := ledger.DecodeState(fund.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to decode fund snapshot: %w", err)
	}
	engine, err := ledger.NewEngineFromState(state)
	if err != nil {
		return err
	}

	capture := &captureEmitter{}
	engine.SetEmitter(capture)
	marksBefore := len(state.NavHistory)

	if err := fn(engine); err != nil {
		return err
	}

	snapshot, err := ledger.EncodeState(state)
	if err != nil {
		return fmt.Errorf("failed to encode fund snapshot: %w", err)
	}
	fund.Snapshot = snapshot
	projectFund(fund, state)

	investments := make([]*models.Investment, 0, len(state.Investments))
	for _, inv := range state.Investments {
		investments = append(investments, projectInvestment(fundID, inv))
	}
	var marks []*models.NavMark
	for _, mark := range state.NavHistory[marksBefore:] {
		marks = append(marks, projectMark(fundID, mark))
	}

	if err := s.fundRepo.Save(ctx, fund, investments, marks); err != nil {
		return err
	}

	if s.sink != nil && len(capture.events) > 0 {
		if err := s.sink.Write(ctx, fundID, capture.events); err != nil {
			logging.WithError(err).WithField("fundId", fundID).Warn("Failed to record ledger events")
		}
	}
	if s.navCache != nil && len(marks) > 0 {
		if err := s.navCache.Put(ctx, marks[len(marks)-1]); err != nil {
			logging.WithError(err).WithField("fundId", fundID).Warn("Failed to cache latest NAV")
		}
	}

	return nil
}

// readState loads a fund's snapshot without taking the fund lock.
func (s *FundService) readState(ctx context.Context, fundID string) (*ledger.FundState, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	state, err := ledger.DecodeState(fund.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fund snapshot: %w", err)
	}
	return state, nil
}

// Initialize sets the fund's starting AUM and mints the manager's seed
// shares.
func (s *FundService) Initialize(ctx context.Context, fundID, caller, initialAum string) error {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return err
	}
	aum, err := parseAmount(initialAum)
	if err != nil {
		return err
	}
	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		return engine.Initialize(callerAddr, aum)
	})
}

// Whitelist adds investors to the fund's whitelist. names may be shorter
// than addrs; missing names stay empty.
func (s *FundService) Whitelist(ctx context.Context, fundID, caller string, addrs, names []string) error {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return err
	}
	parsed := make([]common.Address, len(addrs))
	for i, a := range addrs {
		if parsed[i], err = parseAddress(a); err != nil {
			return err
		}
	}
	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		return engine.WhitelistInvestors(callerAddr, parsed, names)
	})
}

// RevokeWhitelist removes investors from the fund's whitelist. Existing
// investments are unaffected.
func (s *FundService) RevokeWhitelist(ctx context.Context, fundID, caller string, addrs []string) error {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return err
	}
	parsed := make([]common.Address, len(addrs))
	for i, a := range addrs {
		if parsed[i], err = parseAddress(a); err != nil {
			return err
		}
	}
	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		return engine.RevokeWhitelist(callerAddr, parsed)
	})
}

// UpdateAUM appends a NAV mark at the attested value, optionally processing
// one investor's pending investment request atomically at the new mark.
func (s *FundService) UpdateAUM(ctx context.Context, fundID, caller, newAum string, processInvestor string) (*models.NavMark, error) {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return nil, err
	}
	aum, err := parseAmount(newAum)
	if err != nil {
		return nil, err
	}
	var investor *common.Address
	if processInvestor != "" {
		addr, err := parseAddress(processInvestor)
		if err != nil {
			return nil, err
		}
		investor = &addr
	}

	var mark *models.NavMark
	err = s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		navMark, err := engine.UpdateAUM(callerAddr, aum, investor)
		if err != nil {
			return err
		}
		mark = projectMark(fundID, navMark)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mark, nil
}

// InvestmentRequestInput carries one signed investment intent. The permit
// must name the custodian as spender so the deposit can be pulled.
type InvestmentRequestInput struct {
	Investor  string `json:"investor"`
	UsdAmount string `json:"usdAmount"`
	MinShares string `json:"minShares,omitempty"`
	MaxShares string `json:"maxShares,omitempty"`
	Deadline  int64  `json:"deadline"`
	// Nonce is the investor's fund request nonce. The permit itself is
	// signed over the stablecoin's own nonce counter, which this service
	// reads from the token; the two advance independently.
	Nonce uint64 `json:"nonce"`
	// Signature is the 65-byte EIP-712 permit signature, hex encoded by the
	// API layer.
	Signature []byte `json:"-"`
}

// SubmitInvestmentRequest verifies the investor's permit, collects the
// deposit into custody and files the request. The deposit is escrowed at
// submission; cancellation refunds it.
func (s *FundService) SubmitInvestmentRequest(ctx context.Context, fundID string, input *InvestmentRequestInput) error {
	investor, err := parseAddress(input.Investor)
	if err != nil {
		return err
	}
	usdAmount, err := parseAmount(input.UsdAmount)
	if err != nil {
		return err
	}
	var minShares, maxShares *big.Int
	if input.MinShares != "" {
		if minShares, err = parseAmount(input.MinShares); err != nil {
			return err
		}
	}
	if input.MaxShares != "" {
		if maxShares, err = parseAmount(input.MaxShares); err != nil {
			return err
		}
	}

	permitNonce, err := s.stablecoin.Nonces(ctx, investor)
	if err != nil {
		return fmt.Errorf("failed to read permit nonce: %w", err)
	}
	permit := sig.Permit{
		Owner:    investor,
		Spender:  s.stablecoin.Custodian(),
		Value:    usdAmount,
		Nonce:    permitNonce,
		Deadline: big.NewInt(input.Deadline),
	}
	if err := sig.Verify(s.stablecoin.Domain(), permit, input.Signature); err != nil {
		return err
	}

	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		var priorEscrow *big.Int
		if req := engine.State().InvestmentRequests[investor]; !req.Empty() {
			priorEscrow = new(big.Int).Set(req.UsdAmount)
		}
		if err := engine.SubmitInvestmentRequest(investor, usdAmount, minShares, maxShares, input.Deadline, input.Nonce); err != nil {
			return err
		}
		if err := s.stablecoin.Collect(ctx, permit, input.Signature); err != nil {
			return err
		}
		// Filing over a pending slot implicitly cancels it; the old deposit
		// goes back the same way an explicit cancel refunds it.
		if priorEscrow != nil {
			return s.stablecoin.Payout(ctx, investor, priorEscrow)
		}
		return nil
	})
}

// CancelInvestmentRequest zeroes the investor's pending investment request
// and refunds the escrowed deposit.
func (s *FundService) CancelInvestmentRequest(ctx context.Context, fundID, investor string) error {
	addr, err := parseAddress(investor)
	if err != nil {
		return err
	}
	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		refund := big.NewInt(0)
		if req := engine.State().InvestmentRequests[addr]; !req.Empty() {
			refund = new(big.Int).Set(req.UsdAmount)
		}
		if err := engine.CancelInvestmentRequest(addr); err != nil {
			return err
		}
		return s.stablecoin.Payout(ctx, addr, refund)
	})
}

// RedemptionRequestInput carries one signed redemption intent. The permit
// names the fund address as spender.
type RedemptionRequestInput struct {
	Investor     string `json:"investor"`
	InvestmentID uint64 `json:"investmentId"`
	MinUsdOut    string `json:"minUsdOut,omitempty"`
	Deadline     int64  `json:"deadline"`
	Nonce        uint64 `json:"nonce"`
	Signature    []byte `json:"-"`
}

// SubmitRedemptionRequest verifies the investor's signature and files the
// redemption request against the named investment.
func (s *FundService) SubmitRedemptionRequest(ctx context.Context, fundID string, input *RedemptionRequestInput) error {
	investor, err := parseAddress(input.Investor)
	if err != nil {
		return err
	}
	minUsdOut := big.NewInt(0)
	if input.MinUsdOut != "" {
		if minUsdOut, err = parseAmount(input.MinUsdOut); err != nil {
			return err
		}
	}

	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		permit := sig.Permit{
			Owner:    investor,
			Spender:  engine.Config().Address,
			Value:    minUsdOut,
			Nonce:    new(big.Int).SetUint64(input.Nonce),
			Deadline: big.NewInt(input.Deadline),
		}
		if err := sig.Verify(s.stablecoin.Domain(), permit, input.Signature); err != nil {
			return err
		}
		return engine.SubmitRedemptionRequest(investor, input.InvestmentID, minUsdOut, input.Deadline, input.Nonce)
	})
}

// CancelRedemptionRequest zeroes the investor's pending redemption request.
func (s *FundService) CancelRedemptionRequest(ctx context.Context, fundID, investor string) error {
	addr, err := parseAddress(investor)
	if err != nil {
		return err
	}
	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		return engine.CancelRedemptionRequest(addr)
	})
}

// ProcessInvestmentRequest executes a pending investment request at the
// latest NAV mark. The deposit was collected at submission.
func (s *FundService) ProcessInvestmentRequest(ctx context.Context, fundID, caller, investor string) (*models.Investment, error) {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return nil, err
	}
	investorAddr, err := parseAddress(investor)
	if err != nil {
		return nil, err
	}

	var result *models.Investment
	err = s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		inv, err := engine.ProcessInvestmentRequest(callerAddr, investorAddr)
		if err != nil {
			return err
		}
		result = projectInvestment(fundID, inv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessRedemptionRequest executes a pending redemption request at the
// latest NAV mark and pays the investor from custody.
func (s *FundService) ProcessRedemptionRequest(ctx context.Context, fundID, caller, investor string) (*ledger.RedemptionResult, error) {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return nil, err
	}
	investorAddr, err := parseAddress(investor)
	if err != nil {
		return nil, err
	}

	var result *ledger.RedemptionResult
	err = s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		res, err := engine.ProcessRedemptionRequest(callerAddr, investorAddr)
		if err != nil {
			return err
		}
		result = res
		return s.stablecoin.Payout(ctx, investorAddr, res.UsdOut)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddManualInvestment records an off-platform position at the current share
// price without touching custody. Settlement happened outside the system.
func (s *FundService) AddManualInvestment(ctx context.Context, fundID, caller, investor, usdAmount, note string) (*models.Investment, error) {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return nil, err
	}
	investorAddr, err := parseAddress(investor)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(usdAmount)
	if err != nil {
		return nil, err
	}

	var result *models.Investment
	err = s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		inv, err := engine.AddManualInvestment(callerAddr, investorAddr, amount, note)
		if err != nil {
			return err
		}
		result = projectInvestment(fundID, inv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddManualRedemption redeems an investment at the current share price. The
// stablecoin settles off-platform; MarkTransferCompleted records it.
func (s *FundService) AddManualRedemption(ctx context.Context, fundID, caller string, investmentID uint64, minUsdOut string) (*ledger.RedemptionResult, error) {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return nil, err
	}
	min := big.NewInt(0)
	if minUsdOut != "" {
		if min, err = parseAmount(minUsdOut); err != nil {
			return nil, err
		}
	}

	var result *ledger.RedemptionResult
	err = s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		res, err := engine.AddManualRedemption(callerAddr, investmentID, min)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkTransferCompleted records that a redeemed investment's payout settled
// off-platform.
func (s *FundService) MarkTransferCompleted(ctx context.Context, fundID, caller string, investmentID uint64) error {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return err
	}
	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		return engine.MarkTransferCompleted(callerAddr, investmentID)
	})
}

// SweepFees realizes management and performance fees on the given
// investments. The whole batch is atomic.
func (s *FundService) SweepFees(ctx context.Context, fundID, caller string, investmentIDs []uint64) ([]ledger.FeeSweepResult, error) {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return nil, err
	}

	var results []ledger.FeeSweepResult
	err = s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		res, err := engine.SweepFees(callerAddr, investmentIDs)
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// WithdrawFees converts pooled fee shares to stablecoin and pays the fee
// recipient from custody.
func (s *FundService) WithdrawFees(ctx context.Context, fundID, caller, shareAmount string) (*ledger.WithdrawResult, error) {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return nil, err
	}
	shares, err := parseAmount(shareAmount)
	if err != nil {
		return nil, err
	}

	var result *ledger.WithdrawResult
	err = s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		res, err := engine.WithdrawFees(callerAddr, shares)
		if err != nil {
			return err
		}
		result = res
		return s.stablecoin.Payout(ctx, engine.Config().FeeRecipient, res.UsdOut)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CloseFund terminally closes the fund. Open requests must be cancelled
// first; fee withdrawal and manual redemptions stay possible afterwards.
func (s *FundService) CloseFund(ctx context.Context, fundID, caller string) error {
	callerAddr, err := parseAddress(caller)
	if err != nil {
		return err
	}
	return s.withFund(ctx, fundID, func(engine *ledger.Engine) error {
		return engine.CloseFund(callerAddr)
	})
}

// GetLatestNav returns the most recent NAV mark, served from cache when
// possible.
func (s *FundService) GetLatestNav(ctx context.Context, fundID string) (*models.NavMark, error) {
	if s.navCache != nil {
		mark, err := s.navCache.Get(ctx, fundID)
		if err != nil {
			logging.WithError(err).WithField("fundId", fundID).Warn("NAV cache read failed")
		} else if mark != nil {
			return mark, nil
		}
	}

	mark, err := s.navRepo.Latest(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if s.navCache != nil {
		if err := s.navCache.Put(ctx, mark); err != nil {
			logging.WithError(err).WithField("fundId", fundID).Warn("Failed to cache latest NAV")
		}
	}
	return mark, nil
}

// GetNavHistory returns NAV marks in the window, oldest first.
func (s *FundService) GetNavHistory(ctx context.Context, fundID string, from, to time.Time, limit int) ([]*models.NavMark, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	return s.navRepo.History(ctx, fundID, from, to, limit)
}

// ListInvestments returns all investment projections of a fund.
func (s *FundService) ListInvestments(ctx context.Context, fundID string) ([]*models.Investment, error) {
	return s.invRepo.ListByFund(ctx, fundID)
}

// ListInvestorInvestments returns one investor's investment projections.
func (s *FundService) ListInvestorInvestments(ctx context.Context, fundID, investor string) ([]*models.Investment, error) {
	addr, err := parseAddress(investor)
	if err != nil {
		return nil, err
	}
	return s.invRepo.ListByInvestor(ctx, fundID, addr.Hex())
}

// GetInvestor summarizes an investor's standing from the fund snapshot.
func (s *FundService) GetInvestor(ctx context.Context, fundID, investor string) (*models.InvestorSummary, error) {
	addr, err := parseAddress(investor)
	if err != nil {
		return nil, err
	}
	state, err := s.readState(ctx, fundID)
	if err != nil {
		return nil, err
	}

	summary := &models.InvestorSummary{
		FundID:  fundID,
		Address: addr.Hex(),
		Shares:  state.Shares.BalanceOf(addr).String(),
	}
	if inv, ok := state.Investors[addr]; ok {
		summary.Name = inv.Name
		summary.Whitelisted = inv.Whitelisted
		summary.ActiveInvestments = inv.ActiveInvestments
		summary.NextNonce = inv.NextNonce
	}
	return summary, nil
}

// projectFund refreshes a registry row's scalar columns from the snapshot.
func projectFund(fund *models.Fund, state *ledger.FundState) {
	fund.Status = types.FundOpen
	if state.Closed {
		fund.Status = types.FundClosed
	}
	fund.Aum = state.Aum.String()
	fund.TotalSupply = state.Shares.TotalSupply().String()
	fund.TotalCapital = state.TotalCapital.String()
	fund.SharePrice = "0"
	if mark := state.LatestMark(); mark != nil {
		fund.SharePrice = mark.Price.String()
	}
}

// projectInvestment converts a ledger investment to its query projection.
func projectInvestment(fundID string, inv *ledger.Investment) *models.Investment {
	row := &models.Investment{
		FundID:           fundID,
		InvestmentID:     inv.ID,
		Investor:         inv.Investor.Hex(),
		Status:           types.StatusActive,
		InitialUsdAmount: inv.InitialUsdAmount.String(),
		InitialShares:    inv.InitialShares.String(),
		Shares:           inv.Shares.String(),
		HighWaterMark:    inv.HighWaterMark.String(),
		ManagementFees:   inv.ManagementFeeShares.String(),
		PerformanceFees:  inv.PerformanceFeeShares.String(),
		RedeemedUsd:      "0",
		Manual:           inv.Manual,
		Note:             inv.Note,
		CreatedAt:        time.Unix(inv.CreatedAt, 0).UTC(),
	}
	if inv.Redeemed {
		row.Status = types.StatusRedeemed
		row.RedeemedUsd = inv.RedeemedUsd.String()
		redeemedAt := time.Unix(inv.RedeemedAt, 0).UTC()
		row.RedeemedAt = &redeemedAt
	}
	return row
}

// projectMark converts a ledger NAV mark to its query projection.
func projectMark(fundID string, mark *ledger.NAVMark) *models.NavMark {
	return &models.NavMark{
		FundID:       fundID,
		Aum:          mark.Aum.String(),
		Supply:       mark.Supply.String(),
		Price:        mark.Price.String(),
		TotalCapital: mark.TotalCapital.String(),
		MarkedAt:     time.Unix(mark.Timestamp, 0).UTC(),
	}
}
