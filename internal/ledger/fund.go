package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fund-ledger/internal/types"
)

// Engine wires the fund accounting state machine with a time source and an
// event emitter. All methods execute atomically: validation completes before
// the first mutation, so an error leaves the state untouched. The Engine is
// not safe for concurrent use; callers serialize access per fund.
type Engine struct {
	state   *FundState
	nowFn   func() int64
	emitter EventEmitter
}

// NewEngine creates an engine over a fresh fund state.
func NewEngine(cfg *FundConfig) (*Engine, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		state:   NewFundState(cfg),
		nowFn:   func() int64 { return time.Now().Unix() },
		emitter: NoopEmitter{},
	}, nil
}

// NewEngineFromState creates an engine over previously persisted state.
func NewEngineFromState(state *FundState) (*Engine, error) {
	if state == nil || state.Config == nil {
		return nil, ErrInvalidConfig
	}
	if err := state.Config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		state:   state,
		nowFn:   func() int64 { return time.Now().Unix() },
		emitter: NoopEmitter{},
	}, nil
}

// SetNowFunc overrides the time source. Intended for tests to provide
// deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter EventEmitter) {
	if emitter == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) now() int64 { return e.nowFn() }

// State exposes the underlying aggregate for persistence and read paths.
// Callers must not mutate it.
func (e *Engine) State() *FundState { return e.state }

// Config returns the fund configuration.
func (e *Engine) Config() *FundConfig { return e.state.Config }

// LatestNav returns the most recent NAV mark, or nil before initialization.
func (e *Engine) LatestNav() *NAVMark { return e.state.LatestMark() }

// SharePrice returns the current 18-decimal share price.
func (e *Engine) SharePrice() *big.Int {
	if e.state.Shares.TotalSupply().Sign() == 0 {
		return clone(e.state.Config.InitialSharePrice)
	}
	return priceFor(e.state.Aum, e.state.Shares.TotalSupply())
}

func (e *Engine) requireManager(caller common.Address) error {
	if caller != e.state.Config.Manager {
		return ErrNotManager
	}
	return nil
}

func (e *Engine) requireOpen() error {
	if e.state.Closed {
		return ErrFundClosed
	}
	return nil
}

func (e *Engine) requireInitialized() error {
	if !e.state.Initialized {
		return ErrNotInitialized
	}
	return nil
}

// appendMark records a NAV mark at the current time. AUM-only updates and
// atomic AUM+supply updates both flow through here so the history stays
// monotonic in timestamp.
func (e *Engine) appendMark() *NAVMark {
	mark := &NAVMark{
		Aum:          clone(e.state.Aum),
		Supply:       e.state.Shares.TotalSupply(),
		Price:        priceFor(e.state.Aum, e.state.Shares.TotalSupply()),
		TotalCapital: clone(e.state.TotalCapital),
		Timestamp:    e.now(),
	}
	e.state.NavHistory = append(e.state.NavHistory, mark)
	return mark
}

// Initialize seeds the fund with its starting AUM and mints the initial
// share supply to the manager at the configured initial price. Guarded so a
// second call cannot re-seed the ledger.
func (e *Engine) Initialize(caller common.Address, initialAum *big.Int) error {
	if err := e.requireManager(caller); err != nil {
		return err
	}
	if err := e.requireOpen(); err != nil {
		return err
	}
	if e.state.Initialized {
		return ErrAlreadyInitialized
	}
	if initialAum == nil || initialAum.Sign() <= 0 {
		return ErrInvalidAmount
	}

	shares := sharesForUsd(initialAum, nil, nil, e.state.Config.InitialSharePrice)
	if err := e.state.Shares.Mint(e.state.Config.Manager, shares); err != nil {
		return err
	}
	e.state.Aum = clone(initialAum)
	e.state.TotalCapital = clone(initialAum)
	e.state.Initialized = true
	mark := e.appendMark()

	e.emit(types.EventFundInitialized, map[string]string{
		"aum":    attrAmount(initialAum),
		"shares": attrAmount(shares),
		"price":  attrAmount(mark.Price),
	})
	return nil
}

// WhitelistInvestors whitelists a batch of addresses, idempotently. Names is
// optional and positional; the investor count grows only on first-time
// whitelisting.
func (e *Engine) WhitelistInvestors(caller common.Address, addrs []common.Address, names []string) error {
	if err := e.requireManager(caller); err != nil {
		return err
	}
	if err := e.requireOpen(); err != nil {
		return err
	}
	for i, addr := range addrs {
		if addr == (common.Address{}) {
			return ErrInvalidRecipient
		}
		inv := e.state.investor(addr)
		if i < len(names) && names[i] != "" {
			inv.Name = names[i]
		}
		if inv.Whitelisted {
			continue
		}
		inv.Whitelisted = true
		e.state.InvestorCount++
		e.emit(types.EventInvestorWhitelisted, map[string]string{
			"investor": addr.Hex(),
			"name":     inv.Name,
		})
	}
	return nil
}

// RevokeWhitelist removes whitelist status. Existing investments stay valid.
func (e *Engine) RevokeWhitelist(caller common.Address, addrs []common.Address) error {
	if err := e.requireManager(caller); err != nil {
		return err
	}
	for _, addr := range addrs {
		if inv, ok := e.state.Investors[addr]; ok {
			inv.Whitelisted = false
		}
	}
	return nil
}

// UpdateAUM appends a manager-attested NAV mark. A minimum interval between
// marks bounds manipulation. When processInvestor is non-nil, that
// investor's pending investment request is processed atomically at the new
// mark.
func (e *Engine) UpdateAUM(caller common.Address, newAum *big.Int, processInvestor *common.Address) (*NAVMark, error) {
	if err := e.requireManager(caller); err != nil {
		return nil, err
	}
	if err := e.requireOpen(); err != nil {
		return nil, err
	}
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if newAum == nil || newAum.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	last := e.state.LatestMark()
	if last != nil && e.now()-last.Timestamp < int64(e.state.Config.NavMarkInterval/time.Second) {
		return nil, ErrStaleAum
	}
	if processInvestor != nil {
		// Validate the combined processing up front so the mark is not
		// recorded when the request leg would fail.
		if err := e.checkProcessableInvestment(*processInvestor, newAum); err != nil {
			return nil, err
		}
	}

	e.state.Aum = clone(newAum)
	mark := e.appendMark()
	e.emit(types.EventNavUpdated, map[string]string{
		"aum":    attrAmount(mark.Aum),
		"supply": attrAmount(mark.Supply),
		"price":  attrAmount(mark.Price),
	})

	if processInvestor != nil {
		if _, err := e.ProcessInvestmentRequest(caller, *processInvestor); err != nil {
			return nil, err
		}
	}
	return mark, nil
}

// AddManualInvestment records a migrated off-chain position: shares are
// minted at the current price exactly as a processed request would, then AUM
// grows by the contributed amount so the share price is left unchanged.
func (e *Engine) AddManualInvestment(caller, investor common.Address, usdAmount *big.Int, note string) (*Investment, error) {
	if err := e.requireManager(caller); err != nil {
		return nil, err
	}
	if err := e.requireOpen(); err != nil {
		return nil, err
	}
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if investor == (common.Address{}) {
		return nil, ErrInvalidRecipient
	}
	if usdAmount == nil || usdAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	inv, err := e.createInvestment(investor, usdAmount, nil, nil)
	if err != nil {
		return nil, err
	}
	inv.Manual = true
	inv.Note = note
	return inv, nil
}

// createInvestment mints shares for a USD contribution at the current mark,
// bumps AUM by the same amount, and records the Investment row with its
// entry high-water mark. Slippage bounds are nil for manual investments.
func (e *Engine) createInvestment(investor common.Address, usdAmount, minShares, maxShares *big.Int) (*Investment, error) {
	shares := sharesForUsd(usdAmount, e.state.Aum, e.state.Shares.TotalSupply(), e.state.Config.InitialSharePrice)
	if shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if minShares != nil && shares.Cmp(minShares) < 0 {
		return nil, ErrSlippageExceeded
	}
	if maxShares != nil && maxShares.Sign() > 0 && shares.Cmp(maxShares) > 0 {
		return nil, ErrSlippageExceeded
	}
	if err := e.state.Shares.Mint(investor, shares); err != nil {
		return nil, err
	}
	e.state.Aum.Add(e.state.Aum, usdAmount)
	e.state.TotalCapital.Add(e.state.TotalCapital, usdAmount)

	now := e.now()
	inv := &Investment{
		ID:                   e.state.NextInvestmentID,
		Investor:             investor,
		InitialUsdAmount:     clone(usdAmount),
		InitialShares:        clone(shares),
		Shares:               clone(shares),
		HighWaterMark:        usdWad(usdAmount),
		CreatedAt:            now,
		LastFeeSweep:         now,
		ManagementFeeShares:  big.NewInt(0),
		PerformanceFeeShares: big.NewInt(0),
	}
	e.state.NextInvestmentID++
	e.state.Investments[inv.ID] = inv
	e.state.investor(investor).ActiveInvestments++

	mark := e.appendMark()
	e.emit(types.EventInvestmentCreated, map[string]string{
		"id":       attrID(inv.ID),
		"investor": investor.Hex(),
		"usd":      attrAmount(usdAmount),
		"shares":   attrAmount(shares),
		"price":    attrAmount(mark.Price),
	})
	return inv, nil
}

// AddManualRedemption is the manager exit path for one investment: remaining
// shares are valued at the current price, burned, and the stablecoin leg is
// reported back to the caller for settlement.
func (e *Engine) AddManualRedemption(caller common.Address, investmentID uint64, minUsdOut *big.Int) (*RedemptionResult, error) {
	if err := e.requireManager(caller); err != nil {
		return nil, err
	}
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	inv, ok := e.state.Investments[investmentID]
	if !ok {
		return nil, ErrUnknownInvestment
	}
	return e.redeem(inv, minUsdOut)
}

// RedemptionResult reports the settled amounts of a redemption.
type RedemptionResult struct {
	Investment *Investment
	// UsdOut is the 6-decimal stablecoin amount owed to the investor.
	UsdOut *big.Int
	// SharesBurned is the 18-decimal share amount destroyed.
	SharesBurned *big.Int
}

// redeem burns an investment's remaining shares at the current price and
// marks the record redeemed. Redeemed rows are kept forever.
func (e *Engine) redeem(inv *Investment, minUsdOut *big.Int) (*RedemptionResult, error) {
	if inv.Redeemed {
		return nil, ErrAlreadyRedeemed
	}
	usd18 := usdForShares(inv.Shares, e.state.Aum, e.state.Shares.TotalSupply())
	usdOut := wadUsd(usd18)
	if minUsdOut != nil && usdOut.Cmp(minUsdOut) < 0 {
		return nil, ErrSlippageExceeded
	}
	shares := clone(inv.Shares)
	if err := e.state.Shares.Burn(inv.Investor, shares); err != nil {
		return nil, err
	}
	e.state.Aum.Sub(e.state.Aum, usdOut)

	now := e.now()
	inv.Shares = big.NewInt(0)
	inv.Redeemed = true
	inv.RedeemedAt = now
	inv.RedeemedUsd = clone(usdOut)
	if holder, ok := e.state.Investors[inv.Investor]; ok && holder.ActiveInvestments > 0 {
		holder.ActiveInvestments--
	}
	mark := e.appendMark()
	e.emit(types.EventRedemptionCompleted, map[string]string{
		"id":       attrID(inv.ID),
		"investor": inv.Investor.Hex(),
		"usd":      attrAmount(usdOut),
		"shares":   attrAmount(shares),
		"price":    attrAmount(mark.Price),
	})
	return &RedemptionResult{Investment: inv, UsdOut: usdOut, SharesBurned: shares}, nil
}

// MarkTransferCompleted records that the stablecoin leg of a redemption
// settled.
func (e *Engine) MarkTransferCompleted(caller common.Address, investmentID uint64) error {
	if err := e.requireManager(caller); err != nil {
		return err
	}
	inv, ok := e.state.Investments[investmentID]
	if !ok {
		return ErrUnknownInvestment
	}
	if !inv.Redeemed {
		return ErrUnknownInvestment
	}
	inv.TransferCompleted = true
	return nil
}

// CloseFund terminally closes the fund. Pending requests must be processed
// or cancelled first. After closing, only manual redemptions and fee
// withdrawal remain possible.
func (e *Engine) CloseFund(caller common.Address) error {
	if err := e.requireManager(caller); err != nil {
		return err
	}
	if err := e.requireOpen(); err != nil {
		return err
	}
	if e.state.hasOpenRequests() {
		return ErrOpenRequestsPreventClosing
	}
	e.state.Closed = true
	e.state.ClosedAt = e.now()
	e.emit(types.EventFundClosed, nil)
	return nil
}
