package ledger

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ShareLedger maintains proportional fund-share ownership. Holders are
// credited in internal base units; the externally observable balance is
// base*supply/baseSupply. Fee collection and dividend dispersal adjust the
// base supply instead of iterating holders, so both are O(1) in holder count.
//
// Invariant: sum(observable balances) == supply within rounding drift of at
// most one unit per scale-adjusting operation.
type ShareLedger struct {
	bases      map[common.Address]*big.Int
	baseSupply *big.Int
	supply     *big.Int
}

// NewShareLedger creates an empty share ledger.
func NewShareLedger() *ShareLedger {
	return &ShareLedger{
		bases:      make(map[common.Address]*big.Int),
		baseSupply: big.NewInt(0),
		supply:     big.NewInt(0),
	}
}

// TotalSupply returns the observable share supply.
func (l *ShareLedger) TotalSupply() *big.Int {
	return clone(l.supply)
}

// BalanceOf returns the observable balance of a holder.
func (l *ShareLedger) BalanceOf(holder common.Address) *big.Int {
	base, ok := l.bases[holder]
	if !ok || isZero(base) || isZero(l.baseSupply) {
		return big.NewInt(0)
	}
	return mulDiv(base, l.supply, l.baseSupply)
}

// Mint credits amount of observable value to the recipient and grows the
// supply by the same amount.
func (l *ShareLedger) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	var base *big.Int
	if l.supply.Sign() == 0 {
		base = clone(amount)
	} else {
		base = mulDiv(amount, l.baseSupply, l.supply)
		if base.Sign() == 0 {
			// Never let a positive mint vanish below base-unit resolution.
			base = big.NewInt(1)
		}
	}
	l.credit(to, base)
	l.baseSupply.Add(l.baseSupply, base)
	l.supply.Add(l.supply, amount)
	return nil
}

// Burn destroys amount of observable value held by from and shrinks the
// supply by the same amount.
func (l *ShareLedger) Burn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	base, err := l.debitBase(from, amount)
	if err != nil {
		return err
	}
	l.baseSupply.Sub(l.baseSupply, base)
	l.supply.Sub(l.supply, amount)
	return nil
}

// Transfer moves amount of observable value between holders.
func (l *ShareLedger) Transfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if l.BalanceOf(from).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	base, err := l.debitBase(from, amount)
	if err != nil {
		return err
	}
	l.credit(to, base)
	return nil
}

// CollectFees mints amount of observable value to the recipient by scaling
// every other holder's balance down proportionally: base units credited at
// the post-dilution rate leave the total supply unchanged.
func (l *ShareLedger) CollectFees(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	remainder := new(big.Int).Sub(l.supply, amount)
	if remainder.Sign() <= 0 {
		return ErrInsufficientBalance
	}
	base := mulDiv(amount, l.baseSupply, remainder)
	if base.Sign() == 0 {
		base = big.NewInt(1)
	}
	l.credit(to, base)
	l.baseSupply.Add(l.baseSupply, base)
	return nil
}

// DisperseDividends is the inverse of CollectFees: it pays amount of the
// holder's observable value out to all other holders pro rata, without
// changing the total supply.
func (l *ShareLedger) DisperseDividends(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance := l.BalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	// A sole holder paying out their whole balance would strip the base
	// supply while the observable supply stays positive. Mirrors the
	// CollectFees whole-supply guard.
	if balance.Cmp(amount) == 0 && l.bases[from].Cmp(l.baseSupply) == 0 {
		return ErrInsufficientBalance
	}
	base, err := l.debitBase(from, amount)
	if err != nil {
		return err
	}
	l.baseSupply.Sub(l.baseSupply, base)
	return nil
}

// Holders returns the addresses with a non-zero base balance in
// deterministic order.
func (l *ShareLedger) Holders() []common.Address {
	holders := make([]common.Address, 0, len(l.bases))
	for addr, base := range l.bases {
		if !isZero(base) {
			holders = append(holders, addr)
		}
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Cmp(holders[j]) < 0
	})
	return holders
}

// credit adds base units to a holder.
func (l *ShareLedger) credit(to common.Address, base *big.Int) {
	if cur, ok := l.bases[to]; ok {
		cur.Add(cur, base)
		return
	}
	l.bases[to] = clone(base)
}

// debitBase converts an observable amount into base units and removes them
// from the holder. A full-balance debit removes the holder's entire base so
// rounding dust cannot accumulate.
func (l *ShareLedger) debitBase(from common.Address, amount *big.Int) (*big.Int, error) {
	balance := l.BalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	cur := l.bases[from]
	var base *big.Int
	if balance.Cmp(amount) == 0 {
		base = clone(cur)
	} else {
		base = mulDiv(amount, l.baseSupply, l.supply)
		if base.Sign() == 0 {
			base = big.NewInt(1)
		}
		if base.Cmp(cur) > 0 {
			base = clone(cur)
		}
	}
	cur.Sub(cur, base)
	if cur.Sign() == 0 {
		delete(l.bases, from)
	}
	return base, nil
}
