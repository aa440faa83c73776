package adapter

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fund-ledger/internal/logging"
	"github.com/fund-ledger/internal/sig"
)

// custodianAddress is the synthetic custody account used in offline mode.
var custodianAddress = common.HexToAddress("0x00000000000000000000000000000000C0570D14")

// CustodyClient is the offline StablecoinClient. Permits are verified
// locally against the configured EIP-712 domain and settlement is
// book-entry: the client tracks the total held under custody and each
// owner's permit nonce, so deposits replay-protect the same way the
// on-chain token would.
type CustodyClient struct {
	mu     sync.Mutex
	domain sig.Domain
	held   *big.Int
	nonces map[common.Address]uint64
	nowFn  func() time.Time
	logger *logging.Logger
}

// NewCustodyClient creates an offline custody client for the given domain.
func NewCustodyClient(domain sig.Domain) *CustodyClient {
	return &CustodyClient{
		domain: domain,
		held:   big.NewInt(0),
		nonces: make(map[common.Address]uint64),
		nowFn:  time.Now,
		logger: logging.WithField("component", "custody"),
	}
}

// BalanceOf reports the pooled custody balance for the custodian address
// and zero for everyone else. Investor wallets are not visible offline.
func (c *CustodyClient) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if owner == custodianAddress {
		return new(big.Int).Set(c.held), nil
	}
	return big.NewInt(0), nil
}

// Nonces returns the owner's next permit nonce.
func (c *CustodyClient) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return new(big.Int).SetUint64(c.nonces[owner]), nil
}

// Collect verifies the permit and records the deposit. The permit must name
// the custodian as spender, carry the owner's next nonce, and not be
// expired.
func (c *CustodyClient) Collect(ctx context.Context, permit sig.Permit, signature []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if permit.Spender != custodianAddress {
		return ErrWrongSpender
	}
	if permit.Deadline != nil && permit.Deadline.Int64() < c.nowFn().Unix() {
		return ErrPermitExpired
	}
	expected := c.nonces[permit.Owner]
	if permit.Nonce == nil || permit.Nonce.Uint64() != expected {
		return ErrStalePermitNonce
	}
	if err := sig.Verify(c.domain, permit, signature); err != nil {
		return err
	}

	c.nonces[permit.Owner] = expected + 1
	c.held.Add(c.held, permit.Value)

	c.logger.WithFields(map[string]interface{}{
		"owner":  permit.Owner.Hex(),
		"amount": permit.Value.String(),
	}).Info("Recorded custody deposit")

	return nil
}

// Payout records an outgoing settlement against the custody pool.
func (c *CustodyClient) Payout(ctx context.Context, to common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.held.Sub(c.held, amount)

	c.logger.WithFields(map[string]interface{}{
		"to":     to.Hex(),
		"amount": amount.String(),
	}).Info("Recorded custody payout")

	return nil
}

// Custodian returns the synthetic custody address used for offline permits.
func (c *CustodyClient) Custodian() common.Address {
	return custodianAddress
}

// Domain returns the stablecoin's EIP-712 domain.
func (c *CustodyClient) Domain() sig.Domain {
	return c.domain
}

// Close is a no-op for the offline client.
func (c *CustodyClient) Close() {}
