package adapter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fund-ledger/internal/circuitbreaker"
	"github.com/fund-ledger/internal/config"
	"github.com/fund-ledger/internal/logging"
	"github.com/fund-ledger/internal/retry"
	"github.com/fund-ledger/internal/sig"
)

// ERC20 + EIP-2612 surface used by the custody flows.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"},{"name":"value","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"name":"permit","outputs":[],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"nonces","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var (
	// ErrWrongSpender is returned when a permit does not authorize the
	// custodian to move the investor's stablecoin.
	ErrWrongSpender = errors.New("permit spender is not the custodian")

	// ErrPermitExpired is returned when a permit's deadline has passed.
	ErrPermitExpired = errors.New("permit deadline expired")

	// ErrStalePermitNonce is returned when a permit's nonce does not match
	// the owner's next expected nonce.
	ErrStalePermitNonce = errors.New("permit nonce mismatch")

	// ErrMissingOperatorKey is returned when an RPC URL is configured but no
	// operator key is available to sign custody transactions.
	ErrMissingOperatorKey = errors.New("operator key required for on-chain custody")
)

// StablecoinClient settles the stablecoin legs of fund operations. Amounts
// are in the token's smallest unit (6 decimals for USDC). Collect pulls an
// investor deposit into custody under an EIP-2612 permit; Payout sends
// custody funds out for redemptions and fee withdrawals.
type StablecoinClient interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	// Nonces returns the owner's next permit nonce. Permits are built over
	// this counter, which advances only on accepted collects and is
	// independent of the fund's request nonces.
	Nonces(ctx context.Context, owner common.Address) (*big.Int, error)
	Collect(ctx context.Context, permit sig.Permit, signature []byte) error
	Payout(ctx context.Context, to common.Address, amount *big.Int) error
	Custodian() common.Address
	Domain() sig.Domain
	Close()
}

// NewStablecoinClient builds a client from chain configuration. An empty RPC
// URL selects offline custody mode, where permits are verified locally and
// settlement is book-entry.
func NewStablecoinClient(cfg config.ChainConfig) (StablecoinClient, error) {
	domain := sig.Domain{
		Name:              cfg.PermitName,
		Version:           cfg.PermitVersion,
		ChainID:           big.NewInt(cfg.ChainID),
		VerifyingContract: common.HexToAddress(cfg.Stablecoin),
	}

	if cfg.RPCURL == "" {
		return NewCustodyClient(domain), nil
	}
	return NewERC20Client(cfg, domain)
}

// ERC20Client settles custody flows against the configured stablecoin
// contract. All RPC calls run behind a circuit breaker with exponential
// backoff retries.
type ERC20Client struct {
	client        *ethclient.Client
	token         common.Address
	contract      abi.ABI
	key           *ecdsa.PrivateKey
	operator      common.Address
	chainID       *big.Int
	confirmations uint64
	domain        sig.Domain
	breaker       *circuitbreaker.CircuitBreaker
	retryConfig   *retry.RetryConfig
	logger        *logging.Logger
}

// NewERC20Client dials the RPC endpoint and prepares the operator signer.
func NewERC20Client(cfg config.ChainConfig, domain sig.Domain) (*ERC20Client, error) {
	if cfg.OperatorKey == "" {
		return nil, ErrMissingOperatorKey
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse operator key: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain RPC: %w", err)
	}

	contract, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	return &ERC20Client{
		client:        client,
		token:         common.HexToAddress(cfg.Stablecoin),
		contract:      contract,
		key:           key,
		operator:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:       big.NewInt(cfg.ChainID),
		confirmations: uint64(cfg.Confirmations),
		domain:        domain,
		breaker:       circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("stablecoin-rpc")),
		retryConfig:   retry.DefaultRetryConfig(),
		logger:        logging.WithField("component", "stablecoin"),
	}, nil
}

// BalanceOf returns the stablecoin balance of the owner.
func (c *ERC20Client) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := c.contract.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	var result []byte
	err = c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			result, err = c.client.CallContract(ctx, ethereum.CallMsg{
				To:   &c.token,
				Data: data,
			}, nil)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	if len(result) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(result), nil
}

// Nonces returns the owner's next permit nonce from the token contract.
func (c *ERC20Client) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := c.contract.Pack("nonces", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack nonces: %w", err)
	}

	var result []byte
	err = c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			result, err = c.client.CallContract(ctx, ethereum.CallMsg{
				To:   &c.token,
				Data: data,
			}, nil)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call nonces: %w", err)
	}

	if len(result) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(result), nil
}

// Collect submits the investor's permit and pulls the deposit into the
// operator custody account via transferFrom. The permit must name the
// operator as spender.
func (c *ERC20Client) Collect(ctx context.Context, permit sig.Permit, signature []byte) error {
	if permit.Spender != c.operator {
		return ErrWrongSpender
	}
	if len(signature) != crypto.SignatureLength {
		return sig.ErrInvalidSignature
	}

	v := signature[64]
	if v < 27 {
		v += 27
	}
	var r, s [32]byte
	copy(r[:], signature[0:32])
	copy(s[:], signature[32:64])

	permitData, err := c.contract.Pack("permit",
		permit.Owner, permit.Spender, permit.Value, permit.Deadline, v, r, s)
	if err != nil {
		return fmt.Errorf("failed to pack permit: %w", err)
	}
	if err := c.sendAndWait(ctx, permitData); err != nil {
		return fmt.Errorf("permit transaction failed: %w", err)
	}

	pullData, err := c.contract.Pack("transferFrom", permit.Owner, c.operator, permit.Value)
	if err != nil {
		return fmt.Errorf("failed to pack transferFrom: %w", err)
	}
	if err := c.sendAndWait(ctx, pullData); err != nil {
		return fmt.Errorf("transferFrom transaction failed: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"owner":  permit.Owner.Hex(),
		"amount": permit.Value.String(),
	}).Info("Collected investor deposit")

	return nil
}

// Payout transfers stablecoin from custody to the recipient.
func (c *ERC20Client) Payout(ctx context.Context, to common.Address, amount *big.Int) error {
	data, err := c.contract.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transfer: %w", err)
	}
	if err := c.sendAndWait(ctx, data); err != nil {
		return fmt.Errorf("transfer transaction failed: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"to":     to.Hex(),
		"amount": amount.String(),
	}).Info("Paid out from custody")

	return nil
}

// Custodian returns the operator address holding pooled stablecoin.
func (c *ERC20Client) Custodian() common.Address {
	return c.operator
}

// Domain returns the stablecoin's EIP-712 domain.
func (c *ERC20Client) Domain() sig.Domain {
	return c.domain
}

// Close closes the RPC connection.
func (c *ERC20Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// sendAndWait signs and submits a transaction to the token contract and
// blocks until the receipt has the configured number of confirmations.
func (c *ERC20Client) sendAndWait(ctx context.Context, data []byte) error {
	var txHash common.Hash

	err := c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			nonce, err := c.client.PendingNonceAt(ctx, c.operator)
			if err != nil {
				return err
			}
			gasPrice, err := c.client.SuggestGasPrice(ctx)
			if err != nil {
				return err
			}
			gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
				From: c.operator,
				To:   &c.token,
				Data: data,
			})
			if err != nil {
				return err
			}

			tx := ethtypes.NewTransaction(nonce, c.token, big.NewInt(0), gasLimit, gasPrice, data)
			signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
			if err != nil {
				return err
			}
			if err := c.client.SendTransaction(ctx, signed); err != nil {
				return err
			}
			txHash = signed.Hash()
			return nil
		})
	})
	if err != nil {
		return err
	}

	return c.waitConfirmed(ctx, txHash)
}

// waitConfirmed polls until the transaction is mined with enough
// confirmations, or the context expires.
func (c *ERC20Client) waitConfirmed(ctx context.Context, txHash common.Hash) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", txHash.Hex())
			}
			head, err := c.client.BlockNumber(ctx)
			if err == nil && head >= receipt.BlockNumber.Uint64()+c.confirmations {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation wait for %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
