// Package sig implements EIP-712 structured-data hashing and signature
// recovery for stablecoin permits. Verification is a pure function over the
// domain, message and signature, so the same scheme is testable with
// synthetic keypairs.
package sig

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidSignature covers malformed, forged and mismatched signatures.
	ErrInvalidSignature = errors.New("invalid signature")

	domainTypeHash = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitTypeHash = crypto.Keccak256([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
)

// Domain identifies the verifying contract per EIP-712.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Separator returns the 32-byte EIP-712 domain separator.
func (d Domain) Separator() []byte {
	return crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		uint256Bytes(d.ChainID),
		addressBytes(d.VerifyingContract),
	)
}

// Permit is the EIP-2612 permit message: owner authorizes spender to move
// value before deadline, bound to the owner's token nonce.
type Permit struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Nonce    *big.Int
	Deadline *big.Int
}

// StructHash returns the EIP-712 hash of the permit message.
func (p Permit) StructHash() []byte {
	return crypto.Keccak256(
		permitTypeHash,
		addressBytes(p.Owner),
		addressBytes(p.Spender),
		uint256Bytes(p.Value),
		uint256Bytes(p.Nonce),
		uint256Bytes(p.Deadline),
	)
}

// Digest returns the final signing digest:
// keccak256(0x19 0x01 ‖ domainSeparator ‖ structHash).
func Digest(domain Domain, permit Permit) []byte {
	return crypto.Keccak256([]byte{0x19, 0x01}, domain.Separator(), permit.StructHash())
}

// Sign produces a 65-byte [R ‖ S ‖ V] signature over the permit digest.
func Sign(domain Domain, permit Permit, key *ecdsa.PrivateKey) ([]byte, error) {
	signature, err := crypto.Sign(Digest(domain, permit), key)
	if err != nil {
		return nil, fmt.Errorf("sign permit: %w", err)
	}
	return signature, nil
}

// Recover returns the address that signed the permit. Both recovery-id
// conventions (0/1 and 27/28) are accepted.
func Recover(domain Domain, permit Permit, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(Digest(domain, permit), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that the signature over the permit was produced by the
// permit's owner.
func Verify(domain Domain, permit Permit, signature []byte) error {
	signer, err := Recover(domain, permit, signature)
	if err != nil {
		return err
	}
	if signer != permit.Owner {
		return ErrInvalidSignature
	}
	return nil
}

// uint256Bytes left-pads a big.Int to 32 bytes. Nil is treated as zero.
func uint256Bytes(x *big.Int) []byte {
	out := make([]byte, 32)
	if x == nil {
		return out
	}
	b := x.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// addressBytes left-pads an address to 32 bytes per ABI encoding.
func addressBytes(addr common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], addr.Bytes())
	return out
}
