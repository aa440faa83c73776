package sig

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDomain() Domain {
	return Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(1),
		VerifyingContract: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	}
}

func testPermit(owner common.Address) Permit {
	return Permit{
		Owner:    owner,
		Spender:  common.HexToAddress("0x000000000000000000000000000000000000F00D"),
		Value:    big.NewInt(10_000_000_000),
		Nonce:    big.NewInt(0),
		Deadline: big.NewInt(1_800_000_000),
	}
}

func TestSignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	domain := testDomain()
	permit := testPermit(owner)

	signature, err := Sign(domain, permit, key)
	require.NoError(t, err)
	require.Len(t, signature, crypto.SignatureLength)

	require.NoError(t, Verify(domain, permit, signature))

	signer, err := Recover(domain, permit, signature)
	require.NoError(t, err)
	assert.Equal(t, owner, signer)
}

func TestVerifyAcceptsLegacyRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	domain := testDomain()
	permit := testPermit(owner)

	signature, err := Sign(domain, permit, key)
	require.NoError(t, err)

	// Wallets commonly emit V as 27/28 instead of 0/1.
	legacy := make([]byte, len(signature))
	copy(legacy, signature)
	legacy[64] += 27
	require.NoError(t, Verify(domain, permit, legacy))
}

func TestVerifyRejectsWrongOwner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	domain := testDomain()
	// The permit names a different owner than the actual signer.
	permit := testPermit(common.HexToAddress("0x00000000000000000000000000000000DeaDBeef"))

	signature, err := Sign(domain, permit, key)
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(domain, permit, signature), ErrInvalidSignature)
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	domain := testDomain()
	permit := testPermit(owner)

	signature, err := Sign(domain, permit, key)
	require.NoError(t, err)

	tampered := permit
	tampered.Value = big.NewInt(999_000_000_000)
	assert.ErrorIs(t, Verify(domain, tampered, signature), ErrInvalidSignature)

	otherDomain := domain
	otherDomain.ChainID = big.NewInt(137)
	assert.ErrorIs(t, Verify(otherDomain, permit, signature), ErrInvalidSignature)
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	domain := testDomain()
	permit := testPermit(common.Address{})

	assert.ErrorIs(t, Verify(domain, permit, nil), ErrInvalidSignature)
	assert.ErrorIs(t, Verify(domain, permit, make([]byte, 64)), ErrInvalidSignature)
}

func TestDigestIsDeterministic(t *testing.T) {
	domain := testDomain()
	permit := testPermit(common.HexToAddress("0x00000000000000000000000000000000000000A1"))

	first := Digest(domain, permit)
	second := Digest(domain, permit)
	assert.Equal(t, first, second)
	assert.Len(t, first, 32)

	// Any field change must move the digest.
	permit.Nonce = big.NewInt(1)
	assert.NotEqual(t, first, Digest(domain, permit))
}
