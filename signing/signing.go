// Package signing generates wallet identities and produces the CIP-8 shaped
// COSE_Sign1 proof-of-terms signatures the scavenger service expects at
// registration.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// Mainnet enterprise address header: payment-key-only credential, network 1.
const addressHeader = 0x61

// Identity is a freshly generated wallet identity. SigningKey is the
// ed25519 seed; both key fields are hex encoded for persistence.
type Identity struct {
	Address    string
	Pubkey     string
	SigningKey string
}

// CIP8Signer implements identity generation and terms signing with ed25519
// keys and CBOR COSE_Sign1 envelopes.
type CIP8Signer struct{}

func (CIP8Signer) GenerateIdentity() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("generating key: %w", err)
	}

	addr, err := addressFor(pub)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		Address:    addr,
		Pubkey:     hex.EncodeToString(pub),
		SigningKey: hex.EncodeToString(priv.Seed()),
	}, nil
}

// SignTerms builds the hex-encoded COSE_Sign1 envelope over the terms
// message: protected headers carry the signing algorithm and the raw address
// bytes, and the signature covers the canonical Signature1 structure.
func (CIP8Signer) SignTerms(id Identity, message string) (string, error) {
	seed, err := hex.DecodeString(id.SigningKey)
	if err != nil {
		return "", fmt.Errorf("decoding signing key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("signing key has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)

	addrBytes, err := addressBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return "", err
	}

	protected, err := cbor.Marshal(map[any]any{
		1:         -8, // EdDSA
		"address": addrBytes,
	})
	if err != nil {
		return "", fmt.Errorf("encoding protected headers: %w", err)
	}

	payload := []byte(message)
	toSign, err := cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
	if err != nil {
		return "", fmt.Errorf("encoding signature structure: %w", err)
	}
	sig := ed25519.Sign(priv, toSign)

	envelope, err := cbor.Marshal([]any{
		protected,
		map[string]any{"hashed": false},
		payload,
		sig,
	})
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}
	return hex.EncodeToString(envelope), nil
}

func addressBytes(pub ed25519.PublicKey) ([]byte, error) {
	hasher, err := blake2b.New(28, nil)
	if err != nil {
		return nil, err
	}
	hasher.Write(pub)
	return append([]byte{addressHeader}, hasher.Sum(nil)...), nil
}

func addressFor(pub ed25519.PublicKey) (string, error) {
	raw, err := addressBytes(pub)
	if err != nil {
		return "", err
	}
	grouped, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("regrouping address bytes: %w", err)
	}
	return bech32.Encode("addr", grouped)
}
