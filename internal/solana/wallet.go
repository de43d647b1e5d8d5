// Package solana holds chain-adjacent helpers that are pure computation
// and need no RPC access.
package solana

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// walletSalt namespaces the derivation so the same secret can safely be
// reused for other HMAC purposes later.
const walletSalt = "platform-wallet:"

var (
	// ErrMissingSecret is returned when no derivation secret is configured.
	ErrMissingSecret = errors.New("solana: wallet seed secret not configured")

	// ErrInvalidUserWallet is returned for an empty user wallet.
	ErrInvalidUserWallet = errors.New("solana: user wallet address required")
)

// WalletDeriver deterministically maps a user wallet address to a
// platform deposit address. The seed is an HMAC keyed by a server-side
// secret, so addresses are stable per user but unpredictable to anyone
// without the secret.
type WalletDeriver struct {
	secret []byte
}

// NewWalletDeriver creates a deriver from the configured secret.
func NewWalletDeriver(secret string) (*WalletDeriver, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &WalletDeriver{secret: []byte(secret)}, nil
}

// DeriveAddress returns the base58 platform deposit address for a user
// wallet. The same user wallet always yields the same address.
func (d *WalletDeriver) DeriveAddress(userWallet string) (string, error) {
	key, err := d.deriveKey(userWallet)
	if err != nil {
		return "", err
	}
	pub := key.Public().(ed25519.PublicKey)
	return solana.PublicKeyFromBytes(pub).String(), nil
}

// deriveKey computes the ed25519 private key for a user's platform
// wallet. Kept unexported; only the address leaves this package.
func (d *WalletDeriver) deriveKey(userWallet string) (ed25519.PrivateKey, error) {
	if userWallet == "" {
		return nil, ErrInvalidUserWallet
	}
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(walletSalt))
	mac.Write([]byte(userWallet))
	seed := mac.Sum(nil)
	return ed25519.NewKeyFromSeed(seed), nil
}
