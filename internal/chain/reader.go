// Package chain provides read-only access to confirmed Solana state for
// payment verification. The verifier only ever reads; transaction
// submission is the client's problem.
package chain

import (
	"context"
	"errors"
	"time"
)

// ErrTransactionNotFound is returned when the signature does not resolve
// to a confirmed transaction.
var ErrTransactionNotFound = errors.New("chain: transaction not found")

// Instruction is a flattened view of one transaction instruction with
// account indexes already resolved to addresses.
type Instruction struct {
	ProgramID string
	Accounts  []string
}

// ConfirmedTransaction is the subset of a confirmed transaction the
// verifier inspects: the account list, its balance deltas, the
// instruction list, and execution metadata.
type ConfirmedTransaction struct {
	Accounts     []string
	PreBalances  []uint64
	PostBalances []uint64
	Instructions []Instruction
	BlockTime    time.Time
	Failed       bool
	FailureText  string
}

// Reader exposes the two chain queries verification needs.
type Reader interface {
	// GetConfirmedTransaction fetches a transaction at confirmed
	// commitment. Returns ErrTransactionNotFound when the signature is
	// unknown or not yet confirmed.
	GetConfirmedTransaction(ctx context.Context, signature string) (*ConfirmedTransaction, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// Endpoint returns the RPC endpoint in use, for network policy checks.
	Endpoint() string
}
