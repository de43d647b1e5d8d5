package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solbeacon/server/internal/circuitbreaker"
	"github.com/solbeacon/server/internal/metrics"
	"github.com/solbeacon/server/internal/rpcutil"
)

// DefaultQueryTimeout bounds a single RPC query. Chain queries dominate
// request latency; a hung endpoint must not hold a request open.
const DefaultQueryTimeout = 10 * time.Second

// SolanaReader implements Reader against a Solana RPC endpoint.
type SolanaReader struct {
	client   *rpc.Client
	endpoint string
	network  string
	timeout  time.Duration
	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics
}

// NewSolanaReader creates a reader for the given RPC endpoint.
func NewSolanaReader(rpcURL string) (*SolanaReader, error) {
	if rpcURL == "" {
		return nil, errors.New("chain: rpc url required")
	}
	return &SolanaReader{
		client:   rpc.New(rpcURL),
		endpoint: rpcURL,
		timeout:  DefaultQueryTimeout,
	}, nil
}

// WithBreakers adds circuit breaker protection to RPC calls.
func (s *SolanaReader) WithBreakers(m *circuitbreaker.Manager) *SolanaReader {
	s.breakers = m
	return s
}

// WithMetrics adds RPC call metrics, labeled by network.
func (s *SolanaReader) WithMetrics(m *metrics.Metrics, network string) *SolanaReader {
	s.metrics = m
	s.network = network
	return s
}

// WithTimeout overrides the per-query timeout.
func (s *SolanaReader) WithTimeout(d time.Duration) *SolanaReader {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Endpoint returns the RPC endpoint in use.
func (s *SolanaReader) Endpoint() string {
	return s.endpoint
}

// GetConfirmedTransaction fetches and flattens a confirmed transaction.
func (s *SolanaReader) GetConfirmedTransaction(ctx context.Context, signature string) (*ConfirmedTransaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("chain: parse signature: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	start := time.Now()
	result, err := s.execute(ctx, func() (interface{}, error) {
		out, err := s.client.GetTransaction(ctx, sig, opts)
		if errors.Is(err, rpc.ErrNotFound) {
			// A missing transaction is an answer, not an endpoint
			// failure; it must not count against the breaker.
			return (*rpc.GetTransactionResult)(nil), nil
		}
		return out, err
	})
	if s.metrics != nil {
		s.metrics.ObserveRPCCall("GetTransaction", s.network, time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("chain: get transaction: %w", err)
	}

	out, _ := result.(*rpc.GetTransactionResult)
	if out == nil || out.Transaction == nil {
		return nil, ErrTransactionNotFound
	}

	return flattenTransaction(out)
}

// GetBalance returns the lamport balance of an account at confirmed
// commitment.
func (s *SolanaReader) GetBalance(ctx context.Context, address string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("chain: parse address: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.client.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	})
	if s.metrics != nil {
		s.metrics.ObserveRPCCall("GetBalance", s.network, time.Since(start), err)
	}
	if err != nil {
		return 0, fmt.Errorf("chain: get balance: %w", err)
	}

	out, _ := result.(*rpc.GetBalanceResult)
	if out == nil {
		return 0, errors.New("chain: empty balance response")
	}
	return out.Value, nil
}

// execute routes the call through the Solana RPC circuit breaker when
// one is configured, with transient-failure retries inside the breaker
// so a retried success does not count as a failure.
func (s *SolanaReader) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if s.breakers == nil {
		return rpcutil.Do(ctx, fn)
	}
	return s.breakers.Execute(circuitbreaker.ServiceSolanaRPC, func() (interface{}, error) {
		return rpcutil.Do(ctx, fn)
	})
}

// flattenTransaction resolves instruction account indexes to addresses
// and lifts the metadata the verifier cares about.
func flattenTransaction(out *rpc.GetTransactionResult) (*ConfirmedTransaction, error) {
	decoded, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("chain: decode transaction: %w", err)
	}

	accounts := make([]string, len(decoded.Message.AccountKeys))
	for i, key := range decoded.Message.AccountKeys {
		accounts[i] = key.String()
	}

	tx := &ConfirmedTransaction{
		Accounts: accounts,
	}

	if out.Meta != nil {
		tx.PreBalances = out.Meta.PreBalances
		tx.PostBalances = out.Meta.PostBalances
		if out.Meta.Err != nil {
			tx.Failed = true
			tx.FailureText = fmt.Sprintf("%v", out.Meta.Err)
		}
	}

	if out.BlockTime != nil {
		tx.BlockTime = out.BlockTime.Time()
	}

	for _, ins := range decoded.Message.Instructions {
		flat := Instruction{}
		if int(ins.ProgramIDIndex) < len(accounts) {
			flat.ProgramID = accounts[ins.ProgramIDIndex]
		}
		for _, idx := range ins.Accounts {
			if int(idx) < len(accounts) {
				flat.Accounts = append(flat.Accounts, accounts[idx])
			}
		}
		tx.Instructions = append(tx.Instructions, flat)
	}

	return tx, nil
}
