package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL. Signature uniqueness
// is enforced by a dedicated used_signatures table written in the same
// transaction as the entity row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(connectionString string, pool PoolSettings) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		// Close() error during initialization cleanup is not
		// actionable; the connection failure is the real error.
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	applyPool(db, pool)

	store := &PostgresStore{db: db}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func applyPool(db *sql.DB, pool PoolSettings) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	lifetime := pool.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
}

// createTables creates the necessary tables if they don't exist.
func (s *PostgresStore) createTables() error {
	schema := `
		CREATE TABLE IF NOT EXISTS used_signatures (
			signature TEXT PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS beacons (
			id TEXT PRIMARY KEY,
			wallet TEXT NOT NULL,
			content TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			signature TEXT NOT NULL UNIQUE,
			amount_lamports BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_beacons_created_at ON beacons (created_at DESC);

		CREATE TABLE IF NOT EXISTS tips (
			id TEXT PRIMARY KEY,
			from_wallet TEXT NOT NULL,
			to_wallet TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			signature TEXT NOT NULL UNIQUE,
			amount_lamports BIGINT NOT NULL,
			recipient_lamports BIGINT NOT NULL,
			tax_lamports BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tips_from_wallet ON tips (from_wallet);
		CREATE INDEX IF NOT EXISTS idx_tips_to_wallet ON tips (to_wallet);

		CREATE TABLE IF NOT EXISTS platform_transactions (
			id TEXT PRIMARY KEY,
			user_wallet TEXT NOT NULL,
			deposit_address TEXT NOT NULL,
			signature TEXT NOT NULL UNIQUE,
			amount_lamports BIGINT NOT NULL,
			kind TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_platform_txs_user_wallet ON platform_transactions (user_wallet);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// reserveSignature inserts into used_signatures within the given
// transaction, translating unique violations to ErrDuplicateSignature.
func reserveSignature(ctx context.Context, tx *sql.Tx, signature string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO used_signatures (signature) VALUES ($1)`, signature)
	if isUniqueViolation(err) {
		return ErrDuplicateSignature
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// SaveBeacon persists a beacon and reserves its payment signature
// atomically.
func (s *PostgresStore) SaveBeacon(ctx context.Context, beacon Beacon) error {
	if beacon.ID == "" {
		return errors.New("storage: beacon id required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := reserveSignature(ctx, tx, beacon.Signature); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO beacons (id, wallet, content, topic, signature, amount_lamports, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		beacon.ID, beacon.Wallet, beacon.Content, beacon.Topic, beacon.Signature,
		int64(beacon.AmountLamports), beacon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSignature
		}
		return fmt.Errorf("insert beacon: %w", err)
	}
	return tx.Commit()
}

// GetBeacon retrieves a beacon by ID.
func (s *PostgresStore) GetBeacon(ctx context.Context, id string) (Beacon, error) {
	var b Beacon
	var amount int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, wallet, content, topic, signature, amount_lamports, created_at
		FROM beacons WHERE id = $1`, id).
		Scan(&b.ID, &b.Wallet, &b.Content, &b.Topic, &b.Signature, &amount, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return Beacon{}, ErrNotFound
	}
	if err != nil {
		return Beacon{}, fmt.Errorf("get beacon: %w", err)
	}
	b.AmountLamports = uint64(amount)
	return b, nil
}

// ListBeacons returns beacons newest-first, capped at limit.
func (s *PostgresStore) ListBeacons(ctx context.Context, limit int) ([]Beacon, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet, content, topic, signature, amount_lamports, created_at
		FROM beacons ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list beacons: %w", err)
	}
	defer rows.Close()

	var out []Beacon
	for rows.Next() {
		var b Beacon
		var amount int64
		if err := rows.Scan(&b.ID, &b.Wallet, &b.Content, &b.Topic, &b.Signature, &amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan beacon: %w", err)
		}
		b.AmountLamports = uint64(amount)
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveTip persists a tip and reserves its payment signature atomically.
func (s *PostgresStore) SaveTip(ctx context.Context, tip Tip) error {
	if tip.ID == "" {
		return errors.New("storage: tip id required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := reserveSignature(ctx, tx, tip.Signature); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tips (id, from_wallet, to_wallet, message, signature, amount_lamports,
			recipient_lamports, tax_lamports, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tip.ID, tip.FromWallet, tip.ToWallet, tip.Message, tip.Signature,
		int64(tip.AmountLamports), int64(tip.RecipientLamports),
		int64(tip.TaxLamports), tip.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSignature
		}
		return fmt.Errorf("insert tip: %w", err)
	}
	return tx.Commit()
}

// ListTipsForWallet returns tips sent to or from the wallet,
// newest-first, capped at limit.
func (s *PostgresStore) ListTipsForWallet(ctx context.Context, wallet string, limit int) ([]Tip, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_wallet, to_wallet, message, signature, amount_lamports,
			recipient_lamports, tax_lamports, created_at
		FROM tips WHERE from_wallet = $1 OR to_wallet = $1
		ORDER BY created_at DESC LIMIT $2`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list tips: %w", err)
	}
	defer rows.Close()

	var out []Tip
	for rows.Next() {
		var t Tip
		var amount, recipient, tax int64
		if err := rows.Scan(&t.ID, &t.FromWallet, &t.ToWallet, &t.Message, &t.Signature,
			&amount, &recipient, &tax, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tip: %w", err)
		}
		t.AmountLamports = uint64(amount)
		t.RecipientLamports = uint64(recipient)
		t.TaxLamports = uint64(tax)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListRecentTips returns the latest tips across all wallets,
// newest-first, capped at limit.
func (s *PostgresStore) ListRecentTips(ctx context.Context, limit int) ([]Tip, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_wallet, to_wallet, message, signature, amount_lamports,
			recipient_lamports, tax_lamports, created_at
		FROM tips ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tips: %w", err)
	}
	defer rows.Close()

	var out []Tip
	for rows.Next() {
		var t Tip
		var amount, recipient, tax int64
		if err := rows.Scan(&t.ID, &t.FromWallet, &t.ToWallet, &t.Message, &t.Signature,
			&amount, &recipient, &tax, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tip: %w", err)
		}
		t.AmountLamports = uint64(amount)
		t.RecipientLamports = uint64(recipient)
		t.TaxLamports = uint64(tax)
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordPlatformTransaction persists a platform wallet movement and
// reserves its signature atomically.
func (s *PostgresStore) RecordPlatformTransaction(ctx context.Context, ptx PlatformTransaction) error {
	if ptx.ID == "" {
		return errors.New("storage: platform transaction id required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := reserveSignature(ctx, tx, ptx.Signature); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO platform_transactions (id, user_wallet, deposit_address,
			signature, amount_lamports, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ptx.ID, ptx.UserWallet, ptx.DepositAddress, ptx.Signature,
		int64(ptx.AmountLamports), string(ptx.Kind), ptx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSignature
		}
		return fmt.Errorf("insert platform transaction: %w", err)
	}
	return tx.Commit()
}

// ListPlatformTransactions returns a user's platform wallet history,
// newest-first, capped at limit.
func (s *PostgresStore) ListPlatformTransactions(ctx context.Context, userWallet string, limit int) ([]PlatformTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_wallet, deposit_address, signature, amount_lamports, kind, created_at
		FROM platform_transactions WHERE user_wallet = $1
		ORDER BY created_at DESC LIMIT $2`, userWallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list platform transactions: %w", err)
	}
	defer rows.Close()

	var out []PlatformTransaction
	for rows.Next() {
		var tx PlatformTransaction
		var amount int64
		var kind string
		if err := rows.Scan(&tx.ID, &tx.UserWallet, &tx.DepositAddress,
			&tx.Signature, &amount, &kind, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan platform transaction: %w", err)
		}
		tx.AmountLamports = uint64(amount)
		tx.Kind = PlatformTransactionKind(kind)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// HasSignatureBeenUsed reports whether the signature was recorded for
// any entity.
func (s *PostgresStore) HasSignatureBeenUsed(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM used_signatures WHERE signature = $1)`,
		signature).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check signature: %w", err)
	}
	return exists, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
