package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/microgate-project/microgate/internal/domain"
)

const uniqueViolation = "23505"

// PostgresStore is the durable replay store. The tx_hash primary key is what
// makes InsertIfAbsent atomic: a losing writer gets a unique violation, not a
// second record.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ ReplayStore = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) Lookup(ctx context.Context, txHash string) (*domain.ReplayRecord, error) {
	var rec domain.ReplayRecord
	err := s.db.QueryRow(ctx, `
		SELECT tx_hash, status, COALESCE(reason, ''), COALESCE(payer_address, ''),
		       COALESCE(amount_wei, ''), chain_id, confirmations, block_number,
		       endpoint, COALESCE(response_cached, 'null'), created_at
		FROM transactions WHERE tx_hash = $1`,
		txHash,
	).Scan(&rec.TxHash, &rec.Status, &rec.Reason, &rec.PayerAddress,
		&rec.AmountWei, &rec.ChainID, &rec.Confirmations, &rec.BlockNumber,
		&rec.Endpoint, &rec.CachedResponse, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay lookup failed: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, rec *domain.ReplayRecord) (bool, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions
			(tx_hash, status, reason, payer_address, amount_wei, chain_id,
			 confirmations, block_number, endpoint, response_cached)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10)`,
		rec.TxHash, rec.Status, string(rec.Reason), rec.PayerAddress,
		rec.AmountWei, rec.ChainID, rec.Confirmations, rec.BlockNumber,
		rec.Endpoint, rec.CachedResponse,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("replay insert failed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, payer string, limit int) ([]domain.ReplayRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT tx_hash, status, COALESCE(reason, ''), COALESCE(payer_address, ''),
		       COALESCE(amount_wei, ''), chain_id, confirmations, block_number,
		       endpoint, created_at
		FROM transactions`
	args := []any{}
	if payer != "" {
		query += ` WHERE lower(payer_address) = lower($1)`
		args = append(args, payer)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay list failed: %w", err)
	}
	defer rows.Close()

	var records []domain.ReplayRecord
	for rows.Next() {
		var rec domain.ReplayRecord
		if err := rows.Scan(&rec.TxHash, &rec.Status, &rec.Reason, &rec.PayerAddress,
			&rec.AmountWei, &rec.ChainID, &rec.Confirmations, &rec.BlockNumber,
			&rec.Endpoint, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("replay scan failed: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
