/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL queries for the accounts mapping table
 * (user -> ledger account reference), the durable transaction feed, and the
 * recent-counterparty lookup used by the recipient resolver.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kashly/transfer-service/internal/domain"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("transaction already recorded for idempotency key")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindLedgerAccountRef resolves the ledger account reference for a user.
func (r *PostgresRepository) FindLedgerAccountRef(ctx context.Context, userID uuid.UUID) (string, error) {
	var ref string
	query := `SELECT ledger_account_ref FROM accounts WHERE user_id = $1 AND account_type = 'primary'`
	err := r.db.QueryRow(ctx, query, userID).Scan(&ref)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrAccountNotFound
		}
		return "", err
	}
	return ref, nil
}

// FindLedgerAccountRefByChannel resolves a recipient's ledger account
// reference (and internal user id, when the channel belongs to a registered
// user) from an email, phone number, or wallet address.
func (r *PostgresRepository) FindLedgerAccountRefByChannel(ctx context.Context, channel domain.ChannelType, channelValue string) (string, *uuid.UUID, error) {
	var ref string
	var userID uuid.UUID
	query := `
		SELECT a.ledger_account_ref, a.user_id
		FROM accounts a
		JOIN user_channels c ON c.user_id = a.user_id
		WHERE a.account_type = 'primary'
		  AND c.channel = $1
		  AND lower(btrim(c.channel_value)) = lower(btrim($2))
	`
	err := r.db.QueryRow(ctx, query, string(channel), channelValue).Scan(&ref, &userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil, ErrAccountNotFound
		}
		return "", nil, err
	}
	return ref, &userID, nil
}

// CreateTransaction persists a settled transfer to the feed. The
// idempotency key carries a unique index; a second insert for the same
// confirm action returns ErrDuplicateTransaction instead of a second row.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, sender_id, recipient_id, recipient_name, recipient_channel,
			recipient_value, amount_cents, fee_cents, currency_code, note,
			status, ledger_transfer_id, idempotency_key, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID, tx.SenderID, tx.RecipientID, tx.RecipientName, string(tx.RecipientChannel),
		tx.RecipientValue, tx.AmountCents, tx.FeeCents, tx.CurrencyCode, tx.Note,
		tx.Status, tx.LedgerTransferID, tx.IdempotencyKey,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// FindTransactionByIdempotencyKey returns the feed record already written
// for a confirm action, if any.
func (r *PostgresRepository) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, selectTransactionColumns+` WHERE idempotency_key = $1`, key)
	return scanTransaction(row)
}

// FindTransactionsByUserID retrieves the feed for a user (as sender or
// recipient), newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := selectTransactionColumns + `
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// FindRecentRecipients returns the sender's most recently paid
// counterparties, one row per channel value, newest first.
func (r *PostgresRepository) FindRecentRecipients(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.RecentRecipient, error) {
	if limit <= 0 || limit > 20 {
		limit = 10
	}

	query := `
		SELECT DISTINCT ON (lower(recipient_value))
		       recipient_id, recipient_name, recipient_channel, recipient_value,
		       created_at,
		       COUNT(*) OVER (PARTITION BY lower(recipient_value)) AS transfer_count
		FROM transactions
		WHERE sender_id = $1 AND status = 'completed'
		ORDER BY lower(recipient_value), created_at DESC
	`
	rows, err := r.db.Query(ctx, query, senderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recents []domain.RecentRecipient
	for rows.Next() {
		var (
			recipientID   *uuid.UUID
			name, channel string
			value         string
			createdAt     time.Time
			transferCount int64
		)
		if err := rows.Scan(&recipientID, &name, &channel, &value, &createdAt, &transferCount); err != nil {
			return nil, err
		}
		recipient := domain.RecentRecipient{
			Recipient: domain.Recipient{
				DisplayName:  name,
				Channel:      domain.ChannelType(channel),
				ChannelValue: value,
				IsFrequent:   transferCount >= 3,
			},
			LastTransactedAt: createdAt,
		}
		if recipientID != nil {
			recipient.ID = *recipientID
		} else {
			recipient.IsManual = true
		}
		recents = append(recents, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// DISTINCT ON orders by channel value; re-rank by recency before trimming.
	sortRecentsByRecency(recents)
	if len(recents) > limit {
		recents = recents[:limit]
	}
	return recents, nil
}

func sortRecentsByRecency(recents []domain.RecentRecipient) {
	for i := 1; i < len(recents); i++ {
		for j := i; j > 0 && recents[j].LastTransactedAt.After(recents[j-1].LastTransactedAt); j-- {
			recents[j], recents[j-1] = recents[j-1], recents[j]
		}
	}
}

const selectTransactionColumns = `
	SELECT id, sender_id, recipient_id, recipient_name, recipient_channel,
	       recipient_value, amount_cents, fee_cents, currency_code,
	       COALESCE(note, '') AS note, status, ledger_transfer_id,
	       idempotency_key, created_at, updated_at
	FROM transactions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var channel string
	err := row.Scan(
		&tx.ID, &tx.SenderID, &tx.RecipientID, &tx.RecipientName, &channel,
		&tx.RecipientValue, &tx.AmountCents, &tx.FeeCents, &tx.CurrencyCode,
		&tx.Note, &tx.Status, &tx.LedgerTransferID,
		&tx.IdempotencyKey, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	tx.RecipientChannel = domain.ChannelType(channel)
	return &tx, nil
}
