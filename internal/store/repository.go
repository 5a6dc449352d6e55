/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the transfer-service. By
 * defining an interface, we decouple the application's business logic from
 * the specific database implementation (e.g., PostgreSQL), making the code
 * more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/kashly/transfer-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	FindLedgerAccountRef(ctx context.Context, userID uuid.UUID) (string, error)
	FindLedgerAccountRefByChannel(ctx context.Context, channel domain.ChannelType, channelValue string) (string, *uuid.UUID, error)

	// Transaction feed methods
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error)

	// Recipient resolution methods
	FindRecentRecipients(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.RecentRecipient, error)
}
