package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/pagination"
)

// LoyaltyRepository reads loyalty balances and ledgers.
type LoyaltyRepository struct {
	db database.DBTX
}

// NewLoyaltyRepository creates a new PostgreSQL-backed loyalty repository.
func NewLoyaltyRepository(db database.DBTX) *LoyaltyRepository {
	return &LoyaltyRepository{db: db}
}

// Balance returns the user's point balance, 0 for users without an account.
func (r *LoyaltyRepository) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM loyalty_accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get loyalty balance: %w", err)
	}
	return balance, nil
}

// ListTransactions returns a page of the user's ledger, newest first.
func (r *LoyaltyRepository) ListTransactions(ctx context.Context, userID string, p pagination.Params) ([]domain.LoyaltyTransaction, int, error) {
	query := `
		SELECT id, user_id, type, points, balance_after, COALESCE(order_id::text, ''), description, created_at,
			count(*) OVER() AS total_count
		FROM loyalty_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list loyalty transactions: %w", err)
	}
	defer rows.Close()

	var total int
	entries := make([]domain.LoyaltyTransaction, 0)
	for rows.Next() {
		var e domain.LoyaltyTransaction
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Type, &e.Points, &e.BalanceAfter, &e.OrderID, &e.Description, &e.CreatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan loyalty transaction: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate loyalty transaction rows: %w", err)
	}
	return entries, total, nil
}
