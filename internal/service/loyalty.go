package service

import (
	"context"
	"fmt"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// LoyaltySummary is a user's balance with a page of their ledger.
type LoyaltySummary struct {
	Balance      int64                                        `json:"balance"`
	PointValue   int64                                        `json:"point_value"`
	Transactions pagination.Result[domain.LoyaltyTransaction] `json:"transactions"`
}

// LoyaltyService reads loyalty accounts. Balances only change inside order
// transactions.
type LoyaltyService struct {
	repo     repository.LoyaltyRepository
	settings domain.LoyaltySettings
}

// NewLoyaltyService creates a new loyalty service.
func NewLoyaltyService(repo repository.LoyaltyRepository, settings domain.LoyaltySettings) *LoyaltyService {
	return &LoyaltyService{repo: repo, settings: settings}
}

// Balance returns the user's point balance.
func (s *LoyaltyService) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperrors.Unauthorized("sign in to view loyalty points")
	}
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load loyalty balance: %w", err)
	}
	return balance, nil
}

// History returns the user's balance and a page of ledger entries, newest first.
func (s *LoyaltyService) History(ctx context.Context, userID string, p pagination.Params) (*LoyaltySummary, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, total, err := s.repo.ListTransactions(ctx, userID, p)
	if err != nil {
		return nil, fmt.Errorf("list loyalty transactions: %w", err)
	}
	return &LoyaltySummary{
		Balance:      balance,
		PointValue:   s.settings.PointValue,
		Transactions: pagination.NewResult(entries, total, p),
	}, nil
}
