package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Loyalty transaction types.
const (
	LoyaltyEarned        = "earned"
	LoyaltyRedeemed      = "redeemed"
	LoyaltyExpired       = "expired"
	LoyaltyAdjusted      = "adjusted"
	LoyaltyReferralBonus = "referral_bonus"
)

// LoyaltyAccount is a user's current point balance.
type LoyaltyAccount struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoyaltyTransaction is an append-only ledger entry. Points is a signed delta.
type LoyaltyTransaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Type         string    `json:"type"`
	Points       int64     `json:"points"`
	BalanceAfter int64     `json:"balance_after"`
	OrderID      string    `json:"order_id,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewLedgerEntry builds the entry that moves balance by delta. A delta that
// would make the balance negative is rejected.
func NewLedgerEntry(userID, typ string, balance, delta int64, orderID, description string, now time.Time) (LoyaltyTransaction, error) {
	after := balance + delta
	if after < 0 {
		return LoyaltyTransaction{}, violation(ReasonInsufficientPoints,
			fmt.Sprintf("balance of %d points cannot cover %d", balance, -delta))
	}
	return LoyaltyTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Type:         typ,
		Points:       delta,
		BalanceAfter: after,
		OrderID:      orderID,
		Description:  description,
		CreatedAt:    now,
	}, nil
}

// VerifyLedger checks that entries, oldest first, replay to balance and that
// every BalanceAfter matches the running sum.
func VerifyLedger(entries []LoyaltyTransaction, balance int64) error {
	var running int64
	for i, e := range entries {
		running += e.Points
		if running < 0 {
			return fmt.Errorf("ledger entry %d drives balance negative", i)
		}
		if e.BalanceAfter != running {
			return fmt.Errorf("ledger entry %d: balance_after %d, want %d", i, e.BalanceAfter, running)
		}
	}
	if running != balance {
		return fmt.Errorf("ledger sums to %d, balance is %d", running, balance)
	}
	return nil
}
