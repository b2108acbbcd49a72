package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/generr"
)

// Service owns every mutation of User.BonusBalance and the referral_events
// ledger. Callers provide the surrounding transaction; balance update and
// event append are never observable as separate commits.
type Service struct {
	db *gorm.DB
}

// NewService creates a new ledger service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Entry describes one balance-affecting ledger row. Amount is signed:
// positive credits, negative debits.
type Entry struct {
	UserID         uuid.UUID
	Amount         int64
	Type           database.ReferralEventType
	OrderID        *uuid.UUID
	ReferredUserID *uuid.UUID
	Note           string
}

// lockForUpdate adds a row lock on dialects that support it. SQLite (tests)
// serializes on a single connection instead.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// ApplyWithTx locks the user row, adjusts the balance and appends the ledger
// event inside the caller's transaction.
func (s *Service) ApplyWithTx(tx *gorm.DB, e Entry) (*database.ReferralEvent, error) {
	var user database.User
	if err := lockForUpdate(tx).First(&user, "id = ?", e.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ledger user %s: %w", e.UserID, generr.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding user: %w", err)
	}

	user.BonusBalance += e.Amount
	if err := tx.Model(&database.User{}).Where("id = ?", user.ID).
		Update("bonus_balance", user.BonusBalance).Error; err != nil {
		return nil, fmt.Errorf("error updating bonus balance: %w", err)
	}

	event := database.ReferralEvent{
		ID:             uuid.New(),
		UserID:         e.UserID,
		ReferredUserID: e.ReferredUserID,
		OrderID:        e.OrderID,
		Type:           e.Type,
		Amount:         e.Amount,
		Note:           e.Note,
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("error creating referral event: %w", err)
	}

	return &event, nil
}

// CreditWithTx adds amount (positive) to the user's bonus balance.
func (s *Service) CreditWithTx(tx *gorm.DB, e Entry) (*database.ReferralEvent, error) {
	if e.Amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive: %w", generr.ErrInvalidArgument)
	}
	return s.ApplyWithTx(tx, e)
}

// DebitWithTx subtracts amount (positive) from the user's bonus balance
// without a floor check. Used for reversals and clawbacks, where the debit
// must mirror a prior credit exactly even if the user has spent it since.
func (s *Service) DebitWithTx(tx *gorm.DB, e Entry) (*database.ReferralEvent, error) {
	if e.Amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive: %w", generr.ErrInvalidArgument)
	}
	e.Amount = -e.Amount
	return s.ApplyWithTx(tx, e)
}

// SpendWithTx debits amount for a checkout bonus spend, failing with
// ErrInsufficientBonusBalance when the locked balance is short.
func (s *Service) SpendWithTx(tx *gorm.DB, userID uuid.UUID, amount int64, orderID uuid.UUID, note string) (*database.ReferralEvent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("spend amount must be positive: %w", generr.ErrInvalidArgument)
	}

	var user database.User
	if err := lockForUpdate(tx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ledger user %s: %w", userID, generr.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding user: %w", err)
	}

	if user.BonusBalance < amount {
		return nil, generr.ErrInsufficientBonusBalance
	}

	return s.ApplyWithTx(tx, Entry{
		UserID:  userID,
		Amount:  -amount,
		Type:    database.EventBonusSpent,
		OrderID: &orderID,
		Note:    note,
	})
}

// Balance returns the materialized bonus balance for a user.
func (s *Service) Balance(userID uuid.UUID) (int64, error) {
	var user database.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("ledger user %s: %w", userID, generr.ErrNotFound)
		}
		return 0, fmt.Errorf("error finding user: %w", err)
	}
	return user.BonusBalance, nil
}

// History returns a user's ledger rows, newest first.
func (s *Service) History(userID uuid.UUID, limit int) ([]database.ReferralEvent, error) {
	var events []database.ReferralEvent
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("error finding referral events: %w", err)
	}
	return events, nil
}

// Drift is a ledger reconciliation mismatch for one user.
type Drift struct {
	UserID       uuid.UUID `json:"user_id"`
	BonusBalance int64     `json:"bonus_balance"`
	EventSum     int64     `json:"event_sum"`
}

// Reconcile verifies that a user's materialized balance equals the sum of
// their ledger events. Any divergence is a bug, never expected state.
func (s *Service) Reconcile(userID uuid.UUID) (*Drift, error) {
	var user database.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ledger user %s: %w", userID, generr.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding user: %w", err)
	}

	var sum int64
	if err := s.db.Model(&database.ReferralEvent{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error; err != nil {
		return nil, fmt.Errorf("error summing referral events: %w", err)
	}

	if user.BonusBalance == sum {
		return nil, nil
	}
	return &Drift{UserID: userID, BonusBalance: user.BonusBalance, EventSum: sum}, nil
}

// ReconcileAll sweeps every user and reports balances that diverge from
// their event sums.
func (s *Service) ReconcileAll() ([]Drift, error) {
	var drifts []Drift
	err := s.db.Model(&database.User{}).
		Select("users.id AS user_id, users.bonus_balance, COALESCE(SUM(referral_events.amount), 0) AS event_sum").
		Joins("LEFT JOIN referral_events ON referral_events.user_id = users.id").
		Group("users.id, users.bonus_balance").
		Having("users.bonus_balance <> COALESCE(SUM(referral_events.amount), 0)").
		Scan(&drifts).Error
	if err != nil {
		return nil, fmt.Errorf("error reconciling ledger: %w", err)
	}
	return drifts, nil
}
