package referral

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/generr"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/utils"
)

// Service resolves the two-level referral chain and posts the second-level
// ("team") bonus. It runs after the order's own transition transaction has
// committed; its failures never unwind the order status change.
type Service struct {
	db        *gorm.DB
	ledgerSvc *ledger.Service
}

// NewService creates a new referral service
func NewService(db *gorm.DB, ledgerSvc *ledger.Service) *Service {
	return &Service{db: db, ledgerSvc: ledgerSvc}
}

// TeamBonusResult describes an L2 accrual for the notification step.
type TeamBonusResult struct {
	Awarded     bool      `json:"awarded"`
	L2UserID    uuid.UUID `json:"l2_user_id"`
	L2Phone     string    `json:"l2_phone"`
	BonusAmount int64     `json:"bonus_amount"`
}

// AwardTeamBonus credits the referrer-of-the-referrer for a completed order.
// No-ops when the chain is shorter than two levels, the L2 user's second
// level is locked, the computed amount is zero, or the bonus already exists
// for this (order, buyer, L2) triple.
func (s *Service) AwardTeamBonus(orderID, buyerID uuid.UUID, cashPaid int64, cfg database.AppSettings) (*TeamBonusResult, error) {
	none := &TeamBonusResult{}
	if cashPaid <= 0 {
		return none, nil
	}

	var buyer database.User
	if err := s.db.First(&buyer, "id = ?", buyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("buyer %s: %w", buyerID, generr.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding buyer: %w", err)
	}
	if buyer.ReferredBy == nil {
		return none, nil
	}

	var l1 database.User
	if err := s.db.First(&l1, "id = ?", *buyer.ReferredBy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return none, nil
		}
		return nil, fmt.Errorf("error finding inviter: %w", err)
	}
	if l1.ReferredBy == nil {
		return none, nil
	}

	var l2 database.User
	if err := s.db.First(&l2, "id = ?", *l1.ReferredBy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return none, nil
		}
		return nil, fmt.Errorf("error finding second-level inviter: %w", err)
	}

	amount := utils.PercentOf(cashPaid, cfg.InviterBonusLevel2Percent)
	if !l2.Level2Unlocked || amount == 0 {
		return none, nil
	}

	// Idempotency: one team bonus per (order, buyer, L2 recipient).
	var existing int64
	if err := s.db.Model(&database.ReferralEvent{}).
		Where("order_id = ? AND user_id = ? AND referred_user_id = ? AND type = ?",
			orderID, l2.ID, buyerID, database.EventOrderBonus).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("error checking existing team bonus: %w", err)
	}
	if existing > 0 {
		log.Printf("Team bonus for order %s already credited to %s", orderID, l2.ID)
		return none, nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		_, err := s.ledgerSvc.CreditWithTx(tx, ledger.Entry{
			UserID:         l2.ID,
			Amount:         amount,
			Type:           database.EventOrderBonus,
			OrderID:        &orderID,
			ReferredUserID: &buyerID,
			Note:           "team bonus",
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error crediting team bonus: %w", err)
	}

	return &TeamBonusResult{
		Awarded:     true,
		L2UserID:    l2.ID,
		L2Phone:     l2.Phone,
		BonusAmount: amount,
	}, nil
}

// TryUnlockSecondLevel unlocks a user's second referral level once they have
// enough direct referrals with at least one completed order. Idempotent; a
// repeat call on an unlocked user is a no-op.
func (s *Service) TryUnlockSecondLevel(userID uuid.UUID, cfg database.AppSettings) (bool, error) {
	var user database.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("user %s: %w", userID, generr.ErrNotFound)
		}
		return false, fmt.Errorf("error finding user: %w", err)
	}
	if user.Level2Unlocked {
		return false, nil
	}

	var qualifying int64
	if err := s.db.Model(&database.Order{}).
		Joins("JOIN users ON users.id = orders.user_id").
		Where("users.referred_by = ? AND orders.status = ?", userID, database.OrderStatusDone).
		Distinct("orders.user_id").
		Count(&qualifying).Error; err != nil {
		return false, fmt.Errorf("error counting qualifying referrals: %w", err)
	}

	if qualifying < int64(cfg.Level2MinReferrals) {
		return false, nil
	}

	if err := s.db.Model(&database.User{}).Where("id = ?", userID).
		Update("level2_unlocked", true).Error; err != nil {
		return false, fmt.Errorf("error unlocking second level: %w", err)
	}
	return true, nil
}
