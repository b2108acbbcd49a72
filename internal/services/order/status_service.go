package order

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/generr"
	"github.com/glowcart/backend/internal/jobs"
	"github.com/glowcart/backend/internal/queue"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/services/referral"
	"github.com/glowcart/backend/internal/services/settings"
	"github.com/glowcart/backend/internal/utils"
)

// Bonus roles attached to a transition result.
const (
	BonusRoleSelf    = "self"
	BonusRoleInviter = "inviter"
	BonusRoleTeam    = "team"
)

// StatusService is the order state machine. It owns the transaction boundary
// for every status-driven ledger mutation; notifications and L2 accrual run
// strictly after commit.
type StatusService struct {
	db          *gorm.DB
	ledgerSvc   *ledger.Service
	referralSvc *referral.Service
	settingsSvc *settings.Service
	jobQueue    queue.QueueInterface
}

// NewStatusService creates a new order status service
func NewStatusService(db *gorm.DB, ledgerSvc *ledger.Service, referralSvc *referral.Service, settingsSvc *settings.Service, jobQueue queue.QueueInterface) *StatusService {
	return &StatusService{
		db:          db,
		ledgerSvc:   ledgerSvc,
		referralSvc: referralSvc,
		settingsSvc: settingsSvc,
		jobQueue:    jobQueue,
	}
}

// lockForUpdate adds a row lock on dialects that support it. SQLite (tests)
// serializes on a single connection instead.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// BonusAward records one credit issued during a DONE transition.
type BonusAward struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	Amount int64     `json:"amount"`
}

// TransitionResult is returned to the admin caller.
type TransitionResult struct {
	Order          *database.Order      `json:"order"`
	PrevStatus     database.OrderStatus `json:"prev_status"`
	BonusesAwarded []BonusAward         `json:"bonuses_awarded"`
}

// Transition validates and applies a status change on behalf of actorID.
// The DONE transition accrues cashback and the direct referral bonus,
// idempotently; CANCELLED refunds spent bonus once and, after a late
// cancellation of a DONE order, reverses every bonus it had issued.
func (s *StatusService) Transition(actorID, orderID uuid.UUID, target database.OrderStatus) (*TransitionResult, error) {
	var actor database.User
	if err := s.db.First(&actor, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("actor %s: %w", actorID, generr.ErrForbidden)
		}
		return nil, fmt.Errorf("error finding actor: %w", err)
	}
	if !actor.IsAdmin {
		return nil, fmt.Errorf("order status changes require an administrator: %w", generr.ErrForbidden)
	}

	if !database.ValidOrderStatus(target) {
		return nil, fmt.Errorf("unknown order status %q: %w", target, generr.ErrInvalidArgument)
	}

	result := &TransitionResult{}
	var (
		cfg   database.AppSettings
		buyer *database.User
		l1    *database.User
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order database.Order
		if err := lockForUpdate(tx).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %s: %w", orderID, generr.ErrNotFound)
			}
			return fmt.Errorf("error finding order: %w", err)
		}

		prev := order.Status
		if prev == database.OrderStatusCancelled && target != database.OrderStatusCancelled {
			return fmt.Errorf("order %s is cancelled: %w", orderID, generr.ErrInvalidArgument)
		}

		var err error
		cfg, err = s.settingsSvc.GetWithTx(tx)
		if err != nil {
			return err
		}

		if err := tx.Model(&database.Order{}).Where("id = ?", order.ID).
			Update("status", target).Error; err != nil {
			return fmt.Errorf("error updating order status: %w", err)
		}
		order.Status = target

		if target == database.OrderStatusDone && prev != database.OrderStatusDone {
			awards, b, inviter, err := s.accrueOrderBonuses(tx, &order, cfg)
			if err != nil {
				return err
			}
			result.BonusesAwarded = awards
			buyer, l1 = b, inviter
		}

		if target == database.OrderStatusCancelled {
			if err := s.reverseOnCancel(tx, &order, prev); err != nil {
				return err
			}
		}

		result.Order = &order
		result.PrevStatus = prev
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(result, cfg, buyer, l1)
	return result, nil
}

// accrueOrderBonuses issues the buyer cashback and the direct referral bonus
// for an order that just reached DONE. Both are computed from cashPaid only;
// bonus-on-bonus accrual is disallowed.
func (s *StatusService) accrueOrderBonuses(tx *gorm.DB, order *database.Order, cfg database.AppSettings) ([]BonusAward, *database.User, *database.User, error) {
	if order.UserID == nil || order.CashPaid <= 0 {
		return nil, nil, nil, nil
	}

	// Replay protection: an existing ORDER_BONUS row means this order has
	// already been accrued. The buyer and inviter are still resolved so the
	// post-commit steps (which carry their own idempotency checks) can run.
	var existing int64
	if err := tx.Model(&database.ReferralEvent{}).
		Where("order_id = ? AND type = ?", order.ID, database.EventOrderBonus).
		Count(&existing).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("error checking existing order bonuses: %w", err)
	}
	alreadyAccrued := existing > 0
	if alreadyAccrued {
		log.Printf("Order %s bonuses already accrued, skipping", order.ID)
	}

	var buyer database.User
	if err := tx.First(&buyer, "id = ?", *order.UserID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("error finding buyer: %w", err)
	}

	var awards []BonusAward

	selfBonus := utils.PercentOf(order.CashPaid, cfg.CustomerPercent)
	if selfBonus > 0 && !alreadyAccrued {
		if _, err := s.ledgerSvc.CreditWithTx(tx, ledger.Entry{
			UserID:  buyer.ID,
			Amount:  selfBonus,
			Type:    database.EventOrderBonus,
			OrderID: &order.ID,
			Note:    "order cashback",
		}); err != nil {
			return nil, nil, nil, err
		}
		awards = append(awards, BonusAward{UserID: buyer.ID, Role: BonusRoleSelf, Amount: selfBonus})
	}

	var l1 *database.User
	if buyer.ReferredBy != nil {
		var inviter database.User
		err := tx.First(&inviter, "id = ?", *buyer.ReferredBy).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, fmt.Errorf("error finding inviter: %w", err)
		}
		if err == nil {
			l1Bonus := utils.PercentOf(order.CashPaid, cfg.InviterPercent)
			if l1Bonus > 0 && !alreadyAccrued {
				if _, err := s.ledgerSvc.CreditWithTx(tx, ledger.Entry{
					UserID:         inviter.ID,
					Amount:         l1Bonus,
					Type:           database.EventOrderBonus,
					OrderID:        &order.ID,
					ReferredUserID: &buyer.ID,
					Note:           "referral bonus",
				}); err != nil {
					return nil, nil, nil, err
				}
				awards = append(awards, BonusAward{UserID: inviter.ID, Role: BonusRoleInviter, Amount: l1Bonus})
			}
			l1 = &inviter
		}
	}

	return awards, &buyer, l1, nil
}

// reverseOnCancel refunds spent bonus (once, guarded by BonusRefunded) and,
// when the order had reached DONE, debits back every bonus it issued.
func (s *StatusService) reverseOnCancel(tx *gorm.DB, order *database.Order, prev database.OrderStatus) error {
	if order.BonusSpent > 0 && !order.BonusRefunded && order.UserID != nil {
		if _, err := s.ledgerSvc.CreditWithTx(tx, ledger.Entry{
			UserID:  *order.UserID,
			Amount:  order.BonusSpent,
			Type:    database.EventBonusSpentRefund,
			OrderID: &order.ID,
			Note:    "spent bonus refund on cancellation",
		}); err != nil {
			return err
		}
		if err := tx.Model(&database.Order{}).Where("id = ?", order.ID).
			Update("bonus_refunded", true).Error; err != nil {
			return fmt.Errorf("error setting bonus refunded flag: %w", err)
		}
		order.BonusRefunded = true
	}

	if prev != database.OrderStatusDone {
		return nil
	}

	var bonuses []database.ReferralEvent
	if err := tx.Where("order_id = ? AND type = ?", order.ID, database.EventOrderBonus).
		Find(&bonuses).Error; err != nil {
		return fmt.Errorf("error loading order bonuses: %w", err)
	}

	for _, ev := range bonuses {
		if _, err := s.ledgerSvc.DebitWithTx(tx, ledger.Entry{
			UserID:         ev.UserID,
			Amount:         ev.Amount,
			Type:           database.EventManualAdjustment,
			OrderID:        &order.ID,
			ReferredUserID: ev.ReferredUserID,
			Note:           "bonus reversal on cancellation",
		}); err != nil {
			return err
		}
	}
	return nil
}

// afterTransition runs the post-commit, best-effort steps: second-level
// unlock, team bonus accrual and notifications. Nothing here may roll back
// the committed status change; failures are only logged.
func (s *StatusService) afterTransition(result *TransitionResult, cfg database.AppSettings, buyer, l1 *database.User) {
	order := result.Order

	if buyer == nil && order.UserID != nil {
		var u database.User
		if err := s.db.First(&u, "id = ?", *order.UserID).Error; err == nil {
			buyer = &u
		}
	}

	if order.Status == database.OrderStatusPaid {
		phone := ""
		if buyer != nil {
			phone = buyer.Phone
		}
		s.enqueue(queue.JobTypeNotifyOrderPaid, jobs.OrderPaidPayload{
			OrderID: order.ID,
			Phone:   phone,
		})
	}

	if order.Status != database.OrderStatusDone || buyer == nil {
		return
	}

	for _, award := range result.BonusesAwarded {
		switch award.Role {
		case BonusRoleSelf:
			s.enqueue(queue.JobTypeNotifyOrderBonus, jobs.OrderBonusPayload{
				OrderID: order.ID,
				Phone:   buyer.Phone,
				Amount:  award.Amount,
			})
		case BonusRoleInviter:
			if l1 != nil {
				s.enqueue(queue.JobTypeNotifyReferralBonus, jobs.ReferralBonusPayload{
					Phone:        l1.Phone,
					Amount:       award.Amount,
					ReferredName: buyer.Name,
				})
			}
		}
	}

	if l1 != nil {
		if _, err := s.referralSvc.TryUnlockSecondLevel(l1.ID, cfg); err != nil {
			log.Printf("Second level unlock for %s failed: %v", l1.ID, err)
		}
	}

	team, err := s.referralSvc.AwardTeamBonus(order.ID, buyer.ID, order.CashPaid, cfg)
	if err != nil {
		log.Printf("Team bonus for order %s failed: %v", order.ID, err)
		return
	}
	if team.Awarded {
		result.BonusesAwarded = append(result.BonusesAwarded, BonusAward{
			UserID: team.L2UserID,
			Role:   BonusRoleTeam,
			Amount: team.BonusAmount,
		})
		s.enqueue(queue.JobTypeNotifyTeamBonus, jobs.TeamBonusPayload{
			Phone:   team.L2Phone,
			Amount:  team.BonusAmount,
			OrderID: order.ID,
		})
	}
}

// enqueue fires a notification job, logging and swallowing any error.
func (s *StatusService) enqueue(jobType queue.JobType, payload interface{}) {
	if s.jobQueue == nil {
		return
	}
	if _, err := s.jobQueue.Enqueue(jobType, payload); err != nil {
		log.Printf("Failed to enqueue %s: %v", jobType, err)
	}
}
