package order

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/generr"
	"github.com/glowcart/backend/internal/jobs"
	"github.com/glowcart/backend/internal/queue"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/services/settings"
	"github.com/glowcart/backend/internal/utils"
)

// CheckoutService creates orders with item price snapshots and applies the
// buyer's bonus spend at checkout time.
type CheckoutService struct {
	db          *gorm.DB
	ledgerSvc   *ledger.Service
	settingsSvc *settings.Service
	jobQueue    queue.QueueInterface
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(db *gorm.DB, ledgerSvc *ledger.Service, settingsSvc *settings.Service, jobQueue queue.QueueInterface) *CheckoutService {
	return &CheckoutService{
		db:          db,
		ledgerSvc:   ledgerSvc,
		settingsSvc: settingsSvc,
		jobQueue:    jobQueue,
	}
}

// CheckoutItem is one requested order line.
type CheckoutItem struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required"`
}

// CheckoutParams describes a checkout request. Either UserID (authenticated)
// or GuestPhone (guest checkout, auto-creating a user) must be set.
type CheckoutParams struct {
	UserID     *uuid.UUID
	GuestPhone string
	GuestName  string
	Items      []CheckoutItem
	BonusSpend int64
	Comment    string
}

// Checkout creates the order, snapshots item prices and debits the bonus
// spend in one transaction.
func (s *CheckoutService) Checkout(p CheckoutParams) (*database.Order, error) {
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("empty cart: %w", generr.ErrInvalidArgument)
	}
	if p.BonusSpend < 0 {
		return nil, fmt.Errorf("negative bonus spend: %w", generr.ErrInvalidArgument)
	}

	var order *database.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		cfg, err := s.settingsSvc.GetWithTx(tx)
		if err != nil {
			return err
		}

		userID, err := s.resolveBuyer(tx, p)
		if err != nil {
			return err
		}

		items, total, err := s.snapshotItems(tx, p.Items)
		if err != nil {
			return err
		}

		if p.BonusSpend > total {
			return fmt.Errorf("bonus spend %d exceeds order total %d: %w",
				p.BonusSpend, total, generr.ErrInvalidArgument)
		}
		if !cfg.AllowFullBonusPay && p.BonusSpend == total && total > 0 {
			return fmt.Errorf("orders cannot be fully paid with bonus: %w", generr.ErrInvalidArgument)
		}

		o := database.Order{
			ID:          uuid.New(),
			UserID:      userID,
			Status:      database.OrderStatusNew,
			TotalAmount: total,
			BonusSpent:  p.BonusSpend,
			CashPaid:    total - p.BonusSpend,
			Comment:     p.Comment,
		}
		if err := tx.Create(&o).Error; err != nil {
			return fmt.Errorf("error creating order: %w", err)
		}

		for i := range items {
			items[i].OrderID = o.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("error creating order items: %w", err)
		}

		if p.BonusSpend > 0 {
			if userID == nil {
				return fmt.Errorf("guest orders cannot spend bonus: %w", generr.ErrInvalidArgument)
			}
			if _, err := s.ledgerSvc.SpendWithTx(tx, *userID, p.BonusSpend, o.ID, "bonus spent at checkout"); err != nil {
				return err
			}
		}

		o.Items = items
		order = &o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.jobQueue != nil {
		if _, err := s.jobQueue.Enqueue(queue.JobTypeNotifyOrderCreated, jobs.OrderCreatedPayload{
			OrderID: order.ID,
			Amount:  order.TotalAmount,
		}); err != nil {
			log.Printf("Failed to enqueue order created notification: %v", err)
		}
	}
	return order, nil
}

// resolveBuyer returns the buyer's user ID, auto-creating a guest user keyed
// by phone when needed.
func (s *CheckoutService) resolveBuyer(tx *gorm.DB, p CheckoutParams) (*uuid.UUID, error) {
	if p.UserID != nil {
		var user database.User
		if err := tx.First(&user, "id = ?", *p.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("buyer %s: %w", *p.UserID, generr.ErrNotFound)
			}
			return nil, fmt.Errorf("error finding buyer: %w", err)
		}
		return &user.ID, nil
	}

	phone := strings.TrimSpace(p.GuestPhone)
	if phone == "" {
		return nil, nil
	}

	var user database.User
	err := tx.First(&user, "phone = ?", phone).Error
	if err == nil {
		return &user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error finding guest user: %w", err)
	}

	user = database.User{
		ID:           uuid.New(),
		Phone:        phone,
		Name:         p.GuestName,
		ReferralCode: utils.GenerateReferralCode(),
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("error creating guest user: %w", err)
	}
	return &user.ID, nil
}

// snapshotItems prices the requested lines from the live catalog and freezes
// them into order items.
func (s *CheckoutService) snapshotItems(tx *gorm.DB, reqs []CheckoutItem) ([]database.OrderItem, int64, error) {
	items := make([]database.OrderItem, 0, len(reqs))
	var total int64

	for _, r := range reqs {
		if r.Quantity <= 0 {
			return nil, 0, fmt.Errorf("item quantity must be positive: %w", generr.ErrInvalidArgument)
		}

		var product database.Product
		if err := tx.First(&product, "id = ? AND is_active = ?", r.ProductID, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, 0, fmt.Errorf("product %s: %w", r.ProductID, generr.ErrNotFound)
			}
			return nil, 0, fmt.Errorf("error finding product: %w", err)
		}

		subtotal := product.Price * int64(r.Quantity)
		items = append(items, database.OrderItem{
			ID:            uuid.New(),
			ProductID:     product.ID,
			ProductName:   product.Name,
			PriceAtMoment: product.Price,
			Quantity:      r.Quantity,
			Subtotal:      subtotal,
		})
		total += subtotal
	}

	return items, total, nil
}
