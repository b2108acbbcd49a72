package order

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/generr"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/utils"
)

// ReturnService processes partial and full item returns for one order in a
// single transaction. Any validation failure aborts the whole batch.
type ReturnService struct {
	db        *gorm.DB
	ledgerSvc *ledger.Service
}

// NewReturnService creates a new return service
func NewReturnService(db *gorm.DB, ledgerSvc *ledger.Service) *ReturnService {
	return &ReturnService{db: db, ledgerSvc: ledgerSvc}
}

// ItemReturn is one line of a return request.
type ItemReturn struct {
	ItemID   uuid.UUID `json:"item_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required"`
}

// ReturnResult summarizes a processed return.
type ReturnResult struct {
	TotalReturnAmount int64 `json:"total_return_amount"`
	IsFullReturn      bool  `json:"is_full_return"`
}

// Process applies a batch of item returns. Returned value is priced from
// each item's PriceAtMoment snapshot. A full return refunds the order's
// spent bonus; every previously issued order bonus is clawed back in
// proportion to the returned value against the order's pre-return total.
func (s *ReturnService) Process(orderID uuid.UUID, returns []ItemReturn) (*ReturnResult, error) {
	if len(returns) == 0 {
		return nil, fmt.Errorf("empty return batch: %w", generr.ErrInvalidArgument)
	}

	result := &ReturnResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order database.Order
		if err := lockForUpdate(tx).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %s: %w", orderID, generr.ErrNotFound)
			}
			return fmt.Errorf("error finding order: %w", err)
		}

		var items []database.OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
			return fmt.Errorf("error loading order items: %w", err)
		}

		byID := make(map[uuid.UUID]*database.OrderItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		// Validate the whole batch before touching anything. Quantities are
		// aggregated per item so a batch repeating the same item cannot pass
		// the availability check line by line.
		requested := make(map[uuid.UUID]int, len(returns))
		for _, r := range returns {
			item, ok := byID[r.ItemID]
			if !ok {
				return fmt.Errorf("item %s does not belong to order %s: %w",
					r.ItemID, order.ID, generr.ErrInvalidArgument)
			}
			if r.Quantity <= 0 {
				return fmt.Errorf("return quantity must be positive: %w", generr.ErrInvalidArgument)
			}
			requested[r.ItemID] += r.Quantity
			available := item.Quantity - item.ReturnedQuantity
			if requested[r.ItemID] > available {
				return fmt.Errorf("return quantity %d exceeds available %d for item %s: %w",
					requested[r.ItemID], available, item.ID, generr.ErrInvalidArgument)
			}
		}

		// The clawback ratio is computed against the order total as it was
		// when this operation started, not the post-return total.
		originalTotal := order.TotalAmount

		var totalReturnAmount int64
		for _, r := range returns {
			item := byID[r.ItemID]
			totalReturnAmount += item.PriceAtMoment * int64(r.Quantity)
			item.ReturnedQuantity += r.Quantity
			if err := tx.Model(&database.OrderItem{}).Where("id = ?", item.ID).
				Update("returned_quantity", item.ReturnedQuantity).Error; err != nil {
				return fmt.Errorf("error updating returned quantity: %w", err)
			}
		}

		var totalQty, totalReturnedAfter int
		for i := range items {
			totalQty += items[i].Quantity
			totalReturnedAfter += items[i].ReturnedQuantity
		}
		isFull := totalReturnedAfter >= totalQty

		newTotal := order.TotalAmount - totalReturnAmount
		newBonusSpent := order.BonusSpent
		if isFull {
			newBonusSpent = 0
			if order.BonusSpent > 0 && order.UserID != nil {
				if _, err := s.ledgerSvc.CreditWithTx(tx, ledger.Entry{
					UserID:  *order.UserID,
					Amount:  order.BonusSpent,
					Type:    database.EventManualAdjustment,
					OrderID: &order.ID,
					Note:    "spent bonus refund on full return",
				}); err != nil {
					return err
				}
			}
		}
		newCashPaid := utils.MaxInt64(0, newTotal-newBonusSpent)

		if err := tx.Model(&database.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"total_amount": newTotal,
				"bonus_spent":  newBonusSpent,
				"cash_paid":    newCashPaid,
			}).Error; err != nil {
			return fmt.Errorf("error updating order totals: %w", err)
		}

		if err := s.clawBack(tx, &order, totalReturnAmount, originalTotal); err != nil {
			return err
		}

		result.TotalReturnAmount = totalReturnAmount
		result.IsFullReturn = isFull
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// clawBack debits every ORDER_BONUS recipient of this order in proportion to
// the returned value. Bonus role does not matter here; only accrual
// distinguishes self from inviter from team.
func (s *ReturnService) clawBack(tx *gorm.DB, order *database.Order, totalReturnAmount, originalTotal int64) error {
	if totalReturnAmount <= 0 || originalTotal <= 0 {
		return nil
	}
	ratio := float64(totalReturnAmount) / float64(originalTotal)

	var bonuses []database.ReferralEvent
	if err := tx.Where("order_id = ? AND type = ?", order.ID, database.EventOrderBonus).
		Find(&bonuses).Error; err != nil {
		return fmt.Errorf("error loading order bonuses: %w", err)
	}

	for _, ev := range bonuses {
		share := utils.ShareOf(ev.Amount, ratio)
		if share <= 0 {
			continue
		}
		if _, err := s.ledgerSvc.DebitWithTx(tx, ledger.Entry{
			UserID:         ev.UserID,
			Amount:         share,
			Type:           database.EventManualAdjustment,
			OrderID:        &order.ID,
			ReferredUserID: ev.ReferredUserID,
			Note:           "bonus clawback on return",
		}); err != nil {
			return err
		}
	}
	return nil
}
