package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDone       OrderStatus = "done"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ValidOrderStatus reports whether s is one of the known order statuses.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusNew, OrderStatusProcessing, OrderStatusPaid,
		OrderStatusShipped, OrderStatusDone, OrderStatusCancelled:
		return true
	}
	return false
}

// ReferralEventType classifies a bonus ledger entry.
type ReferralEventType string

const (
	EventOrderBonus       ReferralEventType = "ORDER_BONUS"
	EventBonusSpent       ReferralEventType = "BONUS_SPENT"
	EventBonusSpentRefund ReferralEventType = "BONUS_SPENT_REFUND"
	EventManualAdjustment ReferralEventType = "MANUAL_ADJUSTMENT"
)

// User represents a customer or admin user in the system
type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Phone          string         `gorm:"uniqueIndex" json:"phone"`
	Email          string         `gorm:"index" json:"email"`
	Name           string         `json:"name"`
	Password       string         `json:"-"`
	IsAdmin        bool           `gorm:"default:false" json:"is_admin"`
	BonusBalance   int64          `gorm:"not null;default:0" json:"bonus_balance"`
	ReferralCode   string         `gorm:"uniqueIndex" json:"referral_code"`
	ReferredBy     *uuid.UUID     `gorm:"type:uuid;index" json:"referred_by"`
	Level2Unlocked bool           `gorm:"default:false" json:"level2_unlocked"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Orders []Order         `json:"orders,omitempty"`
	Events []ReferralEvent `gorm:"foreignKey:UserID" json:"events,omitempty"`
}

// BeforeCreate will set a UUID rather than rely on a database default.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Product is a catalog item. Only the fields the order pipeline snapshots
// live here; presentation data stays with the storefront.
type Product struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Slug      string         `gorm:"uniqueIndex" json:"slug"`
	Brand     string         `json:"brand"`
	Price     int64          `gorm:"not null" json:"price"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate will set a UUID rather than rely on a database default.
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Order represents a customer order. TotalAmount, BonusSpent and CashPaid are
// minor currency units; CashPaid is always TotalAmount - BonusSpent.
type Order struct {
	ID            uuid.UUID   `gorm:"type:uuid;primary_key" json:"id"`
	UserID        *uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	Status        OrderStatus `gorm:"type:varchar(20);not null;default:'new'" json:"status"`
	TotalAmount   int64       `gorm:"not null" json:"total_amount"`
	BonusSpent    int64       `gorm:"not null;default:0" json:"bonus_spent"`
	CashPaid      int64       `gorm:"not null" json:"cash_paid"`
	BonusRefunded bool        `gorm:"default:false" json:"bonus_refunded"`
	Comment       string      `json:"comment"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`

	// Relationships
	User  *User       `json:"user,omitempty"`
	Items []OrderItem `json:"items,omitempty"`
}

// BeforeCreate will set a UUID rather than rely on a database default.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is a line of an order. PriceAtMoment is the product price
// snapshot taken at checkout and never changes afterwards.
type OrderItem struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	OrderID          uuid.UUID `gorm:"type:uuid;index;not null" json:"order_id"`
	ProductID        uuid.UUID `gorm:"type:uuid" json:"product_id"`
	ProductName      string    `json:"product_name"`
	PriceAtMoment    int64     `gorm:"not null" json:"price_at_moment"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	Subtotal         int64     `gorm:"not null" json:"subtotal"`
	ReturnedQuantity int       `gorm:"not null;default:0" json:"returned_quantity"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BeforeCreate will set a UUID rather than rely on a database default.
func (oi *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if oi.ID == uuid.Nil {
		oi.ID = uuid.New()
	}
	return nil
}

// ReferralEvent is an append-only bonus ledger row. Rows are never updated or
// deleted; corrections are always new rows. User.BonusBalance must equal the
// sum of that user's event amounts after every committed transaction.
type ReferralEvent struct {
	ID             uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	UserID         uuid.UUID         `gorm:"type:uuid;index;not null" json:"user_id"`
	ReferredUserID *uuid.UUID        `gorm:"type:uuid" json:"referred_user_id"`
	OrderID        *uuid.UUID        `gorm:"type:uuid;index" json:"order_id"`
	Type           ReferralEventType `gorm:"type:varchar(32);not null" json:"type"`
	Amount         int64             `gorm:"not null" json:"amount"`
	Note           string            `json:"note"`
	CreatedAt      time.Time         `json:"created_at"`
}

// BeforeCreate will set a UUID rather than rely on a database default.
func (e *ReferralEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// AppSettings is the singleton economics configuration row. Percent fields
// apply to future transitions only, never retroactively.
type AppSettings struct {
	ID                        uint      `gorm:"primaryKey" json:"id"`
	CustomerPercent           float64   `gorm:"not null;default:0" json:"customer_percent"`
	InviterPercent            float64   `gorm:"not null;default:0" json:"inviter_percent"`
	InviterBonusLevel2Percent float64   `gorm:"not null;default:0" json:"inviter_bonus_level2_percent"`
	ReservePercent            float64   `gorm:"not null;default:0" json:"reserve_percent"`
	AllowFullBonusPay         bool      `gorm:"default:false" json:"allow_full_bonus_pay"`
	Level2MinReferrals        int       `gorm:"not null;default:3" json:"level2_min_referrals"`
	SlotPrice                 int64     `gorm:"not null;default:0" json:"slot_price"`
	SlotCount                 int       `gorm:"not null;default:0" json:"slot_count"`
	UpdatedAt                 time.Time `json:"updated_at"`
}
