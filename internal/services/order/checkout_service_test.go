package order

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/generr"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/services/settings"
)

func newCheckoutService(db *gorm.DB) *CheckoutService {
	return NewCheckoutService(db, ledger.NewService(db), settings.NewService(db), nil)
}

func createTestProduct(t *testing.T, db *gorm.DB, name string, price int64) *database.Product {
	t.Helper()
	product := &database.Product{
		Name:     name,
		Slug:     name,
		Price:    price,
		IsActive: true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func TestCheckoutSnapshotsPrices(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{})
	svc := newCheckoutService(db)

	buyer := createTestUser(t, db, nil)
	serum := createTestProduct(t, db, "serum", 1500)
	cream := createTestProduct(t, db, "cream", 800)

	order, err := svc.Checkout(CheckoutParams{
		UserID: &buyer.ID,
		Items: []CheckoutItem{
			{ProductID: serum.ID, Quantity: 2},
			{ProductID: cream.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, database.OrderStatusNew, order.Status)
	assert.Equal(t, int64(3800), order.TotalAmount)
	assert.Equal(t, int64(3800), order.CashPaid)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(1500), order.Items[0].PriceAtMoment)
	assert.Equal(t, int64(3000), order.Items[0].Subtotal)

	// Catalog price changes never touch the snapshot
	require.NoError(t, db.Model(&database.Product{}).Where("id = ?", serum.ID).
		Update("price", 9999).Error)
	var item database.OrderItem
	require.NoError(t, db.First(&item, "order_id = ? AND product_id = ?", order.ID, serum.ID).Error)
	assert.Equal(t, int64(1500), item.PriceAtMoment)
}

func TestCheckoutSpendsBonus(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{})
	svc := newCheckoutService(db)

	buyer := createTestUser(t, db, func(u *database.User) { u.BonusBalance = 500 })
	require.NoError(t, db.Create(&database.ReferralEvent{
		ID: uuid.New(), UserID: buyer.ID,
		Type: database.EventManualAdjustment, Amount: 500, Note: "seed",
	}).Error)
	product := createTestProduct(t, db, "toner", 1000)

	order, err := svc.Checkout(CheckoutParams{
		UserID:     &buyer.ID,
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
		BonusSpend: 400,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(400), order.BonusSpent)
	assert.Equal(t, int64(600), order.CashPaid)
	assert.Equal(t, int64(100), balanceOf(t, db, buyer.ID))

	var ev database.ReferralEvent
	require.NoError(t, db.First(&ev, "order_id = ? AND type = ?", order.ID, database.EventBonusSpent).Error)
	assert.Equal(t, int64(-400), ev.Amount)
}

func TestCheckoutInsufficientBonus(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{})
	svc := newCheckoutService(db)

	buyer := createTestUser(t, db, func(u *database.User) { u.BonusBalance = 100 })
	product := createTestProduct(t, db, "toner", 1000)

	_, err := svc.Checkout(CheckoutParams{
		UserID:     &buyer.ID,
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
		BonusSpend: 200,
	})
	assert.ErrorIs(t, err, generr.ErrInsufficientBonusBalance)

	// The whole checkout rolled back
	var count int64
	require.NoError(t, db.Model(&database.Order{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCheckoutFullBonusPayGated(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{AllowFullBonusPay: false})
	svc := newCheckoutService(db)

	buyer := createTestUser(t, db, func(u *database.User) { u.BonusBalance = 1000 })
	require.NoError(t, db.Create(&database.ReferralEvent{
		ID: uuid.New(), UserID: buyer.ID,
		Type: database.EventManualAdjustment, Amount: 1000, Note: "seed",
	}).Error)
	product := createTestProduct(t, db, "toner", 1000)

	_, err := svc.Checkout(CheckoutParams{
		UserID:     &buyer.ID,
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
		BonusSpend: 1000,
	})
	assert.ErrorIs(t, err, generr.ErrInvalidArgument)

	// Flip the switch and the same checkout goes through
	require.NoError(t, db.Model(&database.AppSettings{}).Where("id = ?", 1).
		Update("allow_full_bonus_pay", true).Error)

	order, err := svc.Checkout(CheckoutParams{
		UserID:     &buyer.ID,
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
		BonusSpend: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), order.CashPaid)
}

func TestCheckoutBonusSpendOverTotal(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{AllowFullBonusPay: true})
	svc := newCheckoutService(db)

	buyer := createTestUser(t, db, func(u *database.User) { u.BonusBalance = 5000 })
	product := createTestProduct(t, db, "toner", 1000)

	_, err := svc.Checkout(CheckoutParams{
		UserID:     &buyer.ID,
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
		BonusSpend: 1500,
	})
	assert.ErrorIs(t, err, generr.ErrInvalidArgument)
}

func TestGuestCheckoutCreatesUserByPhone(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{})
	svc := newCheckoutService(db)

	product := createTestProduct(t, db, "mascara", 700)

	order, err := svc.Checkout(CheckoutParams{
		GuestPhone: "+15550001111",
		GuestName:  "Dana",
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.NotNil(t, order.UserID)

	var guest database.User
	require.NoError(t, db.First(&guest, "phone = ?", "+15550001111").Error)
	assert.Equal(t, guest.ID, *order.UserID)
	assert.NotEmpty(t, guest.ReferralCode)

	// A second order with the same phone reuses the user
	again, err := svc.Checkout(CheckoutParams{
		GuestPhone: "+15550001111",
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, guest.ID, *again.UserID)
}

func TestGuestCheckoutCannotSpendBonus(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{})
	svc := newCheckoutService(db)

	product := createTestProduct(t, db, "mascara", 700)

	_, err := svc.Checkout(CheckoutParams{
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
		BonusSpend: 100,
	})
	assert.ErrorIs(t, err, generr.ErrInvalidArgument)
}

func TestCheckoutInactiveProduct(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{})
	svc := newCheckoutService(db)

	buyer := createTestUser(t, db, nil)
	product := createTestProduct(t, db, "discontinued", 900)
	require.NoError(t, db.Model(&database.Product{}).Where("id = ?", product.ID).
		Update("is_active", false).Error)

	_, err := svc.Checkout(CheckoutParams{
		UserID: &buyer.ID,
		Items:  []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, generr.ErrNotFound)
}

func TestCheckoutEmptyCart(t *testing.T) {
	db := setupTestDB(t)
	svc := newCheckoutService(db)

	_, err := svc.Checkout(CheckoutParams{})
	assert.ErrorIs(t, err, generr.ErrInvalidArgument)
}
