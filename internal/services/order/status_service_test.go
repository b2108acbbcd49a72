package order

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/generr"
	"github.com/glowcart/backend/internal/services/ledger"
	"github.com/glowcart/backend/internal/services/referral"
	"github.com/glowcart/backend/internal/services/settings"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Per-test in-memory database to avoid cross-test interference
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.User{},
		&database.Product{},
		&database.Order{},
		&database.OrderItem{},
		&database.ReferralEvent{},
		&database.AppSettings{},
	))
	return db
}

func newStatusService(db *gorm.DB) *StatusService {
	ledgerSvc := ledger.NewService(db)
	return NewStatusService(db, ledgerSvc,
		referral.NewService(db, ledgerSvc), settings.NewService(db), nil)
}

func seedSettings(t *testing.T, db *gorm.DB, cfg database.AppSettings) {
	t.Helper()
	cfg.ID = 1
	require.NoError(t, db.Create(&cfg).Error)
}

func createTestUser(t *testing.T, db *gorm.DB, opts func(*database.User)) *database.User {
	t.Helper()
	user := &database.User{
		Phone:        uuid.New().String(),
		ReferralCode: uuid.New().String()[:8],
	}
	if opts != nil {
		opts(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestOrder(t *testing.T, db *gorm.DB, userID *uuid.UUID, total, bonusSpent int64, status database.OrderStatus) *database.Order {
	t.Helper()
	order := &database.Order{
		UserID:      userID,
		Status:      status,
		TotalAmount: total,
		BonusSpent:  bonusSpent,
		CashPaid:    total - bonusSpent,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func balanceOf(t *testing.T, db *gorm.DB, userID uuid.UUID) int64 {
	t.Helper()
	var user database.User
	require.NoError(t, db.First(&user, "id = ?", userID).Error)
	return user.BonusBalance
}

func TestTransitionRequiresAdmin(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7, InviterPercent: 3})
	svc := newStatusService(db)

	customer := createTestUser(t, db, nil)
	order := createTestOrder(t, db, &customer.ID, 1000, 0, database.OrderStatusNew)

	_, err := svc.Transition(customer.ID, order.ID, database.OrderStatusPaid)
	assert.ErrorIs(t, err, generr.ErrForbidden)

	_, err = svc.Transition(uuid.New(), order.ID, database.OrderStatusPaid)
	assert.ErrorIs(t, err, generr.ErrForbidden)
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	order := createTestOrder(t, db, nil, 1000, 0, database.OrderStatusNew)

	_, err := svc.Transition(admin.ID, order.ID, database.OrderStatus("archived"))
	assert.ErrorIs(t, err, generr.ErrInvalidArgument)
}

func TestTransitionOrderNotFound(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })

	_, err := svc.Transition(admin.ID, uuid.New(), database.OrderStatusPaid)
	assert.ErrorIs(t, err, generr.ErrNotFound)
}

func TestDoneAccruesSelfAndInviterBonus(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7, InviterPercent: 3})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	inviter := createTestUser(t, db, nil)
	buyer := createTestUser(t, db, func(u *database.User) { u.ReferredBy = &inviter.ID })
	order := createTestOrder(t, db, &buyer.ID, 1000, 0, database.OrderStatusShipped)

	result, err := svc.Transition(admin.ID, order.ID, database.OrderStatusDone)
	require.NoError(t, err)

	assert.Equal(t, database.OrderStatusShipped, result.PrevStatus)
	require.Len(t, result.BonusesAwarded, 2)
	assert.Equal(t, int64(70), result.BonusesAwarded[0].Amount)
	assert.Equal(t, BonusRoleSelf, result.BonusesAwarded[0].Role)
	assert.Equal(t, int64(30), result.BonusesAwarded[1].Amount)
	assert.Equal(t, BonusRoleInviter, result.BonusesAwarded[1].Role)

	assert.Equal(t, int64(70), balanceOf(t, db, buyer.ID))
	assert.Equal(t, int64(30), balanceOf(t, db, inviter.ID))

	// The inviter row records who generated the bonus
	var ev database.ReferralEvent
	require.NoError(t, db.First(&ev, "user_id = ? AND type = ?", inviter.ID, database.EventOrderBonus).Error)
	require.NotNil(t, ev.ReferredUserID)
	assert.Equal(t, buyer.ID, *ev.ReferredUserID)
}

func TestDoneBonusComputedFromCashPaidOnly(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 10})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	buyer := createTestUser(t, db, nil)
	// 1000 total, 400 paid with bonus: cashback applies to the 600 cash part
	order := createTestOrder(t, db, &buyer.ID, 1000, 400, database.OrderStatusPaid)

	result, err := svc.Transition(admin.ID, order.ID, database.OrderStatusDone)
	require.NoError(t, err)
	require.Len(t, result.BonusesAwarded, 1)
	assert.Equal(t, int64(60), result.BonusesAwarded[0].Amount)
}

func TestDoneAccrualIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7, InviterPercent: 3})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	inviter := createTestUser(t, db, nil)
	buyer := createTestUser(t, db, func(u *database.User) { u.ReferredBy = &inviter.ID })
	order := createTestOrder(t, db, &buyer.ID, 1000, 0, database.OrderStatusPaid)

	_, err := svc.Transition(admin.ID, order.ID, database.OrderStatusDone)
	require.NoError(t, err)

	// Bounce away and back: no second accrual
	_, err = svc.Transition(admin.ID, order.ID, database.OrderStatusShipped)
	require.NoError(t, err)
	result, err := svc.Transition(admin.ID, order.ID, database.OrderStatusDone)
	require.NoError(t, err)
	assert.Empty(t, result.BonusesAwarded)

	assert.Equal(t, int64(70), balanceOf(t, db, buyer.ID))
	assert.Equal(t, int64(30), balanceOf(t, db, inviter.ID))

	var count int64
	require.NoError(t, db.Model(&database.ReferralEvent{}).
		Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestDoneGuestOrderAccruesNothing(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	order := createTestOrder(t, db, nil, 1000, 0, database.OrderStatusPaid)

	result, err := svc.Transition(admin.ID, order.ID, database.OrderStatusDone)
	require.NoError(t, err)
	assert.Empty(t, result.BonusesAwarded)
}

func TestCancelRefundsSpentBonusOnce(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	buyer := createTestUser(t, db, nil)
	order := createTestOrder(t, db, &buyer.ID, 1000, 300, database.OrderStatusPaid)

	_, err := svc.Transition(admin.ID, order.ID, database.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balanceOf(t, db, buyer.ID))

	// A repeated cancellation must not refund again
	_, err = svc.Transition(admin.ID, order.ID, database.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balanceOf(t, db, buyer.ID))

	var ord database.Order
	require.NoError(t, db.First(&ord, "id = ?", order.ID).Error)
	assert.True(t, ord.BonusRefunded)
}

func TestCancelledOrderCannotLeave(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	order := createTestOrder(t, db, nil, 1000, 0, database.OrderStatusCancelled)

	_, err := svc.Transition(admin.ID, order.ID, database.OrderStatusProcessing)
	assert.ErrorIs(t, err, generr.ErrInvalidArgument)
}

func TestCancelAfterDoneReversesBonuses(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7, InviterPercent: 3})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	inviter := createTestUser(t, db, nil)
	buyer := createTestUser(t, db, func(u *database.User) { u.ReferredBy = &inviter.ID })
	order := createTestOrder(t, db, &buyer.ID, 1000, 0, database.OrderStatusPaid)

	_, err := svc.Transition(admin.ID, order.ID, database.OrderStatusDone)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balanceOf(t, db, buyer.ID))
	assert.Equal(t, int64(30), balanceOf(t, db, inviter.ID))

	_, err = svc.Transition(admin.ID, order.ID, database.OrderStatusCancelled)
	require.NoError(t, err)

	assert.Equal(t, int64(0), balanceOf(t, db, buyer.ID))
	assert.Equal(t, int64(0), balanceOf(t, db, inviter.ID))

	// Reversals are new rows, never deletions
	var count int64
	require.NoError(t, db.Model(&database.ReferralEvent{}).
		Where("order_id = ? AND type = ?", order.ID, database.EventManualAdjustment).
		Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCancelBeforeDoneLeavesNoReversals(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	buyer := createTestUser(t, db, nil)
	order := createTestOrder(t, db, &buyer.ID, 1000, 0, database.OrderStatusProcessing)

	_, err := svc.Transition(admin.ID, order.ID, database.OrderStatusCancelled)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&database.ReferralEvent{}).
		Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestDoneAwardsTeamBonusToUnlockedL2(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7, InviterPercent: 3, InviterBonusLevel2Percent: 1})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	l2 := createTestUser(t, db, func(u *database.User) { u.Level2Unlocked = true })
	l1 := createTestUser(t, db, func(u *database.User) { u.ReferredBy = &l2.ID })
	buyer := createTestUser(t, db, func(u *database.User) { u.ReferredBy = &l1.ID })
	order := createTestOrder(t, db, &buyer.ID, 1000, 0, database.OrderStatusPaid)

	result, err := svc.Transition(admin.ID, order.ID, database.OrderStatusDone)
	require.NoError(t, err)

	require.Len(t, result.BonusesAwarded, 3)
	team := result.BonusesAwarded[2]
	assert.Equal(t, BonusRoleTeam, team.Role)
	assert.Equal(t, l2.ID, team.UserID)
	assert.Equal(t, int64(10), team.Amount)
	assert.Equal(t, int64(10), balanceOf(t, db, l2.ID))
}

func TestDoneSkipsTeamBonusWhenL2Locked(t *testing.T) {
	db := setupTestDB(t)
	seedSettings(t, db, database.AppSettings{CustomerPercent: 7, InviterPercent: 3, InviterBonusLevel2Percent: 1})
	svc := newStatusService(db)

	admin := createTestUser(t, db, func(u *database.User) { u.IsAdmin = true })
	l2 := createTestUser(t, db, nil)
	l1 := createTestUser(t, db, func(u *database.User) { u.ReferredBy = &l2.ID })
	buyer := createTestUser(t, db, func(u *database.User) { u.ReferredBy = &l1.ID })
	order := createTestOrder(t, db, &buyer.ID, 1000, 0, database.OrderStatusPaid)

	result, err := svc.Transition(admin.ID, order.ID, database.OrderStatusDone)
	require.NoError(t, err)

	for _, award := range result.BonusesAwarded {
		assert.NotEqual(t, BonusRoleTeam, award.Role)
	}
	assert.Equal(t, int64(0), balanceOf(t, db, l2.ID))
}
