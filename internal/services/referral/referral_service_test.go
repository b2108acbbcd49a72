package referral

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/services/ledger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Per-test in-memory database to avoid cross-test interference
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.User{},
		&database.Order{},
		&database.ReferralEvent{},
	))
	return db
}

func createUser(t *testing.T, db *gorm.DB, referredBy *uuid.UUID, unlocked bool) *database.User {
	t.Helper()
	user := &database.User{
		Phone:          uuid.New().String(),
		ReferralCode:   uuid.New().String()[:8],
		ReferredBy:     referredBy,
		Level2Unlocked: unlocked,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createDoneOrder(t *testing.T, db *gorm.DB, userID uuid.UUID) *database.Order {
	t.Helper()
	order := &database.Order{
		UserID:      &userID,
		Status:      database.OrderStatusDone,
		TotalAmount: 1000,
		CashPaid:    1000,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestAwardTeamBonus(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, ledger.NewService(db))
	cfg := database.AppSettings{InviterBonusLevel2Percent: 1}

	l2 := createUser(t, db, nil, true)
	l1 := createUser(t, db, &l2.ID, false)
	buyer := createUser(t, db, &l1.ID, false)
	orderID := uuid.New()

	result, err := svc.AwardTeamBonus(orderID, buyer.ID, 10000, cfg)
	require.NoError(t, err)
	assert.True(t, result.Awarded)
	assert.Equal(t, l2.ID, result.L2UserID)
	assert.Equal(t, int64(100), result.BonusAmount)

	var user database.User
	require.NoError(t, db.First(&user, "id = ?", l2.ID).Error)
	assert.Equal(t, int64(100), user.BonusBalance)

	// Replays are no-ops
	result, err = svc.AwardTeamBonus(orderID, buyer.ID, 10000, cfg)
	require.NoError(t, err)
	assert.False(t, result.Awarded)
	require.NoError(t, db.First(&user, "id = ?", l2.ID).Error)
	assert.Equal(t, int64(100), user.BonusBalance)
}

func TestAwardTeamBonusRequiresUnlock(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, ledger.NewService(db))
	cfg := database.AppSettings{InviterBonusLevel2Percent: 1}

	l2 := createUser(t, db, nil, false)
	l1 := createUser(t, db, &l2.ID, false)
	buyer := createUser(t, db, &l1.ID, false)

	result, err := svc.AwardTeamBonus(uuid.New(), buyer.ID, 10000, cfg)
	require.NoError(t, err)
	assert.False(t, result.Awarded)

	var user database.User
	require.NoError(t, db.First(&user, "id = ?", l2.ID).Error)
	assert.Equal(t, int64(0), user.BonusBalance)
}

func TestAwardTeamBonusShortChain(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, ledger.NewService(db))
	cfg := database.AppSettings{InviterBonusLevel2Percent: 1}

	l1 := createUser(t, db, nil, false)
	buyer := createUser(t, db, &l1.ID, false)

	result, err := svc.AwardTeamBonus(uuid.New(), buyer.ID, 10000, cfg)
	require.NoError(t, err)
	assert.False(t, result.Awarded)

	// No chain at all
	orphan := createUser(t, db, nil, false)
	result, err = svc.AwardTeamBonus(uuid.New(), orphan.ID, 10000, cfg)
	require.NoError(t, err)
	assert.False(t, result.Awarded)
}

func TestAwardTeamBonusZeroAmount(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, ledger.NewService(db))
	cfg := database.AppSettings{InviterBonusLevel2Percent: 0}

	l2 := createUser(t, db, nil, true)
	l1 := createUser(t, db, &l2.ID, false)
	buyer := createUser(t, db, &l1.ID, false)

	result, err := svc.AwardTeamBonus(uuid.New(), buyer.ID, 10000, cfg)
	require.NoError(t, err)
	assert.False(t, result.Awarded)
}

func TestTryUnlockSecondLevel(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, ledger.NewService(db))
	cfg := database.AppSettings{Level2MinReferrals: 3}

	referrer := createUser(t, db, nil, false)

	// Two referrals with completed orders are not enough
	for i := 0; i < 2; i++ {
		referred := createUser(t, db, &referrer.ID, false)
		createDoneOrder(t, db, referred.ID)
	}
	unlocked, err := svc.TryUnlockSecondLevel(referrer.ID, cfg)
	require.NoError(t, err)
	assert.False(t, unlocked)

	// A referral without a completed order does not count
	pending := createUser(t, db, &referrer.ID, false)
	require.NoError(t, db.Create(&database.Order{
		UserID: &pending.ID, Status: database.OrderStatusPaid, TotalAmount: 500, CashPaid: 500,
	}).Error)
	unlocked, err = svc.TryUnlockSecondLevel(referrer.ID, cfg)
	require.NoError(t, err)
	assert.False(t, unlocked)

	// The third completed referral crosses the threshold
	third := createUser(t, db, &referrer.ID, false)
	createDoneOrder(t, db, third.ID)
	unlocked, err = svc.TryUnlockSecondLevel(referrer.ID, cfg)
	require.NoError(t, err)
	assert.True(t, unlocked)

	var user database.User
	require.NoError(t, db.First(&user, "id = ?", referrer.ID).Error)
	assert.True(t, user.Level2Unlocked)

	// Already unlocked: a repeat call reports no change
	unlocked, err = svc.TryUnlockSecondLevel(referrer.ID, cfg)
	require.NoError(t, err)
	assert.False(t, unlocked)
}

func TestTryUnlockCountsDistinctReferrals(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, ledger.NewService(db))
	cfg := database.AppSettings{Level2MinReferrals: 2}

	referrer := createUser(t, db, nil, false)

	// One referral with many completed orders still counts once
	referred := createUser(t, db, &referrer.ID, false)
	for i := 0; i < 3; i++ {
		createDoneOrder(t, db, referred.ID)
	}

	unlocked, err := svc.TryUnlockSecondLevel(referrer.ID, cfg)
	require.NoError(t, err)
	assert.False(t, unlocked)
}
