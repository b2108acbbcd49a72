package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func ledgerUniquenessMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_ledger_order_bonus_uniqueness",
		Migrate: func(tx *gorm.DB) error {
			// One ORDER_BONUS row per (order, recipient, bonus role). The
			// role is encoded by referred_user_id: NULL for the buyer's own
			// cashback, the buyer's id for referrer bonuses.
			return tx.Exec(`
				CREATE UNIQUE INDEX IF NOT EXISTS uq_referral_events_order_bonus
				ON referral_events (
					order_id,
					user_id,
					COALESCE(referred_user_id, '00000000-0000-0000-0000-000000000000')
				)
				WHERE type = 'ORDER_BONUS'
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP INDEX IF EXISTS uq_referral_events_order_bonus").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, ledgerUniquenessMigration())
}
