package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func seedAppSettingsMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_seed_app_settings",
		Migrate: func(tx *gorm.DB) error {
			// Default economics: 7% cashback, 3% direct referral, 1% team
			// bonus, 30% of cash revenue reserved against bonus liability.
			return tx.Exec(`
				INSERT INTO app_settings
					(id, customer_percent, inviter_percent, inviter_bonus_level2_percent,
					 reserve_percent, allow_full_bonus_pay, level2_min_referrals,
					 slot_price, slot_count, updated_at)
				VALUES (1, 7, 3, 1, 30, FALSE, 3, 0, 0, NOW())
				ON CONFLICT (id) DO NOTHING
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DELETE FROM app_settings WHERE id = 1").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, seedAppSettingsMigration())
}
