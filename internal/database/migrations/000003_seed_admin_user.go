package migrations

import (
	"os"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/glowcart/backend/internal/database"
	"github.com/glowcart/backend/internal/utils"
)

func seedAdminUserMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_seed_admin_user",
		Migrate: func(tx *gorm.DB) error {
			phone := os.Getenv("ADMIN_PHONE")
			password := os.Getenv("ADMIN_PASSWORD")
			if phone == "" || password == "" {
				// No bootstrap credentials configured, nothing to seed.
				return nil
			}

			var count int64
			if err := tx.Model(&database.User{}).Where("phone = ?", phone).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil
			}

			hash, err := utils.HashPassword(password)
			if err != nil {
				return err
			}

			admin := database.User{
				Phone:        phone,
				Name:         "Admin",
				Password:     hash,
				IsAdmin:      true,
				ReferralCode: utils.GenerateReferralCode(),
			}
			return tx.Create(&admin).Error
		},
		Rollback: func(tx *gorm.DB) error {
			phone := os.Getenv("ADMIN_PHONE")
			if phone == "" {
				return nil
			}
			return tx.Unscoped().Where("phone = ? AND is_admin", phone).Delete(&database.User{}).Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, seedAdminUserMigration())
}
