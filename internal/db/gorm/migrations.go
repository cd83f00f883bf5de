package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core assessment tables
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&FootprintRecord{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&UserGoal{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&UserPreference{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&MemoryLog{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					"footprint_records", "user_goals", "user_preferences", "memory_logs",
				)
			},
		},

		// Migration 002: User profiles
		{
			ID: "002_users",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&User{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("users")
			},
		},

		// Migration 003: Daily rollups for dashboard trends
		{
			ID: "003_daily_rollups",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&DailyRollup{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("daily_rollups")
			},
		},
	})

	return m.Migrate()
}
