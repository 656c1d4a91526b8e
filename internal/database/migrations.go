package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationLowercaseUserEmails   = "2026-09-01_lowercase_user_emails"
	migrationBackfillSearchColumns = "2026-09-14_backfill_search_columns"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationLowercaseUserEmails, apply: lowercaseUserEmails},
		{name: migrationBackfillSearchColumns, apply: backfillSearchColumns},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func lowercaseUserEmails(db *gorm.DB) error {
	return db.Exec("UPDATE users SET email = lower(trim(email)) WHERE email <> lower(trim(email))").Error
}

// backfillSearchColumns recomputes the folded search text for rows written before the
// columns existed. SQLite's lower() only folds ASCII, so the values are computed in Go.
func backfillSearchColumns(db *gorm.DB) error {
	var pendingUsers []users.User
	if err := db.Where("search_text = ''").Find(&pendingUsers).Error; err != nil {
		return err
	}
	for _, user := range pendingUsers {
		if err := db.Model(&users.User{}).Where("id = ?", user.ID).Update("search_text", users.SearchKey(user)).Error; err != nil {
			return err
		}
	}

	var pendingProducts []catalog.Product
	if err := db.Where("search_name = ''").Find(&pendingProducts).Error; err != nil {
		return err
	}
	for _, product := range pendingProducts {
		if err := db.Model(&catalog.Product{}).Where("id = ?", product.ID).Update("search_name", catalog.ProductSearchKey(product.Name, product.Kind)).Error; err != nil {
			return err
		}
	}
	return nil
}
