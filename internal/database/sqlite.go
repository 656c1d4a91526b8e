package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/challenge"
	"github.com/MarcoPoloResearchLab/plate400/internal/diary"
	"github.com/MarcoPoloResearchLab/plate400/internal/moderation"
	"github.com/MarcoPoloResearchLab/plate400/internal/social"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table the service owns, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&users.User{},
		&catalog.Category{},
		&catalog.Product{},
		&challenge.Challenge{},
		&diary.Entry{},
		&moderation.Proposal{},
		&social.Follow{},
		&social.Event{},
		&migrationRecord{},
	}
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         NewGormLogger(logger, logger.Core().Enabled(zap.DebugLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps the foreign_keys pragma and in-memory databases alive
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("path", path))
	return db, nil
}
