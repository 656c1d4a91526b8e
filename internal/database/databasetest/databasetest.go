// Package databasetest opens migrated throwaway databases for package tests.
package databasetest

import (
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/plate400/internal/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open returns a migrated in-memory SQLite database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:plate400-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SequenceIDs issues predictable ids: prefix-1, prefix-2, …
type SequenceIDs struct {
	Prefix string
	next   int
}

func (s *SequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("%s-%d", s.Prefix, s.next), nil
}
