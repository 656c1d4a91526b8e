// Package challenge tracks each user's year-long window and derives progress from the diary.
package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/civil"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultTarget is the number of distinct products a challenge asks for.
	DefaultTarget = 400
	// DefaultLengthDays is the distance from start to end date.
	DefaultLengthDays = 365

	opServiceNew = "challenge.service.new"
	opEnsure     = "challenge.ensure"
	opProgress   = "challenge.progress"
	opGet        = "challenge.get"
)

var errMissingDatabase = errors.New("database handle is required")

// Challenge is the single window per user. EndDate is fixed at creation.
type Challenge struct {
	UserID       string     `gorm:"column:user_id;primaryKey;size:190;not null"`
	StartDate    civil.Date `gorm:"column:start_date;type:varchar(10);not null"`
	EndDate      civil.Date `gorm:"column:end_date;type:varchar(10);not null"`
	TargetUnique int        `gorm:"column:target_unique;not null;default:400"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Challenge) TableName() string {
	return "challenges"
}

// Progress is recomputed from diary entries on every read.
type Progress struct {
	UniqueCount int
	Target      int
	DaysElapsed int
	DaysTotal   int
}

// Percent is UniqueCount relative to Target, capped at 100.
func (p Progress) Percent() int {
	if p.Target <= 0 {
		return 0
	}
	percent := p.UniqueCount * 100 / p.Target
	if percent > 100 {
		return 100
	}
	return percent
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Location   *time.Location
	Target     int
	LengthDays int
	Logger     *zap.Logger
}

type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	location   *time.Location
	target     int
	lengthDays int
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	target := cfg.Target
	if target <= 0 {
		target = DefaultTarget
	}
	lengthDays := cfg.LengthDays
	if lengthDays <= 0 {
		lengthDays = DefaultLengthDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		location:   location,
		target:     target,
		lengthDays: lengthDays,
		logger:     logger,
	}, nil
}

// Today is the current calendar day in the configured location.
func (s *Service) Today() civil.Date {
	return civil.In(s.clock(), s.location)
}

// Ensure returns the user's challenge, creating it starting today when absent.
func (s *Service) Ensure(ctx context.Context, userID string) (Challenge, error) {
	return s.EnsureWithin(s.db.WithContext(ctx), userID)
}

// EnsureWithin is Ensure bound to an open transaction.
func (s *Service) EnsureWithin(tx *gorm.DB, userID string) (Challenge, error) {
	if userID == "" {
		return Challenge{}, apperr.Validation(opEnsure, "missing_user_id", "user is required", nil)
	}
	start := s.Today()
	candidate := Challenge{
		UserID:       userID,
		StartDate:    start,
		EndDate:      start.AddDays(s.lengthDays),
		TargetUnique: s.target,
		IsActive:     true,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil {
		s.logError(opEnsure, "challenge_insert_failed", err, zap.String("user_id", userID))
		return Challenge{}, apperr.Internal(opEnsure, "challenge_insert_failed", err)
	}

	var stored Challenge
	if err := tx.Where("user_id = ?", userID).Take(&stored).Error; err != nil {
		s.logError(opEnsure, "challenge_select_failed", err, zap.String("user_id", userID))
		return Challenge{}, apperr.Internal(opEnsure, "challenge_select_failed", err)
	}
	return stored, nil
}

// Get returns the user's challenge and whether one exists. It never writes.
func (s *Service) Get(ctx context.Context, userID string) (Challenge, bool, error) {
	var stored Challenge
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Challenge{}, false, nil
	}
	if err != nil {
		s.logError(opGet, "challenge_select_failed", err, zap.String("user_id", userID))
		return Challenge{}, false, apperr.Internal(opGet, "challenge_select_failed", err)
	}
	return stored, true, nil
}

// Progress derives the user's standing. Without a challenge it returns the default
// projection and creates nothing.
func (s *Service) Progress(ctx context.Context, userID string) (Progress, error) {
	stored, found, err := s.Get(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	if !found {
		return Progress{
			UniqueCount: 0,
			Target:      s.target,
			DaysElapsed: 0,
			DaysTotal:   s.lengthDays,
		}, nil
	}

	var uniqueCount int64
	err = s.db.WithContext(ctx).
		Table("diary_entries").
		Where("user_id = ? AND entry_date >= ? AND entry_date <= ?", userID, stored.StartDate, stored.EndDate).
		Distinct("product_id").
		Count(&uniqueCount).Error
	if err != nil {
		s.logError(opProgress, "count_failed", err, zap.String("user_id", userID))
		return Progress{}, apperr.Internal(opProgress, "count_failed", err)
	}

	return computeProgress(stored, int(uniqueCount), s.Today()), nil
}

func computeProgress(stored Challenge, uniqueCount int, today civil.Date) Progress {
	elapsed := civil.Min(today, stored.EndDate).DaysSince(stored.StartDate) + 1
	if elapsed < 0 {
		elapsed = 0
	}
	return Progress{
		UniqueCount: uniqueCount,
		Target:      stored.TargetUnique,
		DaysElapsed: elapsed,
		DaysTotal:   stored.EndDate.DaysSince(stored.StartDate) + 1,
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("challenge service error", attrs...)
}
