// Package diary records dated product entries and derives calendar views from them.
package diary

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/challenge"
	"github.com/MarcoPoloResearchLab/plate400/internal/civil"
	"github.com/MarcoPoloResearchLab/plate400/internal/dberrors"
	"github.com/MarcoPoloResearchLab/plate400/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew   = "diary.service.new"
	opAddEntry     = "diary.add_entry"
	opDeleteEntry  = "diary.delete_entry"
	opListForDate  = "diary.list_entries_for_date"
	opMonthGrid    = "diary.month_grid"
	daysInWeek     = 7
	mondayFirstGap = 6
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingCollab     = errors.New("challenge and event collaborators are required")
	errAlreadyLogged     = errors.New("entry already logged")
)

// ChallengeEnsurer guarantees a challenge row inside the caller's transaction.
type ChallengeEnsurer interface {
	EnsureWithin(tx *gorm.DB, userID string) (challenge.Challenge, error)
}

// EventRecorder appends feed events inside the caller's transaction.
type EventRecorder interface {
	RecordEntryCreated(tx *gorm.DB, userID string, product catalog.Product, date civil.Date) error
}

type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Challenges ChallengeEnsurer
	Events     EventRecorder
	Clock      func() time.Time
	Location   *time.Location
	Logger     *zap.Logger
}

// Service is the diary ledger.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	challenges ChallengeEnsurer
	events     EventRecorder
	clock      func() time.Time
	location   *time.Location
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Challenges == nil || cfg.Events == nil {
		return nil, apperr.Internal(opServiceNew, "missing_collaborator", errMissingCollab)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		challenges: cfg.Challenges,
		events:     cfg.Events,
		clock:      clock,
		location:   location,
		logger:     logger,
	}, nil
}

// Today is the current calendar day in the configured location.
func (s *Service) Today() civil.Date {
	return civil.In(s.clock(), s.location)
}

// AddEntry logs a product for a day. Logging the same product twice on one day is reported
// through AddEntryResult.AlreadyLogged and leaves the store untouched.
func (s *Service) AddEntry(ctx context.Context, request AddEntryRequest) (AddEntryResult, error) {
	date := s.Today()
	if raw := strings.TrimSpace(request.Date); raw != "" {
		parsed, err := civil.Parse(raw)
		if err != nil {
			return AddEntryResult{}, apperr.Validation(opAddEntry, "invalid_date", "invalid date", err)
		}
		date = parsed
	}
	productID := strings.TrimSpace(request.ProductID)
	if productID == "" {
		return AddEntryResult{}, apperr.Validation(opAddEntry, "missing_product", "missing product", nil)
	}
	if request.AmountGrams != nil && *request.AmountGrams < 0 {
		return AddEntryResult{}, apperr.Validation(opAddEntry, "invalid_amount", "invalid amount", nil)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return AddEntryResult{}, apperr.Internal(opAddEntry, "id_generation_failed", err)
	}

	entry := Entry{
		ID:          id,
		UserID:      request.UserID,
		EntryDate:   date,
		ProductID:   productID,
		AmountGrams: request.AmountGrams,
		Note:        truncateNote(strings.TrimSpace(request.Note)),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.challenges.EnsureWithin(tx, request.UserID); err != nil {
			return err
		}
		product, err := catalog.ProductByIDWithin(tx, productID)
		if err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "entry_date"},
				{Name: "product_id"},
			},
			DoNothing: true,
		}).Omit("Product").Create(&entry)
		if result.Error != nil {
			if dberrors.IsUniqueViolation(result.Error) {
				return errAlreadyLogged
			}
			return apperr.Internal(opAddEntry, "entry_insert_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return errAlreadyLogged
		}
		entry.Product = product
		return s.events.RecordEntryCreated(tx, request.UserID, product, date)
	})
	if errors.Is(err, errAlreadyLogged) {
		return AddEntryResult{Date: date, AlreadyLogged: true}, nil
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			s.logError(opAddEntry, "transaction_failed", err, zap.String("user_id", request.UserID), zap.String("product_id", productID))
		}
		return AddEntryResult{}, err
	}
	return AddEntryResult{Entry: entry, Date: date}, nil
}

// DeleteEntry removes one of the caller's entries. Entries owned by someone else are reported as missing.
func (s *Service) DeleteEntry(ctx context.Context, userID, entryID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(entryID), userID).
		Delete(&Entry{})
	if result.Error != nil {
		s.logError(opDeleteEntry, "delete_failed", result.Error, zap.String("entry_id", entryID))
		return apperr.Internal(opDeleteEntry, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound(opDeleteEntry, "entry_not_found", "entry not found", nil)
	}
	return nil
}

// ListEntriesForDate returns the user's entries for one day ordered by product name then kind.
func (s *Service) ListEntriesForDate(ctx context.Context, userID string, date civil.Date) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Preload("Product").
		Joins("JOIN products ON products.id = diary_entries.product_id").
		Where("diary_entries.user_id = ? AND diary_entries.entry_date = ?", userID, date).
		Order("products.name").
		Order("products.kind").
		Find(&entries).Error
	if err != nil {
		s.logError(opListForDate, "query_failed", err, zap.String("user_id", userID))
		return nil, apperr.Internal(opListForDate, "query_failed", err)
	}
	return entries, nil
}

type dayCount struct {
	EntryDate civil.Date `gorm:"column:entry_date"`
	Total     int        `gorm:"column:total"`
}

// MonthGrid lays the month out in Monday-first weeks. Slots outside the month are empty.
func (s *Service) MonthGrid(ctx context.Context, userID string, year int, month time.Month) (Month, error) {
	if month < time.January || month > time.December {
		return Month{}, apperr.Validation(opMonthGrid, "invalid_month", "invalid month", nil)
	}
	if !civil.ValidYear(year) {
		return Month{}, apperr.Validation(opMonthGrid, "invalid_year", "invalid year", nil)
	}
	first := civil.Of(year, month, 1)
	last := first.LastOfMonth()

	var counts []dayCount
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Select("entry_date, COUNT(*) AS total").
		Where("user_id = ? AND entry_date >= ? AND entry_date <= ?", userID, first, last).
		Group("entry_date").
		Scan(&counts).Error
	if err != nil {
		s.logError(opMonthGrid, "count_failed", err, zap.String("user_id", userID))
		return Month{}, apperr.Internal(opMonthGrid, "count_failed", err)
	}
	byDay := make(map[int]int, len(counts))
	for _, count := range counts {
		byDay[count.EntryDate.Day()] = count.Total
	}

	prev := first.AddDays(-1)
	next := last.AddDays(1)
	return Month{
		Year:      year,
		Month:     month,
		Weeks:     layoutWeeks(first, last, byDay),
		PrevYear:  prev.Year(),
		PrevMonth: prev.Month(),
		NextYear:  next.Year(),
		NextMonth: next.Month(),
	}, nil
}

func layoutWeeks(first, last civil.Date, byDay map[int]int) [][7]Day {
	// Monday is column 0.
	offset := (int(first.Weekday()) + mondayFirstGap) % daysInWeek
	var (
		weeks [][7]Day
		week  [7]Day
	)
	column := offset
	for day := first; !day.After(last); day = day.AddDays(1) {
		week[column] = Day{Date: day, Count: byDay[day.Day()]}
		column++
		if column == daysInWeek {
			weeks = append(weeks, week)
			week = [7]Day{}
			column = 0
		}
	}
	if column > 0 {
		weeks = append(weeks, week)
	}
	return weeks
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
	s.logger.Error("diary service error", attrs...)
}
