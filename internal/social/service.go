// Package social owns follow edges and the activity feed built from them.
package social

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/civil"
	"github.com/MarcoPoloResearchLab/plate400/internal/ids"
	"github.com/MarcoPoloResearchLab/plate400/internal/textkey"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew   = "social.service.new"
	opFollow       = "social.follow"
	opUnfollow     = "social.unfollow"
	opFollowing    = "social.following"
	opFeed         = "social.feed"
	opRecordEntry  = "social.record_entry_created"
	feedLimit      = 100
	followeeSubSQL = "SELECT followee_id FROM follows WHERE follower_id = ?"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Follow subscribes follower to followee. Following twice keeps a single edge.
func (s *Service) Follow(ctx context.Context, followerID, followeeID string) error {
	followeeID = strings.TrimSpace(followeeID)
	if followeeID == "" {
		return apperr.Validation(opFollow, "missing_followee", "missing user", nil)
	}
	if followerID == followeeID {
		return apperr.Validation(opFollow, "self_follow", "self-follow", nil)
	}
	db := s.db.WithContext(ctx)

	var known int64
	if err := db.Model(&users.User{}).Where("id = ?", followeeID).Count(&known).Error; err != nil {
		s.logError(opFollow, "user_lookup_failed", err, zap.String("followee_id", followeeID))
		return apperr.Internal(opFollow, "user_lookup_failed", err)
	}
	if known == 0 {
		return apperr.NotFound(opFollow, "user_not_found", "user not found", nil)
	}

	edge := Follow{
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  s.clock().UTC(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followee_id"}},
		DoNothing: true,
	}).Create(&edge).Error
	if err != nil {
		s.logError(opFollow, "edge_insert_failed", err, zap.String("follower_id", followerID), zap.String("followee_id", followeeID))
		return apperr.Internal(opFollow, "edge_insert_failed", err)
	}
	return nil
}

// Unfollow removes the edge when present.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID string) error {
	err := s.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, strings.TrimSpace(followeeID)).
		Delete(&Follow{}).Error
	if err != nil {
		s.logError(opUnfollow, "edge_delete_failed", err, zap.String("follower_id", followerID))
		return apperr.Internal(opUnfollow, "edge_delete_failed", err)
	}
	return nil
}

// Following lists the users followerID subscribes to, ordered by email ignoring case.
func (s *Service) Following(ctx context.Context, followerID string) ([]users.User, error) {
	var followees []users.User
	err := s.db.WithContext(ctx).
		Model(&users.User{}).
		Joins("JOIN follows ON follows.followee_id = users.id").
		Where("follows.follower_id = ?", followerID).
		Order("LOWER(users.email)").
		Find(&followees).Error
	if err != nil {
		s.logError(opFollowing, "query_failed", err, zap.String("follower_id", followerID))
		return nil, apperr.Internal(opFollowing, "query_failed", err)
	}
	return followees, nil
}

// FollowingSet returns the ids followerID subscribes to.
func (s *Service) FollowingSet(ctx context.Context, followerID string) (map[string]bool, error) {
	var followeeIDs []string
	err := s.db.WithContext(ctx).
		Model(&Follow{}).
		Where("follower_id = ?", followerID).
		Pluck("followee_id", &followeeIDs).Error
	if err != nil {
		s.logError(opFollowing, "query_failed", err, zap.String("follower_id", followerID))
		return nil, apperr.Internal(opFollowing, "query_failed", err)
	}
	set := make(map[string]bool, len(followeeIDs))
	for _, id := range followeeIDs {
		set[id] = true
	}
	return set, nil
}

// Feed returns the newest events visible to userID under scope, optionally filtered by the
// owner's email or name.
func (s *Service) Feed(ctx context.Context, userID string, scope Scope, query string) ([]FeedItem, error) {
	db := s.db.WithContext(ctx)
	events := db.Model(&Event{})
	switch scope {
	case ScopeSubscriptions:
		events = events.Where("events.user_id IN ("+followeeSubSQL+") AND events.user_id <> ?", userID, userID)
	default:
		events = events.Where("(events.user_id = ? OR events.user_id IN ("+followeeSubSQL+"))", userID, userID)
	}
	if folded := textkey.Fold(query); folded != "" {
		events = events.
			Joins("JOIN users ON users.id = events.user_id").
			Where(`users.search_text LIKE ? ESCAPE '\'`, textkey.ContainsPattern(folded))
	}

	var found []Event
	err := events.
		Order("events.created_at DESC").
		Order("events.id DESC").
		Limit(feedLimit).
		Find(&found).Error
	if err != nil {
		s.logError(opFeed, "events_query_failed", err, zap.String("user_id", userID))
		return nil, apperr.Internal(opFeed, "events_query_failed", err)
	}
	if len(found) == 0 {
		return []FeedItem{}, nil
	}

	ownerIDs := make([]string, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, event := range found {
		if _, ok := seen[event.UserID]; ok {
			continue
		}
		seen[event.UserID] = struct{}{}
		ownerIDs = append(ownerIDs, event.UserID)
	}
	var owners []users.User
	if err := db.Where("id IN ?", ownerIDs).Find(&owners).Error; err != nil {
		s.logError(opFeed, "owners_query_failed", err, zap.String("user_id", userID))
		return nil, apperr.Internal(opFeed, "owners_query_failed", err)
	}
	ownersByID := make(map[string]users.User, len(owners))
	for _, owner := range owners {
		ownersByID[owner.ID] = owner
	}

	items := make([]FeedItem, 0, len(found))
	for _, event := range found {
		owner, ok := ownersByID[event.UserID]
		if !ok {
			owner = users.User{ID: event.UserID}
		}
		items = append(items, FeedItem{Event: event, Owner: owner})
	}
	return items, nil
}

// RecordEntryCreated appends an entry_created event inside tx.
func (s *Service) RecordEntryCreated(tx *gorm.DB, userID string, product catalog.Product, date civil.Date) error {
	id, err := s.idProvider.NewID()
	if err != nil {
		return apperr.Internal(opRecordEntry, "id_generation_failed", err)
	}
	event := Event{
		ID:     id,
		UserID: userID,
		Type:   EventTypeEntryCreated,
		Payload: EntryPayload{
			ProductID:   product.ID,
			ProductName: product.Name,
			Kind:        product.Kind,
			Date:        date,
		},
		CreatedAt: s.clock().UTC(),
	}
	if err := tx.Create(&event).Error; err != nil {
		s.logError(opRecordEntry, "event_insert_failed", err, zap.String("user_id", userID))
		return apperr.Internal(opRecordEntry, "event_insert_failed", err)
	}
	return nil
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
	s.logger.Error("social service error", attrs...)
}
