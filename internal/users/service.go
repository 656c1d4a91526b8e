package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/auth"
	"github.com/MarcoPoloResearchLab/plate400/internal/dberrors"
	"github.com/MarcoPoloResearchLab/plate400/internal/textkey"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

const (
	opResolve       = "users.resolve"
	opGet           = "users.get"
	opUpdateProfile = "users.update_profile"
	opSearch        = "users.search"

	searchLimit = 50
)

var validate = validator.New()

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages user records derived from session claims.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
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
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Resolve returns the user for the provided session claims, creating the record on first sight.
func (s *Service) Resolve(ctx context.Context, claims auth.SessionClaims) (User, error) {
	userID := deriveUserID(claims)
	email := normalizeEmail(claims.UserEmail)
	if userID == "" || email == "" {
		return User{}, apperr.New(apperr.KindUnauthorized, opResolve, "invalid_identity", "please sign in again", ErrInvalidIdentity)
	}

	db := s.db.WithContext(ctx)
	now := s.now().UTC()

	var user User
	err := db.Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		first, middle, last := splitDisplayName(normalize(claims.UserDisplayName))
		user = User{
			ID:         userID,
			Email:      email,
			FirstName:  first,
			MiddleName: middle,
			LastName:   last,
			LastSeenAt: now,
		}
		user.SearchText = SearchKey(user)
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&user)
		if result.Error != nil {
			if dberrors.IsUniqueViolation(result.Error) {
				return User{}, apperr.Conflict(opResolve, "email_taken", "this e-mail belongs to another account", result.Error)
			}
			s.logError(opResolve, "user_insert_failed", result.Error, zap.String("user_id", userID))
			return User{}, apperr.Internal(opResolve, "user_insert_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			if err := db.Where("id = ?", userID).Take(&user).Error; err != nil {
				return User{}, apperr.Internal(opResolve, "user_reload_failed", err)
			}
		}
		return user, nil
	}
	if err != nil {
		s.logError(opResolve, "user_select_failed", err, zap.String("user_id", userID))
		return User{}, apperr.Internal(opResolve, "user_select_failed", err)
	}

	updates := map[string]interface{}{"last_seen_at": now}
	if email != user.Email {
		user.Email = email
		updates["email"] = email
		updates["search_text"] = SearchKey(user)
	}
	if err := db.Model(&User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		if dberrors.IsUniqueViolation(err) {
			return User{}, apperr.Conflict(opResolve, "email_taken", "this e-mail belongs to another account", err)
		}
		s.logger.Warn("user refresh failed", zap.String("user_id", userID), zap.Error(err))
	}
	user.LastSeenAt = now
	return user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.NotFound(opGet, "user_not_found", "user not found", err)
	}
	if err != nil {
		s.logError(opGet, "user_select_failed", err, zap.String("user_id", userID))
		return User{}, apperr.Internal(opGet, "user_select_failed", err)
	}
	return user, nil
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	FirstName  string `validate:"max=150"`
	MiddleName string `validate:"max=150"`
	LastName   string `validate:"max=150"`
	Bio        string `validate:"max=2000"`
}

// UpdateProfile replaces the editable profile fields of the user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	update = ProfileUpdate{
		FirstName:  normalize(update.FirstName),
		MiddleName: normalize(update.MiddleName),
		LastName:   normalize(update.LastName),
		Bio:        strings.TrimSpace(update.Bio),
	}
	if err := validate.Struct(update); err != nil {
		return User{}, apperr.Validation(opUpdateProfile, "invalid_profile", "profile fields are too long", err)
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	user.FirstName = update.FirstName
	user.MiddleName = update.MiddleName
	user.LastName = update.LastName
	user.Bio = update.Bio
	user.SearchText = SearchKey(user)

	err = s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"first_name":  user.FirstName,
		"middle_name": user.MiddleName,
		"last_name":   user.LastName,
		"bio":         user.Bio,
		"search_text": user.SearchText,
	}).Error
	if err != nil {
		s.logError(opUpdateProfile, "user_update_failed", err, zap.String("user_id", userID))
		return User{}, apperr.Internal(opUpdateProfile, "user_update_failed", err)
	}
	return user, nil
}

// Search matches query against email and name parts, excluding the requester.
func (s *Service) Search(ctx context.Context, requesterID, query string) ([]User, error) {
	folded := textkey.Fold(query)
	if folded == "" {
		return []User{}, nil
	}
	var found []User
	err := s.db.WithContext(ctx).
		Where(`search_text LIKE ? ESCAPE '\'`, textkey.ContainsPattern(folded)).
		Where("id <> ?", requesterID).
		Order("LOWER(email)").
		Limit(searchLimit).
		Find(&found).Error
	if err != nil {
		s.logError(opSearch, "query_failed", err)
		return nil, apperr.Internal(opSearch, "query_failed", err)
	}
	return found, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	s.logger.Error("users service error", append(attrs, fields...)...)
}

// deriveUserID keeps a "provider:subject" session user id whole so subjects from
// different providers stay distinct users.
func deriveUserID(claims auth.SessionClaims) string {
	if raw := normalize(claims.UserID); raw != "" {
		return raw
	}
	if subject := normalize(claims.Subject); subject != "" {
		return subject
	}
	return normalizeEmail(claims.UserEmail)
}
