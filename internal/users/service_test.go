package users

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clock func() time.Time) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:users-"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveKeepsProviderScopedIDAndCreatesOnce(t *testing.T) {
	service, db := newTestService(t, func() time.Time { return time.Unix(1, 0) })
	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserEmail:       " User@Example.com ",
		UserDisplayName: "Ada King Lovelace",
	}

	user, err := service.Resolve(context.Background(), claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.ID != "google:12345" {
		t.Fatalf("expected provider-scoped user id, got %q", user.ID)
	}
	if user.Email != "user@example.com" {
		t.Fatalf("expected lower-cased email, got %q", user.Email)
	}
	if user.FirstName != "Ada" || user.MiddleName != "King" || user.LastName != "Lovelace" {
		t.Fatalf("unexpected name split: %+v", user)
	}

	if _, err := service.Resolve(context.Background(), claims); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single user record, got %d", count)
	}
}

func TestResolveSeparatesSameSubjectFromDifferentProviders(t *testing.T) {
	service, db := newTestService(t, nil)
	ctx := context.Background()

	google, err := service.Resolve(ctx, auth.SessionClaims{UserID: "google:42", UserEmail: "g@example.com"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	github, err := service.Resolve(ctx, auth.SessionClaims{UserID: "github:42", UserEmail: "gh@example.com"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if google.ID == github.ID {
		t.Fatalf("expected distinct users, both resolved to %q", google.ID)
	}
	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two user records, got %d", count)
	}
}

func TestResolveRefreshesChangedEmail(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	service, _ := newTestService(t, func() time.Time { return now })
	ctx := context.Background()

	if _, err := service.Resolve(ctx, auth.SessionClaims{UserID: "u1", UserEmail: "old@example.com"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	now = now.Add(time.Hour)
	if _, err := service.Resolve(ctx, auth.SessionClaims{UserID: "u1", UserEmail: "New@Example.com"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	stored, err := service.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Email != "new@example.com" || stored.SearchText != "new@example.com" {
		t.Fatalf("expected refreshed email, got %+v", stored)
	}
	if !stored.LastSeenAt.Equal(now) {
		t.Fatalf("expected last seen %v, got %v", now, stored.LastSeenAt)
	}
}

func TestResolveRejectsMissingIdentityAndTakenEmail(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := service.Resolve(ctx, auth.SessionClaims{UserID: "u1"})
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	if _, err := service.Resolve(ctx, auth.SessionClaims{UserID: "u1", UserEmail: "shared@example.com"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	_, err = service.Resolve(ctx, auth.SessionClaims{UserID: "u2", UserEmail: "SHARED@example.com"})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for a taken email, got %v", err)
	}
}

func TestUpdateProfileAndSearch(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	for _, claims := range []auth.SessionClaims{
		{UserID: "ana", UserEmail: "ana@example.com"},
		{UserID: "boris", UserEmail: "boris@example.com"},
		{UserID: "bella", UserEmail: "bella@example.com"},
	} {
		if _, err := service.Resolve(ctx, claims); err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
	}

	updated, err := service.UpdateProfile(ctx, "boris", ProfileUpdate{FirstName: " Борис ", LastName: "Петров", Bio: "likes pears"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.FullName() != "Борис Петров" {
		t.Fatalf("unexpected full name %q", updated.FullName())
	}

	found, err := service.Search(ctx, "ana", "ПЕТРОВ")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != "boris" {
		t.Fatalf("expected boris by last name, got %+v", found)
	}

	found, err = service.Search(ctx, "bella", "b")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != "boris" {
		t.Fatalf("expected the requester to be excluded, got %+v", found)
	}

	found, err = service.Search(ctx, "ana", "  ")
	if err != nil || len(found) != 0 {
		t.Fatalf("expected empty query to match nothing, got %+v (%v)", found, err)
	}

	_, err = service.UpdateProfile(ctx, "ghost", ProfileUpdate{FirstName: "Nobody"})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDisplayNameFallsBackToEmail(t *testing.T) {
	user := User{Email: "ana@example.com"}
	if user.DisplayName() != "ana@example.com" {
		t.Fatalf("unexpected display name %q", user.DisplayName())
	}
	user.FirstName = "Ana"
	user.LastName = "Lima"
	if user.DisplayName() != "Ana Lima" {
		t.Fatalf("unexpected display name %q", user.DisplayName())
	}
}

func TestSearchOrdersEmailsIgnoringCase(t *testing.T) {
	service, db := newTestService(t, nil)
	ctx := context.Background()

	for _, user := range []User{
		{ID: "cleo", Email: "CLEO@example.com"},
		{ID: "boris", Email: "boris@example.com"},
		{ID: "ana", Email: "ana@example.com"},
	} {
		user.SearchText = SearchKey(user)
		if err := db.Create(&user).Error; err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	found, err := service.Search(ctx, "ana", "example")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 2 || found[0].ID != "boris" || found[1].ID != "cleo" {
		t.Fatalf("expected boris before cleo, got %+v", found)
	}
}
