package social_test

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/civil"
	"github.com/MarcoPoloResearchLab/plate400/internal/database/databasetest"
	"github.com/MarcoPoloResearchLab/plate400/internal/social"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type socialFixture struct {
	db      *gorm.DB
	service *social.Service
	now     time.Time
}

func newSocialFixture(t *testing.T) *socialFixture {
	t.Helper()
	fixture := &socialFixture{
		db:  databasetest.Open(t),
		now: time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC),
	}
	service, err := social.NewService(social.ServiceConfig{
		Database:   fixture.db,
		IDProvider: &databasetest.SequenceIDs{Prefix: "event"},
		Clock:      func() time.Time { return fixture.now },
	})
	require.NoError(t, err)
	fixture.service = service

	for _, user := range []users.User{
		{ID: "ana", Email: "ana@example.com", FirstName: "Ana"},
		{ID: "boris", Email: "boris@example.com", FirstName: "Борис", LastName: "Петров"},
		{ID: "cleo", Email: "CLEO@example.com", FirstName: "Cleo"},
	} {
		user.SearchText = users.SearchKey(user)
		require.NoError(t, fixture.db.Create(&user).Error)
	}
	return fixture
}

func (f *socialFixture) record(t *testing.T, userID, productName string) {
	t.Helper()
	f.now = f.now.Add(time.Minute)
	err := f.service.RecordEntryCreated(f.db, userID, catalog.Product{ID: "p-" + productName, Name: productName}, civil.In(f.now, time.UTC))
	require.NoError(t, err)
}

func productNames(items []social.FeedItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Event.Payload.ProductName)
	}
	return names
}

func TestFollowRejectsSelfAndUnknownUsers(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()

	err := fixture.service.Follow(ctx, "ana", "ana")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Equal(t, "self-follow", apperr.MessageOf(err))

	err = fixture.service.Follow(ctx, "ana", "ghost")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFollowIsIdempotentAndUnfollowToleratesMissingEdge(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.service.Follow(ctx, "ana", "boris"))
	require.NoError(t, fixture.service.Follow(ctx, "ana", "boris"))

	var edges int64
	require.NoError(t, fixture.db.Model(&social.Follow{}).Count(&edges).Error)
	require.EqualValues(t, 1, edges)

	require.NoError(t, fixture.service.Unfollow(ctx, "ana", "boris"))
	require.NoError(t, fixture.service.Unfollow(ctx, "ana", "boris"))
	require.NoError(t, fixture.db.Model(&social.Follow{}).Count(&edges).Error)
	require.Zero(t, edges)
}

func TestFollowingIsOrderedByEmail(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.service.Follow(ctx, "ana", "cleo"))
	require.NoError(t, fixture.service.Follow(ctx, "ana", "boris"))

	followees, err := fixture.service.Following(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, followees, 2)
	require.Equal(t, "boris", followees[0].ID)
	require.Equal(t, "cleo", followees[1].ID)

	set, err := fixture.service.FollowingSet(ctx, "ana")
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"boris": true, "cleo": true}, set)
}

func TestFeedScopes(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.service.Follow(ctx, "ana", "boris"))
	fixture.record(t, "ana", "apple")
	fixture.record(t, "boris", "pear")
	fixture.record(t, "cleo", "plum")
	fixture.record(t, "boris", "kiwi")

	all, err := fixture.service.Feed(ctx, "ana", social.ScopeAll, "")
	require.NoError(t, err)
	require.Equal(t, []string{"kiwi", "pear", "apple"}, productNames(all))
	require.Equal(t, "boris@example.com", all[0].Owner.Email)

	subs, err := fixture.service.Feed(ctx, "ana", social.ScopeSubscriptions, "")
	require.NoError(t, err)
	require.Equal(t, []string{"kiwi", "pear"}, productNames(subs))

	fallback, err := fixture.service.Feed(ctx, "ana", social.ParseScope("everything"), "")
	require.NoError(t, err)
	require.Equal(t, productNames(all), productNames(fallback))
}

func TestFeedQueryMatchesOwnerCaseInsensitively(t *testing.T) {
	fixture := newSocialFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.service.Follow(ctx, "ana", "boris"))
	require.NoError(t, fixture.service.Follow(ctx, "ana", "cleo"))
	fixture.record(t, "boris", "pear")
	fixture.record(t, "cleo", "plum")

	byName, err := fixture.service.Feed(ctx, "ana", social.ScopeAll, "ПЕТРОВ")
	require.NoError(t, err)
	require.Equal(t, []string{"pear"}, productNames(byName))

	byEmail, err := fixture.service.Feed(ctx, "ana", social.ScopeSubscriptions, "cleo@EXAMPLE")
	require.NoError(t, err)
	require.Equal(t, []string{"plum"}, productNames(byEmail))

	none, err := fixture.service.Feed(ctx, "ana", social.ScopeAll, "zzz")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestFeedIsCappedAtOneHundred(t *testing.T) {
	fixture := newSocialFixture(t)

	for index := 0; index < 105; index++ {
		fixture.record(t, "ana", "apple")
	}

	feed, err := fixture.service.Feed(context.Background(), "ana", social.ScopeAll, "")
	require.NoError(t, err)
	require.Len(t, feed, 100)
	require.True(t, feed[0].Event.CreatedAt.After(feed[99].Event.CreatedAt))
}
