package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/auth"
	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/challenge"
	"github.com/MarcoPoloResearchLab/plate400/internal/database/databasetest"
	"github.com/MarcoPoloResearchLab/plate400/internal/diary"
	"github.com/MarcoPoloResearchLab/plate400/internal/media"
	"github.com/MarcoPoloResearchLab/plate400/internal/moderation"
	"github.com/MarcoPoloResearchLab/plate400/internal/social"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "server-test-secret"
	testCookieName    = "app_session"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type testApp struct {
	handler    http.Handler
	issuer     *auth.SessionIssuer
	users      *users.Service
	catalog    *catalog.Service
	diary      *diary.Service
	moderation *moderation.Service
	social     *social.Service
	media      *media.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := databasetest.Open(t)
	clock := func() time.Time { return testNow }
	logger := zap.NewNop()

	usersService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock, Logger: logger})
	require.NoError(t, err)
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		IDProvider: &databasetest.SequenceIDs{Prefix: "id"},
		Logger:     logger,
	})
	require.NoError(t, err)
	challengeService, err := challenge.NewService(challenge.ServiceConfig{Database: db, Clock: clock, Logger: logger})
	require.NoError(t, err)
	socialService, err := social.NewService(social.ServiceConfig{
		Database:   db,
		IDProvider: &databasetest.SequenceIDs{Prefix: "event"},
		Clock:      clock,
		Logger:     logger,
	})
	require.NoError(t, err)
	diaryService, err := diary.NewService(diary.ServiceConfig{
		Database:   db,
		IDProvider: &databasetest.SequenceIDs{Prefix: "entry"},
		Challenges: challengeService,
		Events:     socialService,
		Clock:      clock,
		Logger:     logger,
	})
	require.NoError(t, err)
	moderationService, err := moderation.NewService(moderation.ServiceConfig{
		Database:   db,
		IDProvider: &databasetest.SequenceIDs{Prefix: "proposal"},
		Catalog:    catalogService,
		Clock:      clock,
		Logger:     logger,
	})
	require.NoError(t, err)
	store, err := media.OpenStore(context.Background(), media.StoreConfig{
		BucketURL:  "mem://",
		IDProvider: &databasetest.SequenceIDs{Prefix: "photo"},
		Logger:     logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
		Clock:         clock,
	})
	require.NoError(t, err)
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Clock:         clock,
	})
	require.NoError(t, err)

	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: validator,
		Users:            usersService,
		Catalog:          catalogService,
		Challenges:       challengeService,
		Diary:            diaryService,
		Moderation:       moderationService,
		Social:           socialService,
		Media:            store,
		Logger:           logger,
	})
	require.NoError(t, err)

	return &testApp{
		handler:    handler,
		issuer:     issuer,
		users:      usersService,
		catalog:    catalogService,
		diary:      diaryService,
		moderation: moderationService,
		social:     socialService,
		media:      store,
	}
}

// session mints a cookie for a TAuth-style "provider:id" user id.
func (a *testApp) session(t *testing.T, userID, email string, roles ...string) *http.Cookie {
	t.Helper()
	token, _, err := a.issuer.Issue(auth.SessionIdentity{
		UserID: "google:" + userID,
		Email:  email,
		Roles:  roles,
	})
	require.NoError(t, err)
	return &http.Cookie{Name: testCookieName, Value: token}
}

func (a *testApp) get(t *testing.T, target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	return a.serve(request, cookie)
}

func (a *testApp) postForm(t *testing.T, target string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.serve(request, cookie)
}

func (a *testApp) serve(request *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	a.handler.ServeHTTP(recorder, request)
	return recorder
}

func flashOf(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == flashCookieName && cookie.MaxAge > 0 {
			value, err := url.QueryUnescape(cookie.Value)
			require.NoError(t, err)
			return value
		}
	}
	return ""
}

func (a *testApp) createProduct(t *testing.T, name, categories string) catalog.Product {
	t.Helper()
	product, _, err := a.catalog.CreateProduct(context.Background(), catalog.ProductSeed{Name: name}, categories)
	require.NoError(t, err)
	return product
}
