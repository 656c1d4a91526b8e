package server

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/auth"
	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/challenge"
	"github.com/MarcoPoloResearchLab/plate400/internal/diary"
	"github.com/MarcoPoloResearchLab/plate400/internal/media"
	"github.com/MarcoPoloResearchLab/plate400/internal/moderation"
	"github.com/MarcoPoloResearchLab/plate400/internal/social"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingDomainService    = errors.New("catalog, challenge, diary, moderation and social services are required")
	errMissingMediaStore       = errors.New("media store dependency required")
)

// SessionValidator yields the TAuth claims carried by a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	Users            *users.Service
	Catalog          *catalog.Service
	Challenges       *challenge.Service
	Diary            *diary.Service
	Moderation       *moderation.Service
	Social           *social.Service
	Media            *media.Store
	AllowedOrigins   []string
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Catalog == nil || deps.Challenges == nil || deps.Diary == nil || deps.Moderation == nil || deps.Social == nil {
		return nil, errMissingDomainService
	}
	if deps.Media == nil {
		return nil, errMissingMediaStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.SetHTMLTemplate(templates)

	handler := &httpHandler{
		sessions:   deps.SessionValidator,
		users:      deps.Users,
		catalog:    deps.Catalog,
		challenges: deps.Challenges,
		diary:      deps.Diary,
		moderation: deps.Moderation,
		social:     deps.Social,
		media:      deps.Media,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/", func(c *gin.Context) { c.Redirect(http.StatusSeeOther, "/diary") })
	protected.GET("/media/*key", handler.handleMedia)

	protected.GET("/diary", handler.handleDiaryDay)
	protected.GET("/diary/month", handler.handleDiaryMonth)
	protected.POST("/diary/join", handler.handleDiaryJoin)
	protected.POST("/diary/entries", handler.handleDiaryAdd)
	protected.POST("/diary/entries/:id/delete", handler.handleDiaryDelete)

	protected.GET("/products", handler.handleProductList)
	protected.GET("/products/:slug", handler.handleProductDetail)

	protected.GET("/proposals/new", handler.handleProposalForm)
	protected.POST("/proposals", handler.handleProposalSubmit)

	moderators := protected.Group("/moderation")
	moderators.Use(handler.requireModerator)
	moderators.GET("", handler.handleModerationList)
	moderators.GET("/:id", handler.handleModerationDetail)
	moderators.POST("/:id", handler.handleModerationUpdate)
	moderators.POST("/:id/approve", handler.handleModerationApprove)
	moderators.POST("/:id/reject", handler.handleModerationReject)

	protected.GET("/social/search", handler.handleSocialSearch)
	protected.GET("/social/following", handler.handleSocialFollowing)
	protected.GET("/social/feed", handler.handleSocialFeed)
	protected.POST("/social/follow/:id", handler.handleSocialFollow)
	protected.POST("/social/unfollow/:id", handler.handleSocialUnfollow)

	protected.GET("/profile", handler.handleProfile)
	protected.POST("/profile", handler.handleProfileUpdate)

	return router, nil
}

type httpHandler struct {
	sessions   SessionValidator
	users      *users.Service
	catalog    *catalog.Service
	challenges *challenge.Service
	diary      *diary.Service
	moderation *moderation.Service
	social     *social.Service
	media      *media.Store
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "X-TAuth-Tenant"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"add":  func(a, b int) int { return a + b },
		"dict": templateDict,
	}).ParseFS(templateFS, "templates/*.html")
}

// templateDict builds a map from alternating keys and values for passing to nested templates.
func templateDict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict expects key and value pairs")
	}
	values := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, errors.New("dict keys must be strings")
		}
		values[key] = pairs[i+1]
	}
	return values, nil
}
