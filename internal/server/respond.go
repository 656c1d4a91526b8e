package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	flashCookieName = "plate400_flash"
	flashMaxAge     = 60
)

// setFlash stores a one-shot message shown on the next rendered page.
func setFlash(c *gin.Context, message string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookieName, message, flashMaxAge, "/", "", false, true)
}

// takeFlash reads and clears the pending flash message.
func takeFlash(c *gin.Context) string {
	message, err := c.Cookie(flashCookieName)
	if err != nil || message == "" {
		return ""
	}
	c.SetCookie(flashCookieName, "", -1, "/", "", false, true)
	return message
}

func redirectWithFlash(c *gin.Context, location, message string) {
	if message != "" {
		setFlash(c, message)
	}
	c.Redirect(http.StatusSeeOther, location)
}

// page adds the layout fields every template expects.
func (h *httpHandler) page(c *gin.Context, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	user := currentUser(c)
	data["CurrentUser"] = user
	data["SignedIn"] = user.ID != ""
	data["IsModerator"] = sessionClaims(c).IsModerator()
	data["Flash"] = takeFlash(c)
	return data
}

func (h *httpHandler) render(c *gin.Context, name string, data gin.H) {
	c.HTML(http.StatusOK, name, h.page(c, data))
}

// fail renders the error page for err; internal failures are logged and shown generically.
func (h *httpHandler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err),
		)
	}
	h.abortWithPage(c, apperr.HTTPStatus(kind), apperr.MessageOf(err))
}

// failOrFlash turns input problems into a flash message on the redirect target and
// everything else into an error page.
func (h *httpHandler) failOrFlash(c *gin.Context, err error, location string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict:
		redirectWithFlash(c, location, apperr.MessageOf(err))
	default:
		h.fail(c, err)
	}
}

func optionalInt(raw string) (*int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, true
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, false
	}
	return &value, true
}

func optionalFloat(raw string) (*float64, bool) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if trimmed == "" {
		return nil, true
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, false
	}
	return &value, true
}

func positiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func pathWithQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}
