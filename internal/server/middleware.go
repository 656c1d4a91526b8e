package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/auth"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userContextKey   = "plate400_user"
	claimsContextKey = "plate400_claims"
)

// authorizeRequest resolves the session cookie into a stored user.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		h.abortWithPage(c, http.StatusUnauthorized, "Please sign in to continue.")
		return
	}

	user, err := h.users.Resolve(c.Request.Context(), claims)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindInternal {
			h.logger.Error("user resolution failed", zap.String("user_id", claims.UserID), zap.Error(err))
		}
		h.abortWithPage(c, apperr.HTTPStatus(kind), apperr.MessageOf(err))
		return
	}

	c.Set(claimsContextKey, claims)
	c.Set(userContextKey, user)
	c.Next()
}

// requireModerator lets only moderator or admin sessions through.
func (h *httpHandler) requireModerator(c *gin.Context) {
	if !sessionClaims(c).IsModerator() {
		h.abortWithPage(c, http.StatusForbidden, "Only moderators can review proposals.")
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) users.User {
	if value, ok := c.Get(userContextKey); ok {
		if user, ok := value.(users.User); ok {
			return user
		}
	}
	return users.User{}
}

func sessionClaims(c *gin.Context) auth.SessionClaims {
	if value, ok := c.Get(claimsContextKey); ok {
		if claims, ok := value.(auth.SessionClaims); ok {
			return claims
		}
	}
	return auth.SessionClaims{}
}

func (h *httpHandler) abortWithPage(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", h.page(c, gin.H{
		"Status":  status,
		"Message": message,
	}))
	c.Abort()
}
