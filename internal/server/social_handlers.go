package server

import (
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/plate400/internal/social"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"github.com/gin-gonic/gin"
)

// returnLocation keeps follow buttons on the page they were pressed from.
func returnLocation(c *gin.Context, fallback string) string {
	next := strings.TrimSpace(c.PostForm("next"))
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return fallback
	}
	return next
}

func (h *httpHandler) handleSocialSearch(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()
	query := strings.TrimSpace(c.Query("q"))

	found, err := h.users.Search(ctx, user.ID, query)
	if err != nil {
		h.fail(c, err)
		return
	}
	following, err := h.social.FollowingSet(ctx, user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, "social_search.html", gin.H{
		"Query":     query,
		"Results":   found,
		"Following": following,
		"Next":      pathWithQuery("/social/search", url.Values{"q": []string{query}}),
	})
}

func (h *httpHandler) handleSocialFollowing(c *gin.Context) {
	user := currentUser(c)
	followees, err := h.social.Following(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, "social_following.html", gin.H{
		"Followees": followees,
	})
}

func (h *httpHandler) handleSocialFeed(c *gin.Context) {
	user := currentUser(c)
	rawScope := c.Query("scope")
	if rawScope == "" {
		rawScope = c.Query("filter")
	}
	scope := social.ParseScope(rawScope)
	query := strings.TrimSpace(c.Query("q"))

	items, err := h.social.Feed(c.Request.Context(), user.ID, scope, query)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, "social_feed.html", gin.H{
		"Scope":     string(scope),
		"Query":     query,
		"Items":     items,
		"ScopeAll":  string(social.ScopeAll),
		"ScopeSubs": string(social.ScopeSubscriptions),
	})
}

func (h *httpHandler) handleSocialFollow(c *gin.Context) {
	user := currentUser(c)
	back := returnLocation(c, "/social/following")
	if err := h.social.Follow(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		h.failOrFlash(c, err, back)
		return
	}
	redirectWithFlash(c, back, "Subscribed.")
}

func (h *httpHandler) handleSocialUnfollow(c *gin.Context) {
	user := currentUser(c)
	back := returnLocation(c, "/social/following")
	if err := h.social.Unfollow(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		h.failOrFlash(c, err, back)
		return
	}
	redirectWithFlash(c, back, "Unsubscribed.")
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	h.render(c, "profile.html", gin.H{
		"Profile": currentUser(c),
	})
}

func (h *httpHandler) handleProfileUpdate(c *gin.Context) {
	user := currentUser(c)
	_, err := h.users.UpdateProfile(c.Request.Context(), user.ID, users.ProfileUpdate{
		FirstName:  c.PostForm("first_name"),
		MiddleName: c.PostForm("middle_name"),
		LastName:   c.PostForm("last_name"),
		Bio:        c.PostForm("bio"),
	})
	if err != nil {
		h.failOrFlash(c, err, "/profile")
		return
	}
	redirectWithFlash(c, "/profile", "Profile saved.")
}
