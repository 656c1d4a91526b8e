package server

import (
	"strings"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/moderation"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
	"github.com/gin-gonic/gin"
)

func moderationLocation(proposalID string) string {
	return "/moderation/" + proposalID
}

func (h *httpHandler) handleModerationList(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	if status == "" {
		status = string(moderation.StatusPending)
	}
	proposals, err := h.moderation.ListByStatus(c.Request.Context(), status)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, "moderation_list.html", gin.H{
		"Status":    status,
		"Proposals": proposals,
		"Statuses": []moderation.Status{
			moderation.StatusPending,
			moderation.StatusApproved,
			moderation.StatusRejected,
		},
	})
}

func (h *httpHandler) handleModerationDetail(c *gin.Context) {
	proposal, err := h.moderation.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	submitter, err := h.users.Get(c.Request.Context(), proposal.UserID)
	switch {
	case apperr.KindOf(err) == apperr.KindNotFound:
		submitter = users.User{ID: proposal.UserID, Email: proposal.UserID}
	case err != nil:
		h.fail(c, err)
		return
	}
	h.render(c, "moderation_detail.html", gin.H{
		"Proposal":  proposal,
		"Submitter": submitter,
		"Pending":   proposal.Status == moderation.StatusPending,
	})
}

func (h *httpHandler) handleModerationUpdate(c *gin.Context) {
	moderator := currentUser(c)
	proposalID := c.Param("id")
	back := moderationLocation(proposalID)

	request := moderation.UpdateRequest{
		Name:           c.PostForm("name"),
		Kind:           c.PostForm("kind"),
		CategoriesText: c.PostForm("categories"),
	}
	nutrients := []struct {
		field  string
		target **float64
	}{
		{field: "kcal", target: &request.Kcal},
		{field: "protein", target: &request.Protein},
		{field: "fat", target: &request.Fat},
		{field: "carb", target: &request.Carb},
	}
	for _, nutrient := range nutrients {
		value, ok := optionalFloat(c.PostForm(nutrient.field))
		if !ok {
			redirectWithFlash(c, back, nutrient.field+" must be a number")
			return
		}
		*nutrient.target = value
	}

	if _, err := h.moderation.Update(c.Request.Context(), moderator.ID, proposalID, request); err != nil {
		h.failOrFlash(c, err, back)
		return
	}
	redirectWithFlash(c, back, "Proposal saved.")
}

func (h *httpHandler) handleModerationApprove(c *gin.Context) {
	moderator := currentUser(c)
	proposalID := c.Param("id")
	decision, err := h.moderation.Approve(c.Request.Context(), moderator.ID, proposalID)
	if err != nil {
		h.failOrFlash(c, err, moderationLocation(proposalID))
		return
	}

	var message string
	switch {
	case decision.Outcome == moderation.OutcomeAlreadyApproved:
		message = "This proposal was already approved."
	case decision.ProductCreated:
		message = "Approved. Created " + decision.Product.Title() + "."
	default:
		message = "Approved. Merged into " + decision.Product.Title() + "."
	}
	redirectWithFlash(c, "/moderation", message)
}

func (h *httpHandler) handleModerationReject(c *gin.Context) {
	moderator := currentUser(c)
	proposalID := c.Param("id")
	decision, err := h.moderation.Reject(c.Request.Context(), moderator.ID, proposalID, c.PostForm("reason"))
	if err != nil {
		h.failOrFlash(c, err, moderationLocation(proposalID))
		return
	}

	message := "Rejected."
	if decision.Outcome == moderation.OutcomeAlreadyRejected {
		message = "This proposal was already rejected."
	}
	redirectWithFlash(c, "/moderation", message)
}
