package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/moderation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxPhotoBytes = 5 << 20

func (h *httpHandler) handleProductList(c *gin.Context) {
	ctx := c.Request.Context()
	filter := catalog.ProductFilter{
		Query:        strings.TrimSpace(c.Query("q")),
		CategorySlug: strings.TrimSpace(c.Query("cat")),
		Page:         positiveInt(c.Query("page"), 1),
	}
	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, "products.html", gin.H{
		"Filter":     filter,
		"Page":       page,
		"Categories": categories,
	})
}

func (h *httpHandler) handleProductDetail(c *gin.Context) {
	ctx := c.Request.Context()
	product, err := h.catalog.ProductBySlug(ctx, c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	paths := make([][]catalog.Category, 0, len(product.Categories))
	for _, category := range product.Categories {
		path, err := h.catalog.CategoryPath(ctx, category.ID)
		if err != nil {
			h.fail(c, err)
			return
		}
		paths = append(paths, path)
	}
	photoAvailable, err := h.media.Exists(ctx, product.PhotoKey)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, "product.html", gin.H{
		"Product":        product,
		"CategoryPaths":  paths,
		"PhotoAvailable": photoAvailable,
	})
}

func (h *httpHandler) handleProposalForm(c *gin.Context) {
	h.render(c, "proposal_form.html", gin.H{})
}

func (h *httpHandler) handleProposalSubmit(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPhotoBytes+1<<20)

	request := moderation.SubmitRequest{
		Name:           c.PostForm("name"),
		Kind:           c.PostForm("kind"),
		CategoriesText: c.PostForm("categories"),
		Comment:        c.PostForm("comment"),
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
			redirectWithFlash(c, "/proposals/new", nutrient.field+" must be a number")
			return
		}
		*nutrient.target = value
	}

	photo, err := c.FormFile("photo")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		redirectWithFlash(c, "/proposals/new", "the photo could not be read")
		return
	case photo.Size > maxPhotoBytes:
		redirectWithFlash(c, "/proposals/new", "the photo is larger than 5 MB")
		return
	default:
		file, err := photo.Open()
		if err != nil {
			redirectWithFlash(c, "/proposals/new", "the photo could not be read")
			return
		}
		key, err := h.media.Save(ctx, "proposals", photo.Filename, file)
		_ = file.Close()
		if err != nil {
			h.failOrFlash(c, err, "/proposals/new")
			return
		}
		request.PhotoKey = key
	}

	proposal, err := h.moderation.Submit(ctx, user.ID, request)
	if err != nil {
		if deleteErr := h.media.Delete(ctx, request.PhotoKey); deleteErr != nil {
			h.logger.Warn("failed to remove photo of rejected submission", zap.String("key", request.PhotoKey), zap.Error(deleteErr))
		}
		h.failOrFlash(c, err, "/proposals/new")
		return
	}
	redirectWithFlash(c, "/products", "Thanks! \""+proposal.Title()+"\" is waiting for review.")
}
