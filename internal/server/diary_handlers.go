package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/civil"
	"github.com/MarcoPoloResearchLab/plate400/internal/diary"
	"github.com/gin-gonic/gin"
)

func diaryLocation(date civil.Date) string {
	return pathWithQuery("/diary", url.Values{"date": []string{date.String()}})
}

func (h *httpHandler) handleDiaryDay(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	// A malformed date falls back to today.
	date := h.diary.Today()
	if parsed, err := civil.Parse(c.Query("date")); err == nil {
		date = parsed
	}

	entries, err := h.diary.ListEntriesForDate(ctx, user.ID, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	progress, err := h.challenges.Progress(ctx, user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	_, joined, err := h.challenges.Get(ctx, user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	var candidates []catalog.Product
	if query != "" {
		found, err := h.catalog.ListProducts(ctx, catalog.ProductFilter{Query: query})
		if err != nil {
			h.fail(c, err)
			return
		}
		candidates = found.Products
	}

	h.render(c, "diary.html", gin.H{
		"Date":       date,
		"PrevDate":   date.AddDays(-1),
		"NextDate":   date.AddDays(1),
		"Entries":    entries,
		"Progress":   progress,
		"Joined":     joined,
		"Query":      query,
		"Candidates": candidates,
	})
}

func (h *httpHandler) handleDiaryMonth(c *gin.Context) {
	user := currentUser(c)
	today := h.diary.Today()
	year := positiveInt(c.Query("year"), today.Year())
	month := today.Month()
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		month = time.Month(positiveInt(raw, 0))
	}

	grid, err := h.diary.MonthGrid(c.Request.Context(), user.ID, year, month)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, "month.html", gin.H{
		"Grid":  grid,
		"Today": today,
		"Weekdays": []string{
			"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun",
		},
	})
}

func (h *httpHandler) handleDiaryJoin(c *gin.Context) {
	user := currentUser(c)
	if _, err := h.challenges.Ensure(c.Request.Context(), user.ID); err != nil {
		h.fail(c, err)
		return
	}
	redirectWithFlash(c, "/diary", "Your challenge has started. Good luck!")
}

func (h *httpHandler) handleDiaryAdd(c *gin.Context) {
	user := currentUser(c)
	back := "/diary"
	if raw := strings.TrimSpace(c.PostForm("date")); raw != "" {
		back = pathWithQuery("/diary", url.Values{"date": []string{raw}})
	}

	amount, ok := optionalInt(c.PostForm("amount_grams"))
	if !ok {
		redirectWithFlash(c, back, "invalid amount")
		return
	}

	result, err := h.diary.AddEntry(c.Request.Context(), diary.AddEntryRequest{
		UserID:      user.ID,
		ProductID:   c.PostForm("product_id"),
		Date:        c.PostForm("date"),
		AmountGrams: amount,
		Note:        c.PostForm("note"),
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			redirectWithFlash(c, back, apperr.MessageOf(err))
			return
		}
		h.failOrFlash(c, err, back)
		return
	}
	if result.AlreadyLogged {
		redirectWithFlash(c, diaryLocation(result.Date), "This product is already logged for that day.")
		return
	}
	redirectWithFlash(c, diaryLocation(result.Date), "Added "+result.Entry.Product.Title()+".")
}

func (h *httpHandler) handleDiaryDelete(c *gin.Context) {
	user := currentUser(c)
	back := "/diary"
	if raw := strings.TrimSpace(c.PostForm("date")); raw != "" {
		back = pathWithQuery("/diary", url.Values{"date": []string{raw}})
	}
	if err := h.diary.DeleteEntry(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	redirectWithFlash(c, back, "Entry removed.")
}

func (h *httpHandler) handleMedia(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	reader, err := h.media.Open(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer reader.Close()
	c.Header("Cache-Control", "private, max-age=86400")
	c.DataFromReader(http.StatusOK, reader.Size(), reader.ContentType(), reader, nil)
}
