package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripreport/backend/internal/middleware"
	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

type BookmarkHandler struct {
	users   UserStore
	reports services.ReportRepository
}

func NewBookmarkHandler(users UserStore, reports services.ReportRepository) *BookmarkHandler {
	return &BookmarkHandler{users: users, reports: reports}
}

// List returns the caller's bookmarked reports in bookmark order. Reports
// that no longer exist are skipped.
func (h *BookmarkHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ids, err := h.users.Bookmarks(ctx, userID)
	if err != nil {
		writeServiceError(w, "ListBookmarks", err, "Failed to fetch bookmarks")
		return
	}
	reports := []models.Report{}
	if len(ids) > 0 {
		reports, err = h.reports.GetMany(ctx, ids)
		if err != nil {
			writeServiceError(w, "ListBookmarks", err, "Failed to fetch bookmarks")
			return
		}
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(reports))
}

func (h *BookmarkHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	reportID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, err := h.reports.GetByID(ctx, reportID); err != nil {
		writeServiceError(w, "AddBookmark", err, "Failed to add bookmark")
		return
	}
	if err := h.users.AddBookmark(ctx, userID, reportID); err != nil {
		writeServiceError(w, "AddBookmark", err, "Failed to add bookmark")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"reportId":   reportID,
		"bookmarked": true,
	}))
}

func (h *BookmarkHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	reportID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.users.RemoveBookmark(ctx, userID, reportID); err != nil {
		writeServiceError(w, "RemoveBookmark", err, "Failed to remove bookmark")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"reportId":   reportID,
		"bookmarked": false,
	}))
}
