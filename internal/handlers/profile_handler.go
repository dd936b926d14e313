package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripreport/backend/internal/middleware"
	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

// UserStore is the user persistence the HTTP layer needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetOrCreate(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, req *models.UpdateProfileRequest) (*models.User, error)
	UpsertIdentity(ctx context.Context, iu models.IdentityUser) error
	AddBookmark(ctx context.Context, userID, reportID string) error
	RemoveBookmark(ctx context.Context, userID, reportID string) error
	Bookmarks(ctx context.Context, userID string) ([]string, error)
}

// AccountDeleter removes a user and everything they own.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, userID string) (*services.DeleteAccountResult, error)
}

type ProfileHandler struct {
	users    UserStore
	reports  services.ReportRepository
	accounts AccountDeleter
	pages    services.PageInvalidator
}

func NewProfileHandler(users UserStore, reports services.ReportRepository, accounts AccountDeleter, pages services.PageInvalidator) *ProfileHandler {
	return &ProfileHandler{users: users, reports: reports, accounts: accounts, pages: pages}
}

func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	user, err := h.users.GetOrCreate(ctx, userID)
	if err != nil {
		writeServiceError(w, "GetMe", err, "Failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(user))
}

func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		req.DisplayName = &name
	}
	if req.Bio != nil {
		bio := strings.TrimSpace(*req.Bio)
		req.Bio = &bio
	}
	if fields := req.Validate(); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(fields))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, err := h.users.GetOrCreate(ctx, userID); err != nil {
		writeServiceError(w, "UpdateMe", err, "Failed to update profile")
		return
	}
	user, err := h.users.UpdateProfile(ctx, userID, &req)
	if err != nil {
		writeServiceError(w, "UpdateMe", err, "Failed to update profile")
		return
	}
	if h.pages != nil {
		if err := h.pages.Invalidate(ctx, "/users/"+userID); err != nil {
			log.Printf("[UpdateMe] user=%s page invalidation error=%v", userID, err)
		}
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(user))
}

// DeleteMe deletes the caller's account together with their reports,
// messages and stored files.
func (h *ProfileHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), services.AccountTimeout)
	defer cancel()

	result, err := h.accounts.DeleteAccount(ctx, userID)
	if err != nil {
		writeServiceError(w, "DeleteMe", err, "Failed to delete account")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(result))
}

// GetPublicProfile returns the public view of a user and a page of their reports.
func (h *ProfileHandler) GetPublicProfile(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	user, err := h.users.GetByID(ctx, targetID)
	if err != nil {
		writeServiceError(w, "GetPublicProfile", err, "Failed to load profile")
		return
	}

	page, err := h.reports.List(ctx, models.ReportQuery{
		UserID: targetID,
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	})
	if err != nil {
		writeServiceError(w, "GetPublicProfile", err, "Failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.PublicProfile{
		ID:           user.ID,
		DisplayName:  user.DisplayName,
		Bio:          user.Bio,
		ProfileImage: user.ProfileImage,
		Stats:        user.Stats,
		Reports:      page,
		MemberSince:  user.CreatedAt,
	}))
}
