package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripreport/backend/internal/middleware"
	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

const (
	featuredLimit = 6
	submitTimeout = 2 * time.Minute
)

// ReportSubmitter runs the create, edit and delete pipeline.
type ReportSubmitter interface {
	Create(ctx context.Context, userID string, sub *models.ReportSubmission) (*models.Report, error)
	Update(ctx context.Context, userID, reportID string, sub *models.ReportSubmission) (*models.Report, error)
	Delete(ctx context.Context, userID, reportID string) error
}

type ReportHandler struct {
	reports   services.ReportRepository
	pipeline  ReportSubmitter
	maxSizeMB int64
}

func NewReportHandler(reports services.ReportRepository, pipeline ReportSubmitter, maxSizeMB int64) *ReportHandler {
	return &ReportHandler{
		reports:   reports,
		pipeline:  pipeline,
		maxSizeMB: maxSizeMB,
	}
}

func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.ReportQuery{
		Search:       strings.TrimSpace(q.Get("q")),
		ActivityType: strings.TrimSpace(q.Get("activityType")),
		Country:      strings.TrimSpace(q.Get("country")),
		Page:         queryInt(r, "page"),
		Limit:        queryInt(r, "limit"),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	page, err := h.reports.List(ctx, query)
	if err != nil {
		writeServiceError(w, "ListReports", err, "Failed to fetch reports")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(page))
}

func (h *ReportHandler) Featured(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	reports, err := h.reports.Featured(ctx, featuredLimit)
	if err != nil {
		writeServiceError(w, "FeaturedReports", err, "Failed to fetch reports")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(reports))
}

func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	report, err := h.reports.GetByID(ctx, id)
	if err != nil {
		writeServiceError(w, "GetReport", err, "Failed to fetch report")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(report))
}

func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	sub, ok := h.parse(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()

	report, err := h.pipeline.Create(ctx, userID, sub)
	if err != nil {
		writeServiceError(w, "CreateReport", err, "Failed to create report")
		return
	}

	redirect := "/reports/" + report.ID
	w.Header().Set("Location", redirect)
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(models.SubmitReportResponse{
		Report:   report,
		Redirect: redirect,
	}))
}

func (h *ReportHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	id := chi.URLParam(r, "id")

	sub, ok := h.parse(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()

	report, err := h.pipeline.Update(ctx, userID, id, sub)
	if err != nil {
		writeServiceError(w, "UpdateReport", err, "Failed to update report")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.SubmitReportResponse{
		Report:   report,
		Redirect: "/reports/" + report.ID,
	}))
}

func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.pipeline.Delete(ctx, userID, id); err != nil {
		writeServiceError(w, "DeleteReport", err, "Failed to delete report")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"message": "Report deleted successfully"}))
}

func (h *ReportHandler) parse(w http.ResponseWriter, r *http.Request) (*models.ReportSubmission, bool) {
	sub, err := parseReportSubmission(w, r, h.maxSizeMB*1024*1024)
	if errors.Is(err, errRequestTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, models.NewErrorResponse("Request too large"))
		return nil, false
	}
	if err != nil {
		writeServiceError(w, "ParseReportForm", err, "Failed to read form")
		return nil, false
	}
	return sub, true
}
