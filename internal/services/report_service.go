package services

import (
	"context"

	"github.com/tripreport/backend/internal/models"
)

// ReportRepository persists reports.
type ReportRepository interface {
	Insert(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	// Update applies upd to the report only when it is owned by userID.
	Update(ctx context.Context, userID, id string, upd models.ReportUpdate) (*models.Report, error)
	// Delete removes the report only when it is owned by userID and
	// returns what was removed.
	Delete(ctx context.Context, userID, id string) (*models.Report, error)
	List(ctx context.Context, q models.ReportQuery) (*models.ReportPage, error)
	Featured(ctx context.Context, limit int) ([]models.Report, error)
	GetMany(ctx context.Context, ids []string) ([]models.Report, error)
}

// PageInvalidator drops cached renderings of the given paths.
type PageInvalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// StatsRecorder refreshes a user's aggregate report stats.
type StatsRecorder interface {
	RecomputeStats(ctx context.Context, userID string) error
}

// BookmarkCleaner forgets a deleted report in every user's bookmarks.
type BookmarkCleaner interface {
	RemoveReportFromBookmarks(ctx context.Context, reportID string) error
}

// ImageModerator rejects unsafe images before they are stored.
type ImageModerator interface {
	CheckImage(ctx context.Context, userID string, img models.UploadFile) error
}

// ReportPaths are the pages that render a report and so go stale when it
// changes.
func ReportPaths(reportID, ownerID string) []string {
	return []string{
		"/reports/" + reportID,
		"/users/" + ownerID,
		"/reports",
		"/reports/featured",
		"/",
	}
}
