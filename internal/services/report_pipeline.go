package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tripreport/backend/internal/metrics"
	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/storage"
)

const cleanupTimeout = 30 * time.Second

type ReportPipelineDeps struct {
	Reports ReportRepository
	Files   storage.FileStore

	// Optional collaborators.
	Pages     PageInvalidator
	Stats     StatsRecorder
	Bookmarks BookmarkCleaner
	Moderator ImageModerator
}

// ReportPipeline creates, edits and deletes reports together with their
// stored files. Uploads are rolled back when the record cannot be written.
type ReportPipeline struct {
	reports   ReportRepository
	files     storage.FileStore
	pages     PageInvalidator
	stats     StatsRecorder
	bookmarks BookmarkCleaner
	moderator ImageModerator
	now       func() time.Time
}

func NewReportPipeline(d ReportPipelineDeps) *ReportPipeline {
	return &ReportPipeline{
		reports:   d.Reports,
		files:     d.Files,
		pages:     d.Pages,
		stats:     d.Stats,
		bookmarks: d.Bookmarks,
		moderator: d.Moderator,
		now:       time.Now,
	}
}

func (p *ReportPipeline) Create(ctx context.Context, userID string, sub *models.ReportSubmission) (*models.Report, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if err := ValidateSubmission(sub, 0); err != nil {
		return nil, err
	}
	if err := p.moderate(ctx, userID, sub.Images); err != nil {
		return nil, err
	}

	saga := NewSaga("ReportPipeline")
	images, track, err := p.uploadAll(ctx, saga, sub)
	if err != nil {
		return nil, p.abort(ctx, saga, StageUploading, err)
	}

	now := p.now().UTC()
	report := newReport(userID, &sub.Form, now)
	report.Images = images
	report.TrackFile = track

	if err := p.reports.Insert(ctx, report); err != nil {
		return nil, p.abort(ctx, saga, StagePersisting, err)
	}

	log.Printf("[ReportPipeline] created report=%s user=%s images=%d track=%v", report.ID, userID, len(images), track != nil)
	p.afterWrite(ctx, report.ID, userID)
	return report, nil
}

func (p *ReportPipeline) Update(ctx context.Context, userID, reportID string, sub *models.ReportSubmission) (*models.Report, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	existing, err := p.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		log.Printf("[ReportPipeline] user=%s may not edit report=%s", userID, reportID)
		return nil, ErrUnauthorized
	}

	removed := make(map[string]bool, len(sub.Form.RemoveImages))
	for _, u := range sub.Form.RemoveImages {
		removed[strings.TrimSpace(u)] = true
	}
	var kept, dropped []models.StoredFile
	for _, img := range existing.Images {
		if removed[img.URL] {
			dropped = append(dropped, img)
		} else {
			kept = append(kept, img)
		}
	}

	if err := ValidateSubmission(sub, len(kept)); err != nil {
		return nil, err
	}
	if err := p.moderate(ctx, userID, sub.Images); err != nil {
		return nil, err
	}

	saga := NewSaga("ReportPipeline")
	images, track, err := p.uploadAll(ctx, saga, sub)
	if err != nil {
		return nil, p.abort(ctx, saga, StageUploading, err)
	}

	upd, orphaned := buildReportUpdate(existing, &sub.Form, append(kept, images...), track, p.now().UTC())
	orphaned = append(dropped, orphaned...)

	updated, err := p.reports.Update(ctx, userID, reportID, upd)
	if err != nil {
		return nil, p.abort(ctx, saga, StagePersisting, err)
	}

	log.Printf("[ReportPipeline] updated report=%s user=%s new_images=%d removed_files=%d", reportID, userID, len(images), len(orphaned))
	p.cleanup(ctx, orphaned)
	p.afterWrite(ctx, reportID, userID)
	return updated, nil
}

// Delete removes an owned report and then its files and bookmarks.
func (p *ReportPipeline) Delete(ctx context.Context, userID, reportID string) error {
	if userID == "" {
		return ErrUnauthorized
	}

	deleted, err := p.reports.Delete(ctx, userID, reportID)
	if err != nil {
		return err
	}

	files := append([]models.StoredFile{}, deleted.Images...)
	if deleted.TrackFile != nil {
		files = append(files, *deleted.TrackFile)
	}
	p.cleanup(ctx, files)

	if p.bookmarks != nil {
		if err := p.bookmarks.RemoveReportFromBookmarks(ctx, reportID); err != nil {
			log.Printf("[ReportPipeline] bookmark cleanup failed report=%s err=%v", reportID, err)
		}
	}

	log.Printf("[ReportPipeline] deleted report=%s user=%s files=%d", reportID, userID, len(files))
	p.afterWrite(ctx, reportID, deleted.UserID)
	return nil
}

func (p *ReportPipeline) moderate(ctx context.Context, userID string, images []models.UploadFile) error {
	if p.moderator == nil {
		return nil
	}
	for _, img := range images {
		if err := p.moderator.CheckImage(ctx, userID, img); err != nil {
			return err
		}
	}
	return nil
}

// uploadAll stores images in form order and then the track file. Every
// upload is recorded on saga before the next one starts.
func (p *ReportPipeline) uploadAll(ctx context.Context, saga *Saga, sub *models.ReportSubmission) ([]models.StoredFile, *models.StoredFile, error) {
	images := make([]models.StoredFile, 0, len(sub.Images))
	for _, img := range sub.Images {
		stored, err := p.upload(ctx, saga, storage.ImageFolder, img)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, *stored)
	}

	var track *models.StoredFile
	if sub.TrackFile != nil {
		stored, err := p.upload(ctx, saga, storage.TrackFolder, *sub.TrackFile)
		if err != nil {
			return nil, nil, err
		}
		track = stored
	}
	return images, track, nil
}

func (p *ReportPipeline) upload(ctx context.Context, saga *Saga, folder string, f models.UploadFile) (*models.StoredFile, error) {
	obj := storage.NewObject(folder, f.Filename, f.Data)
	up, err := p.files.Upload(ctx, obj)
	if err != nil {
		metrics.Uploads.WithLabelValues(folder, "error").Inc()
		return nil, err
	}
	metrics.Uploads.WithLabelValues(folder, "ok").Inc()

	url := up.URL
	saga.Record("delete-upload", url, func(ctx context.Context) error {
		return p.deleteByURL(ctx, url)
	})
	return &models.StoredFile{URL: url, OriginalFilename: f.Filename}, nil
}

func (p *ReportPipeline) deleteByURL(ctx context.Context, url string) error {
	publicID, resourceType, err := p.files.KeyFromURL(url)
	if err != nil {
		return err
	}
	return p.files.Delete(ctx, publicID, resourceType)
}

// abort rolls back recorded uploads and returns cause wrapped with the
// failing stage.
func (p *ReportPipeline) abort(ctx context.Context, saga *Saga, stage Stage, cause error) error {
	n := saga.Len()
	log.Printf("[ReportPipeline] %s failed, compensating %d uploads: %v", stage, n, cause)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	failed := saga.Compensate(cctx)

	return &PipelineError{Stage: stage, Err: cause, Compensated: n - failed}
}

// cleanup deletes files that are no longer referenced by any report.
func (p *ReportPipeline) cleanup(ctx context.Context, files []models.StoredFile) {
	if len(files) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, f := range files {
		if err := p.deleteByURL(cctx, f.URL); err != nil {
			metrics.CleanupFailures.Inc()
			log.Printf("[ReportPipeline] cleanup failed url=%s err=%v", f.URL, err)
		}
	}
}

func (p *ReportPipeline) afterWrite(ctx context.Context, reportID, ownerID string) {
	if p.pages != nil {
		if err := p.pages.Invalidate(ctx, ReportPaths(reportID, ownerID)...); err != nil {
			log.Printf("[ReportPipeline] page invalidation failed report=%s err=%v", reportID, err)
		}
	}
	if p.stats != nil {
		if err := p.stats.RecomputeStats(ctx, ownerID); err != nil {
			log.Printf("[ReportPipeline] stats refresh failed user=%s err=%v", ownerID, err)
		}
	}
}

func newReport(userID string, f *models.ReportForm, now time.Time) *models.Report {
	start, _ := time.Parse(models.DateLayout, f.StartDate)
	end, _ := time.Parse(models.DateLayout, f.EndDate)

	return &models.Report{
		ID:            uuid.New().String(),
		UserID:        userID,
		Title:         f.Title,
		Description:   f.Description,
		Body:          f.Body,
		ActivityTypes: f.ActivityTypes,
		Location: models.Location{
			Country:   f.Location.Country,
			Region:    f.Location.Region,
			Area:      f.Location.Area,
			Objective: f.Location.Objective,
		},
		Distance:      *f.Distance,
		ElevationGain: *f.ElevationGain,
		ElevationLoss: *f.ElevationLoss,
		Duration:      *f.Duration,
		StartDate:     start,
		EndDate:       end,
		MapURL:        f.MapURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// buildReportUpdate returns the changes for an edit and the stored files
// the edit stops referencing.
func buildReportUpdate(existing *models.Report, f *models.ReportForm, images []models.StoredFile, track *models.StoredFile, now time.Time) (models.ReportUpdate, []models.StoredFile) {
	r := newReport(existing.UserID, f, now)

	upd := models.ReportUpdate{
		Set: map[string]interface{}{
			"title":          r.Title,
			"description":    r.Description,
			"body":           r.Body,
			"activity_types": r.ActivityTypes,
			"location":       r.Location,
			"distance":       r.Distance,
			"elevation_gain": r.ElevationGain,
			"elevation_loss": r.ElevationLoss,
			"duration":       r.Duration,
			"start_date":     r.StartDate,
			"end_date":       r.EndDate,
			"updated_at":     now,
		},
	}

	if len(images) > 0 {
		upd.Set["images"] = images
	} else {
		upd.Unset = append(upd.Unset, "images")
	}

	var orphaned []models.StoredFile
	switch {
	case track != nil:
		upd.Set["gpx_kml_file"] = *track
		if existing.TrackFile != nil {
			orphaned = append(orphaned, *existing.TrackFile)
		}
	case f.RemoveTrackFile:
		upd.Unset = append(upd.Unset, "gpx_kml_file")
		if existing.TrackFile != nil {
			orphaned = append(orphaned, *existing.TrackFile)
		}
	}

	if r.MapURL == "" {
		upd.Unset = append(upd.Unset, "caltopo_url")
	} else {
		upd.Set["caltopo_url"] = r.MapURL
	}

	return upd, orphaned
}
