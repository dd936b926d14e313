package services

import (
	"context"
	"log"

	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/storage"
)

// ImageRemover drops one image reference from a stored report.
type ImageRemover interface {
	PullImage(ctx context.Context, reportID, url string) error
}

// ModerationActions re-checks images that are already published and takes
// down the ones SafeSearch flags.
type ModerationActions struct {
	Detector SafeSearchDetector
	Reports  ImageRemover
	Files    storage.FileStore
	Flags    StrikeRecorder
	Pages    PageInvalidator
}

// ReviewReport checks each image of r. Unsafe images are removed from the
// report and storage and the owner gets a strike. It returns how many
// images were taken down.
func (m *ModerationActions) ReviewReport(ctx context.Context, r *models.Report) (int, error) {
	removed := 0
	for _, img := range r.Images {
		ss, err := m.Detector.Detect(ctx, ImageFromURL(img.URL))
		if err != nil {
			return removed, err
		}
		if !ss.IsUnsafe() {
			continue
		}

		log.Printf("[moderation] published image UNSAFE report=%s url=%s", r.ID, img.URL)
		if err := m.Reports.PullImage(ctx, r.ID, img.URL); err != nil {
			return removed, err
		}
		removed++

		if publicID, rt, err := m.Files.KeyFromURL(img.URL); err == nil {
			if err := m.Files.Delete(ctx, publicID, rt); err != nil {
				log.Printf("[moderation] delete failed url=%s err=%v", img.URL, err)
			}
		}
		if m.Flags != nil {
			if _, err := m.Flags.AddStrike(ctx, r.UserID, "report:"+r.ID); err != nil {
				log.Printf("[moderation] strike failed userID=%s err=%v", r.UserID, err)
			}
		}
	}

	if removed > 0 && m.Pages != nil {
		if err := m.Pages.Invalidate(ctx, ReportPaths(r.ID, r.UserID)...); err != nil {
			log.Printf("[moderation] page invalidation failed report=%s err=%v", r.ID, err)
		}
	}
	return removed, nil
}
