package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/storage"
)

const fakeFilesHost = "https://files.test/"

type deleteCall struct {
	PublicID     string
	ResourceType string
}

type fakeFiles struct {
	mu         sync.Mutex
	uploads    []storage.Object
	urls       []string
	deletes    []deleteCall
	failOnCall int // 1-based upload index that fails, 0 for never
	deleteErr  map[string]error
}

func (f *fakeFiles) Upload(_ context.Context, obj storage.Object) (*storage.Uploaded, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnCall > 0 && len(f.uploads)+1 == f.failOnCall {
		f.uploads = append(f.uploads, obj)
		return nil, errors.New("storage unavailable")
	}
	f.uploads = append(f.uploads, obj)
	id := obj.Folder + "/" + obj.Key
	url := fakeFilesHost + id
	f.urls = append(f.urls, url)
	return &storage.Uploaded{URL: url, PublicID: id, ResourceType: obj.ResourceType}, nil
}

func (f *fakeFiles) Delete(_ context.Context, publicID, resourceType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{PublicID: publicID, ResourceType: resourceType})
	return f.deleteErr[publicID]
}

func (f *fakeFiles) KeyFromURL(url string) (string, string, error) {
	if !strings.HasPrefix(url, fakeFilesHost) {
		return "", "", storage.ErrUnrecognizedURL
	}
	id := strings.TrimPrefix(url, fakeFilesHost)
	if strings.HasPrefix(id, storage.TrackFolder+"/") {
		return id, storage.ResourceRaw, nil
	}
	return id, storage.ResourceImage, nil
}

func (f *fakeFiles) deletedIDs() []string {
	out := make([]string, 0, len(f.deletes))
	for _, d := range f.deletes {
		out = append(out, d.PublicID)
	}
	return out
}

type fakeReports struct {
	mu        sync.Mutex
	reports   map[string]*models.Report
	insertErr error
	updateErr error
	lastUpd   *models.ReportUpdate
	calls     int
}

func newFakeReports(existing ...*models.Report) *fakeReports {
	f := &fakeReports{reports: make(map[string]*models.Report)}
	for _, r := range existing {
		f.reports[r.ID] = r
	}
	return f
}

func (f *fakeReports) Insert(_ context.Context, r *models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *r
	f.reports[r.ID] = &cp
	return nil
}

func (f *fakeReports) GetByID(_ context.Context, id string) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r, ok := f.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReports) Update(_ context.Context, userID, id string, upd models.ReportUpdate) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastUpd = &upd
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	r, ok := f.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	if r.UserID != userID {
		return nil, ErrUnauthorized
	}
	applyReportUpdate(r, upd)
	cp := *r
	return &cp, nil
}

func (f *fakeReports) Delete(_ context.Context, userID, id string) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r, ok := f.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	if r.UserID != userID {
		return nil, ErrUnauthorized
	}
	delete(f.reports, id)
	return r, nil
}

func (f *fakeReports) List(_ context.Context, q models.ReportQuery) (*models.ReportPage, error) {
	return &models.ReportPage{Page: q.Page, Limit: q.Limit}, nil
}

func (f *fakeReports) Featured(context.Context, int) ([]models.Report, error) {
	return nil, nil
}

func (f *fakeReports) GetMany(_ context.Context, ids []string) ([]models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Report
	for _, id := range ids {
		if r, ok := f.reports[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func applyReportUpdate(r *models.Report, upd models.ReportUpdate) {
	for k, v := range upd.Set {
		switch k {
		case "title":
			r.Title = v.(string)
		case "body":
			r.Body = v.(string)
		case "images":
			r.Images = v.([]models.StoredFile)
		case "gpx_kml_file":
			tf := v.(models.StoredFile)
			r.TrackFile = &tf
		case "caltopo_url":
			r.MapURL = v.(string)
		}
	}
	for _, k := range upd.Unset {
		switch k {
		case "images":
			r.Images = nil
		case "gpx_kml_file":
			r.TrackFile = nil
		case "caltopo_url":
			r.MapURL = ""
		}
	}
}

type fakePages struct {
	paths []string
}

func (f *fakePages) Invalidate(_ context.Context, paths ...string) error {
	f.paths = append(f.paths, paths...)
	return nil
}

type fakeStats struct {
	users []string
}

func (f *fakeStats) RecomputeStats(_ context.Context, userID string) error {
	f.users = append(f.users, userID)
	return nil
}

type fakeBookmarks struct {
	removed []string
}

func (f *fakeBookmarks) RemoveReportFromBookmarks(_ context.Context, reportID string) error {
	f.removed = append(f.removed, reportID)
	return nil
}

type fakeModerator struct {
	reject string
	seen   []string
}

func (f *fakeModerator) CheckImage(_ context.Context, _ string, img models.UploadFile) error {
	f.seen = append(f.seen, img.Filename)
	if img.Filename == f.reject {
		return ErrImageRejected
	}
	return nil
}
