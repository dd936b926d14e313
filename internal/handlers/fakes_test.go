package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/tripreport/backend/internal/middleware"
	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), &middleware.Identity{UserID: userID}))
}

type fakePipeline struct {
	mu       sync.Mutex
	created  []*models.ReportSubmission
	updated  []*models.ReportSubmission
	deleted  []string
	err      error
	nextID   string
	lastUser string
}

func (f *fakePipeline) Create(_ context.Context, userID string, sub *models.ReportSubmission) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, sub)
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Report{ID: f.nextID, UserID: userID, Title: sub.Form.Title}, nil
}

func (f *fakePipeline) Update(_ context.Context, userID, reportID string, sub *models.ReportSubmission) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, sub)
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Report{ID: reportID, UserID: userID, Title: sub.Form.Title}, nil
}

func (f *fakePipeline) Delete(_ context.Context, userID, reportID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, reportID)
	f.lastUser = userID
	return f.err
}

type fakeRepo struct {
	reports   map[string]*models.Report
	lastQuery models.ReportQuery
}

func newFakeRepo(reports ...*models.Report) *fakeRepo {
	f := &fakeRepo{reports: make(map[string]*models.Report)}
	for _, r := range reports {
		f.reports[r.ID] = r
	}
	return f
}

func (f *fakeRepo) Insert(_ context.Context, r *models.Report) error {
	f.reports[r.ID] = r
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*models.Report, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, services.ErrReportNotFound
	}
	return r, nil
}

func (f *fakeRepo) Update(context.Context, string, string, models.ReportUpdate) (*models.Report, error) {
	return nil, services.ErrReportNotFound
}

func (f *fakeRepo) Delete(context.Context, string, string) (*models.Report, error) {
	return nil, services.ErrReportNotFound
}

func (f *fakeRepo) List(_ context.Context, q models.ReportQuery) (*models.ReportPage, error) {
	f.lastQuery = q
	out := []models.Report{}
	for _, r := range f.reports {
		if q.UserID == "" || r.UserID == q.UserID {
			out = append(out, *r)
		}
	}
	return &models.ReportPage{Reports: out, Total: int64(len(out)), Page: 1, Limit: 12, TotalPages: 1}, nil
}

func (f *fakeRepo) Featured(context.Context, int) ([]models.Report, error) {
	return []models.Report{}, nil
}

func (f *fakeRepo) GetMany(_ context.Context, ids []string) ([]models.Report, error) {
	out := []models.Report{}
	for _, id := range ids {
		if r, ok := f.reports[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeUsers struct {
	users     map[string]*models.User
	bookmarks map[string][]string
	upserts   []models.IdentityUser
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*models.User), bookmarks: make(map[string][]string)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetOrCreate(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	u := &models.User{ID: id, DisplayName: "Trail user", Bookmarks: []string{}}
	f.users[id] = u
	return u, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id string, req *models.UpdateProfileRequest) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	if req.DisplayName != nil {
		u.DisplayName = *req.DisplayName
	}
	if req.Bio != nil {
		u.Bio = *req.Bio
	}
	return u, nil
}

func (f *fakeUsers) UpsertIdentity(_ context.Context, iu models.IdentityUser) error {
	f.upserts = append(f.upserts, iu)
	return nil
}

func (f *fakeUsers) AddBookmark(_ context.Context, userID, reportID string) error {
	for _, id := range f.bookmarks[userID] {
		if id == reportID {
			return nil
		}
	}
	f.bookmarks[userID] = append(f.bookmarks[userID], reportID)
	return nil
}

func (f *fakeUsers) RemoveBookmark(_ context.Context, userID, reportID string) error {
	kept := []string{}
	for _, id := range f.bookmarks[userID] {
		if id != reportID {
			kept = append(kept, id)
		}
	}
	f.bookmarks[userID] = kept
	return nil
}

func (f *fakeUsers) Bookmarks(_ context.Context, userID string) ([]string, error) {
	return f.bookmarks[userID], nil
}

type fakeAccounts struct {
	deleted []string
}

func (f *fakeAccounts) DeleteAccount(_ context.Context, userID string) (*services.DeleteAccountResult, error) {
	f.deleted = append(f.deleted, userID)
	return &services.DeleteAccountResult{ReportIDs: []string{}}, nil
}

type fakeMessages struct {
	sent []*models.Message
}

func (f *fakeMessages) Send(_ context.Context, sender *models.User, req *models.SendMessageRequest) (*models.Message, error) {
	msg := &models.Message{ID: "m1", SenderID: sender.ID, RecipientID: req.RecipientID, Subject: req.Subject, Body: req.Body}
	f.sent = append(f.sent, msg)
	return msg, nil
}

func (f *fakeMessages) Inbox(_ context.Context, userID string, unreadOnly bool) ([]models.Message, error) {
	out := []models.Message{}
	for _, m := range f.sent {
		if m.RecipientID == userID && (!unreadOnly || !m.Read) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessages) UnreadCount(_ context.Context, userID string) (int64, error) {
	var n int64
	for _, m := range f.sent {
		if m.RecipientID == userID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) MarkRead(_ context.Context, userID, id string) (*models.Message, error) {
	for _, m := range f.sent {
		if m.ID == id {
			if m.RecipientID != userID {
				return nil, services.ErrUnauthorized
			}
			m.Read = true
			return m, nil
		}
	}
	return nil, services.ErrMessageNotFound
}

func (f *fakeMessages) Delete(_ context.Context, userID, id string) error {
	_, err := f.MarkRead(context.Background(), userID, id)
	return err
}

type fakeCaptcha struct{ err error }

func (f fakeCaptcha) Verify(context.Context, string, string) error { return f.err }

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyMessage(_ context.Context, recipient *models.User, _ *models.Message) error {
	f.notified = append(f.notified, recipient.Email)
	return nil
}
