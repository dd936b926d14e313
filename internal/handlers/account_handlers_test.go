package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestProfileEndpoints(t *testing.T) {
	users := newFakeUsers(&models.User{ID: "u-2", DisplayName: "Ansel", CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)})
	repo := newFakeRepo(
		&models.Report{ID: "r-1", UserID: "u-2"},
		&models.Report{ID: "r-2", UserID: "someone-else"},
	)
	accounts := &fakeAccounts{}
	h := NewProfileHandler(users, repo, accounts, nil)

	r := chi.NewRouter()
	r.Get("/me", h.GetMe)
	r.Put("/me", h.UpdateMe)
	r.Delete("/me", h.DeleteMe)
	r.Get("/users/{id}", h.GetPublicProfile)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/me", nil), "u-new"))
	if rr.Code != http.StatusOK || users.users["u-new"] == nil {
		t.Fatalf("GetMe should create the profile: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(jsonRequest(http.MethodPut, "/me", `{"displayName":"  "}`), "u-new"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank display name: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(jsonRequest(http.MethodPut, "/me", `{"displayName":"Galen","bio":"Sierra"}`), "u-new"))
	if rr.Code != http.StatusOK || users.users["u-new"].DisplayName != "Galen" {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/u-2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("public profile: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"r-1"`) || strings.Contains(rr.Body.String(), `"r-2"`) {
		t.Fatalf("profile should list only the user's reports: %s", rr.Body.String())
	}
	if repo.lastQuery.UserID != "u-2" {
		t.Fatalf("query = %+v", repo.lastQuery)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/ghost", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing user: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous delete: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodDelete, "/me", nil), "u-2"))
	if rr.Code != http.StatusOK || len(accounts.deleted) != 1 || accounts.deleted[0] != "u-2" {
		t.Fatalf("delete: %d %v", rr.Code, accounts.deleted)
	}
}

func TestBookmarks(t *testing.T) {
	users := newFakeUsers()
	repo := newFakeRepo(&models.Report{ID: "r-1"}, &models.Report{ID: "r-2"})
	h := NewBookmarkHandler(users, repo)

	r := chi.NewRouter()
	r.Get("/me/bookmarks", h.List)
	r.Post("/reports/{id}/bookmark", h.Add)
	r.Delete("/reports/{id}/bookmark", h.Remove)

	do := func(method, target string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, asUser(httptest.NewRequest(method, target, nil), "u-1"))
		return rr
	}

	if rr := do(http.MethodPost, "/reports/missing/bookmark"); rr.Code != http.StatusNotFound {
		t.Fatalf("bookmarking a missing report: %d", rr.Code)
	}
	do(http.MethodPost, "/reports/r-2/bookmark")
	do(http.MethodPost, "/reports/r-1/bookmark")
	do(http.MethodPost, "/reports/r-2/bookmark")
	if got := users.bookmarks["u-1"]; len(got) != 2 || got[0] != "r-2" {
		t.Fatalf("bookmarks = %v", got)
	}

	delete(repo.reports, "r-1")
	rr := do(http.MethodGet, "/me/bookmarks")
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), `"r-1"`) || !strings.Contains(rr.Body.String(), `"r-2"`) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}

	do(http.MethodDelete, "/reports/r-2/bookmark")
	if got := users.bookmarks["u-1"]; len(got) != 1 || got[0] != "r-1" {
		t.Fatalf("after remove = %v", got)
	}
}

func TestSendMessage(t *testing.T) {
	newHandler := func(captchaErr error) (*MessageHandler, *fakeMessages, *fakeNotifier) {
		users := newFakeUsers(
			&models.User{ID: "sender", DisplayName: "Sam", Email: "sam@example.com"},
			&models.User{ID: "owner", DisplayName: "Olive", Email: "olive@example.com"},
		)
		msgs := &fakeMessages{}
		notifier := &fakeNotifier{}
		repo := newFakeRepo(&models.Report{ID: "r-1", UserID: "owner"})
		return NewMessageHandler(msgs, users, repo, fakeCaptcha{err: captchaErr}, notifier), msgs, notifier
	}
	send := func(h *MessageHandler, userID, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.Send(rr, asUser(jsonRequest(http.MethodPost, "/messages", body), userID))
		return rr
	}

	h, msgs, notifier := newHandler(nil)
	rr := send(h, "sender", `{"recipientId":"owner","reportId":"r-1","subject":"Beta","body":"How were the cables?"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", rr.Code, rr.Body.String())
	}
	if len(msgs.sent) != 1 || len(notifier.notified) != 1 || notifier.notified[0] != "olive@example.com" {
		t.Fatalf("sent=%d notified=%v", len(msgs.sent), notifier.notified)
	}

	tests := []struct {
		name   string
		user   string
		body   string
		status int
	}{
		{"self", "owner", `{"recipientId":"owner","subject":"s","body":"b"}`, http.StatusBadRequest},
		{"missing fields", "sender", `{"recipientId":"owner"}`, http.StatusBadRequest},
		{"unknown recipient", "sender", `{"recipientId":"ghost","subject":"s","body":"b"}`, http.StatusNotFound},
		{"unknown report", "sender", `{"recipientId":"owner","reportId":"nope","subject":"s","body":"b"}`, http.StatusNotFound},
		{"anonymous", "", `{"recipientId":"owner","subject":"s","body":"b"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, msgs, _ := newHandler(nil)
			if rr := send(h, tt.user, tt.body); rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if len(msgs.sent) != 0 {
				t.Fatalf("nothing should be stored")
			}
		})
	}

	h, msgs, _ = newHandler(fmt.Errorf("%w: timeout-or-duplicate", services.ErrCaptchaFailed))
	if rr := send(h, "sender", `{"recipientId":"owner","subject":"s","body":"b"}`); rr.Code != http.StatusForbidden {
		t.Fatalf("captcha failure: %d", rr.Code)
	}
	if len(msgs.sent) != 0 {
		t.Fatalf("rejected captcha must not store a message")
	}
}

func TestSendMessageReportsFieldErrors(t *testing.T) {
	users := newFakeUsers(&models.User{ID: "sender"}, &models.User{ID: "owner"})
	h := NewMessageHandler(&fakeMessages{}, users, newFakeRepo(), fakeCaptcha{}, nil)

	rr := httptest.NewRecorder()
	h.Send(rr, asUser(jsonRequest(http.MethodPost, "/messages", `{"recipientId":"owner","replyTo":"not-an-email"}`), "sender"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Error  string            `json:"error"`
		Errors map[string]string `json:"errors"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, field := range []string{"subject", "body", "replyTo"} {
		if resp.Errors[field] == "" {
			t.Fatalf("missing error for %s: %+v", field, resp)
		}
	}

	// A verifier outage is not a rejection.
	h = NewMessageHandler(&fakeMessages{}, users, newFakeRepo(), fakeCaptcha{err: errors.New("dial tcp: timeout")}, nil)
	rr = httptest.NewRecorder()
	h.Send(rr, asUser(jsonRequest(http.MethodPost, "/messages", `{"recipientId":"owner","subject":"s","body":"b"}`), "sender"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("captcha outage: %d", rr.Code)
	}
}

func TestInboxReadAndDelete(t *testing.T) {
	msgs := &fakeMessages{sent: []*models.Message{
		{ID: "m1", RecipientID: "owner", Subject: "one"},
		{ID: "m2", RecipientID: "owner", Subject: "two", Read: true},
		{ID: "m3", RecipientID: "other", Subject: "three"},
	}}
	h := NewMessageHandler(msgs, newFakeUsers(), newFakeRepo(), nil, nil)

	r := chi.NewRouter()
	r.Get("/messages", h.Inbox)
	r.Post("/messages/{id}/read", h.MarkRead)
	r.Delete("/messages/{id}", h.Delete)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodGet, "/messages?unread=true", nil), "owner"))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"m1"`) || strings.Contains(rr.Body.String(), `"m2"`) {
		t.Fatalf("inbox: %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"unread":1`) {
		t.Fatalf("unread count missing: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodPost, "/messages/m3/read", nil), "owner"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("foreign message: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodDelete, "/messages/zzz", nil), "owner"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing message: %d", rr.Code)
	}
}

func TestIdentityWebhook(t *testing.T) {
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	verifier, err := NewSvixVerifier(secret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	deliver := func(h *WebhookHandler, payload string, sign bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewBufferString(payload))
		now := time.Now()
		req.Header.Set("svix-id", "msg_1")
		req.Header.Set("svix-timestamp", fmt.Sprint(now.Unix()))
		if sign {
			sig, err := wh.Sign("msg_1", now, []byte(payload))
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			req.Header.Set("svix-signature", sig)
		} else {
			req.Header.Set("svix-signature", "v1,bm90IGEgc2lnbmF0dXJl")
		}
		rr := httptest.NewRecorder()
		h.Identity(rr, req)
		return rr
	}

	users := newFakeUsers()
	accounts := &fakeAccounts{}
	h := NewWebhookHandler(verifier, users, accounts)

	created := `{"type":"user.created","data":{"id":"user_1","primary_email_address_id":"e2",` +
		`"email_addresses":[{"id":"e1","email_address":"old@example.com"},{"id":"e2","email_address":"ada@example.com"}],` +
		`"first_name":"Ada","last_name":"Lovelace","image_url":"https://img.example.com/a.png"}}`

	if rr := deliver(h, created, false); rr.Code != http.StatusBadRequest || len(users.upserts) != 0 {
		t.Fatalf("unsigned delivery: %d upserts=%d", rr.Code, len(users.upserts))
	}
	if rr := deliver(h, created, true); rr.Code != http.StatusOK {
		t.Fatalf("signed delivery: %d %s", rr.Code, rr.Body.String())
	}
	if len(users.upserts) != 1 {
		t.Fatalf("upserts = %d", len(users.upserts))
	}
	got := users.upserts[0]
	if got.ID != "user_1" || got.Email != "ada@example.com" || got.DisplayName != "Ada Lovelace" || got.ImageURL == "" {
		t.Fatalf("identity = %+v", got)
	}

	if rr := deliver(h, `{"type":"user.deleted","data":{"id":"user_1","deleted":true}}`, true); rr.Code != http.StatusOK {
		t.Fatalf("delete event: %d", rr.Code)
	}
	if len(accounts.deleted) != 1 || accounts.deleted[0] != "user_1" {
		t.Fatalf("deleted = %v", accounts.deleted)
	}

	if rr := deliver(h, `{"type":"session.created","data":{"id":"sess_1"}}`, true); rr.Code != http.StatusOK {
		t.Fatalf("other events should be acknowledged: %d", rr.Code)
	}
}

func TestIdentityDisplayNameFallbacks(t *testing.T) {
	u := identityUser{Username: "ridgeline"}
	if u.displayName() != "ridgeline" {
		t.Fatalf("got %q", u.displayName())
	}
	u = identityUser{EmailAddresses: []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	}{{ID: "e1", EmailAddress: "muir@example.com"}}}
	if u.displayName() != "muir" || u.email() != "muir@example.com" {
		t.Fatalf("got %q %q", u.displayName(), u.email())
	}
}
