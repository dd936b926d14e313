package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

const maxWebhookBytes = 1 << 20

// PayloadVerifier checks a signed webhook delivery.
type PayloadVerifier interface {
	Verify(payload []byte, headers http.Header) error
}

func NewSvixVerifier(secret string) (PayloadVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, err
	}
	return wh, nil
}

type identityEvent struct {
	Type string       `json:"type"`
	Data identityUser `json:"data"`
}

type identityUser struct {
	ID                    string `json:"id"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	EmailAddresses        []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	ImageURL  string `json:"image_url"`
}

func (u identityUser) email() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

func (u identityUser) displayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	if email := u.email(); email != "" {
		return strings.SplitN(email, "@", 2)[0]
	}
	return ""
}

type WebhookHandler struct {
	verifier PayloadVerifier
	users    UserStore
	accounts AccountDeleter
}

func NewWebhookHandler(verifier PayloadVerifier, users UserStore, accounts AccountDeleter) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, users: users, accounts: accounts}
}

// Identity keeps local users in sync with the identity provider.
func (h *WebhookHandler) Identity(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	if err := h.verifier.Verify(payload, r.Header); err != nil {
		log.Printf("[Webhook] signature rejected error=%v", err)
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid signature"))
		return
	}

	var evt identityEvent
	if err := json.Unmarshal(payload, &evt); err != nil || evt.Data.ID == "" {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid event payload"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), services.AccountTimeout)
	defer cancel()

	switch evt.Type {
	case "user.created", "user.updated":
		err = h.users.UpsertIdentity(ctx, models.IdentityUser{
			ID:          evt.Data.ID,
			Email:       evt.Data.email(),
			DisplayName: evt.Data.displayName(),
			ImageURL:    evt.Data.ImageURL,
		})
	case "user.deleted":
		_, err = h.accounts.DeleteAccount(ctx, evt.Data.ID)
	default:
		log.Printf("[Webhook] ignoring event type=%s", evt.Type)
	}
	if err != nil {
		writeServiceError(w, "Webhook", err, "Failed to process event")
		return
	}

	log.Printf("[Webhook] processed type=%s user=%s", evt.Type, evt.Data.ID)
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"status": "ok"}))
}
