package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripreport/backend/internal/middleware"
	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

// MessageStore is the message persistence the HTTP layer needs.
type MessageStore interface {
	Send(ctx context.Context, sender *models.User, req *models.SendMessageRequest) (*models.Message, error)
	Inbox(ctx context.Context, userID string, unreadOnly bool) ([]models.Message, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, id string) (*models.Message, error)
	Delete(ctx context.Context, userID, id string) error
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// MessageNotifier tells a recipient that a message arrived.
type MessageNotifier interface {
	NotifyMessage(ctx context.Context, recipient *models.User, msg *models.Message) error
}

type MessageHandler struct {
	messages MessageStore
	users    UserStore
	reports  services.ReportRepository

	// Optional.
	captcha CaptchaVerifier
	mailer  MessageNotifier
}

func NewMessageHandler(messages MessageStore, users UserStore, reports services.ReportRepository, captcha CaptchaVerifier, mailer MessageNotifier) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		users:    users,
		reports:  reports,
		captcha:  captcha,
		mailer:   mailer,
	}
}

type inboxResponse struct {
	Messages []models.Message `json:"messages"`
	Unread   int64            `json:"unread"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(fields))
		return
	}
	recipientID := strings.TrimSpace(req.RecipientID)
	if recipientID == userID {
		writeServiceError(w, "SendMessage", services.ErrSelfMessage, "Failed to send message")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if h.captcha != nil {
		remoteIP := middleware.ClientIP(r)
		if err := h.captcha.Verify(ctx, req.RecaptchaToken, remoteIP); err != nil {
			if errors.Is(err, services.ErrCaptchaFailed) {
				log.Printf("[SendMessage] recaptcha failed ip=%s err=%v", remoteIP, err)
				writeJSON(w, http.StatusForbidden, models.NewErrorResponse("reCAPTCHA verification failed"))
				return
			}
			log.Printf("[SendMessage] recaptcha error ip=%s err=%v", remoteIP, err)
			writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to verify reCAPTCHA"))
			return
		}
	}

	sender, err := h.users.GetOrCreate(ctx, userID)
	if err != nil {
		writeServiceError(w, "SendMessage", err, "Failed to send message")
		return
	}
	recipient, err := h.users.GetByID(ctx, recipientID)
	if err != nil {
		writeServiceError(w, "SendMessage", err, "Failed to send message")
		return
	}
	if reportID := strings.TrimSpace(req.ReportID); reportID != "" {
		if _, err := h.reports.GetByID(ctx, reportID); err != nil {
			writeServiceError(w, "SendMessage", err, "Failed to send message")
			return
		}
	}

	msg, err := h.messages.Send(ctx, sender, &req)
	if err != nil {
		writeServiceError(w, "SendMessage", err, "Failed to send message")
		return
	}

	if h.mailer != nil && recipient.Email != "" {
		if err := h.mailer.NotifyMessage(ctx, recipient, msg); err != nil {
			log.Printf("[SendMessage] message=%s notify error=%v", msg.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(msg))
}

func (h *MessageHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	msgs, err := h.messages.Inbox(ctx, userID, unreadOnly)
	if err != nil {
		writeServiceError(w, "Inbox", err, "Failed to fetch messages")
		return
	}
	unread, err := h.messages.UnreadCount(ctx, userID)
	if err != nil {
		writeServiceError(w, "Inbox", err, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(inboxResponse{Messages: msgs, Unread: unread}))
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	msg, err := h.messages.MarkRead(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "MarkRead", err, "Failed to update message")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(msg))
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.messages.Delete(ctx, userID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "DeleteMessage", err, "Failed to delete message")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"message": "Message deleted successfully"}))
}
