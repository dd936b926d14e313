package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tripreport/backend/internal/models"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

// ErrNoRecipientEmail means the recipient has no address to notify.
var ErrNoRecipientEmail = errors.New("recipient has no email")

// SendGridMailer tells users by email that someone wrote to them.
type SendGridMailer struct {
	APIKey     string
	FromEmail  string
	SiteURL    string
	HTTPClient *http.Client
	Endpoint   string
}

func NewSendGridMailer(apiKey, fromEmail, siteURL string) *SendGridMailer {
	return &SendGridMailer{
		APIKey:     strings.TrimSpace(apiKey),
		FromEmail:  strings.TrimSpace(fromEmail),
		SiteURL:    strings.TrimSuffix(strings.TrimSpace(siteURL), "/"),
		Endpoint:   sendGridEndpoint,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To         []sgAddress       `json:"to"`
	Subject    string            `json:"subject"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	ReplyTo          *sgAddress          `json:"reply_to,omitempty"`
	Content          []sgContent         `json:"content"`
}

// NotifyMessage emails recipient a copy of msg.
func (m *SendGridMailer) NotifyMessage(ctx context.Context, recipient *models.User, msg *models.Message) error {
	if m.APIKey == "" || m.FromEmail == "" {
		return fmt.Errorf("sendgrid mailer is not configured")
	}
	if recipient.Email == "" {
		return fmt.Errorf("%w: %s", ErrNoRecipientEmail, recipient.ID)
	}

	payload, err := json.Marshal(m.messageMail(recipient, msg))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid mail send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sendgrid mail send http %d", resp.StatusCode)
	}
	return nil
}

func (m *SendGridMailer) messageMail(recipient *models.User, msg *models.Message) sgMail {
	sender := strings.TrimSpace(msg.SenderName)
	if sender == "" {
		sender = "A Trip Report member"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s sent you a message on Trip Report.\n\n", sender)
	fmt.Fprintf(&b, "Subject: %s\n\n%s\n", msg.Subject, msg.Body)
	if m.SiteURL != "" {
		if msg.ReportID != "" {
			fmt.Fprintf(&b, "\nAbout: %s/reports/%s\n", m.SiteURL, msg.ReportID)
		}
		fmt.Fprintf(&b, "\nRead and reply: %s/messages\n", m.SiteURL)
	}

	mail := sgMail{
		Personalizations: []sgPersonalization{{
			To:         []sgAddress{{Email: recipient.Email, Name: recipient.DisplayName}},
			Subject:    "New message: " + msg.Subject,
			CustomArgs: map[string]string{"message_id": msg.ID},
		}},
		From:    sgAddress{Email: m.FromEmail, Name: "Trip Report"},
		Content: []sgContent{{Type: "text/plain", Value: b.String()}},
	}
	if msg.ReplyTo != "" {
		mail.ReplyTo = &sgAddress{Email: msg.ReplyTo, Name: sender}
	}
	return mail
}
