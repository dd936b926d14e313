package models

import (
	"net/mail"
	"strings"
	"time"
)

type Message struct {
	ID          string    `json:"id" bson:"_id"`
	SenderID    string    `json:"senderId" bson:"sender_id"`
	RecipientID string    `json:"recipientId" bson:"recipient_id"`
	ReportID    string    `json:"reportId,omitempty" bson:"report_id,omitempty"`
	SenderName  string    `json:"senderName,omitempty" bson:"sender_name,omitempty"`
	ReplyTo     string    `json:"replyTo,omitempty" bson:"reply_to,omitempty"`
	Subject     string    `json:"subject" bson:"subject"`
	Body        string    `json:"body" bson:"body"`
	Read        bool      `json:"read" bson:"read"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updated_at"`
}

// SendMessageRequest is the contact form payload.
type SendMessageRequest struct {
	RecipientID    string `json:"recipientId"`
	ReportID       string `json:"reportId"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	ReplyTo        string `json:"replyTo"`
	RecaptchaToken string `json:"recaptchaToken"`
}

func (r *SendMessageRequest) Validate() map[string]string {
	fields := make(map[string]string)

	if strings.TrimSpace(r.RecipientID) == "" {
		fields["recipientId"] = "Recipient is required"
	}
	subject := strings.TrimSpace(r.Subject)
	if subject == "" {
		fields["subject"] = "Subject is required"
	} else if len(subject) > 200 {
		fields["subject"] = "Subject is too long"
	}
	body := strings.TrimSpace(r.Body)
	if body == "" {
		fields["body"] = "Message is required"
	} else if len(body) > 4000 {
		fields["body"] = "Message is too long"
	}
	if replyTo := strings.TrimSpace(r.ReplyTo); replyTo != "" {
		if _, err := mail.ParseAddress(replyTo); err != nil {
			fields["replyTo"] = "Email is invalid"
		}
	}

	return fields
}
