package models

import "time"

// UserFlag counts moderation strikes against a user.
type UserFlag struct {
	UserID       string    `json:"userId" bson:"user_id"`
	Strikes      int       `json:"strikes" bson:"strikes"`
	LastReason   string    `json:"lastReason,omitempty" bson:"last_reason,omitempty"`
	LastStrikeAt time.Time `json:"lastStrikeAt" bson:"last_strike_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}
