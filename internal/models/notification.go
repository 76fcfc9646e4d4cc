package models

import (
	"encoding/json"
	"time"
)

// NotificationType enumerates attendance notifications.
type NotificationType string

const (
	NotificationCorrectionDecided NotificationType = "CORRECTION_DECIDED"
)

// Notification is a message queued for a user. Delivery happens elsewhere.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	Type        NotificationType `db:"type" json:"type"`
	Title       string           `db:"title" json:"title"`
	Body        string           `db:"body" json:"body"`
	Data        json.RawMessage  `db:"data" json:"data,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
