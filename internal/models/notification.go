package models

import "time"

// RecipientKind identifies the audience of a notification.
type RecipientKind string

const (
	RecipientGuardian RecipientKind = "GUARDIAN"
	RecipientAdmin    RecipientKind = "ADMIN"
)

// NotificationSeverity grades how prominently a notification is shown.
type NotificationSeverity string

const (
	SeverityInfo    NotificationSeverity = "INFO"
	SeveritySuccess NotificationSeverity = "SUCCESS"
	SeverityWarning NotificationSeverity = "WARNING"
	SeverityError   NotificationSeverity = "ERROR"
)

// Notification is a fire-and-forget message for a guardian or an
// administrator. The core only writes these; delivery belongs to the
// notification subsystem.
type Notification struct {
	ID            string               `db:"id" json:"id"`
	RecipientID   string               `db:"recipient_id" json:"recipient_id"`
	RecipientKind RecipientKind        `db:"recipient_kind" json:"recipient_kind"`
	Title         string               `db:"title" json:"title"`
	Body          string               `db:"body" json:"body"`
	Severity      NotificationSeverity `db:"severity" json:"severity"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
}
