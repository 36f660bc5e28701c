package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification delivery statuses
const (
	NotificationPending = "PENDING"
	NotificationSent    = "SENT"
	NotificationFailed  = "FAILED"
)

// NotificationOutboxModel is the persistence model for alert notifications
// awaiting delivery. The workflow appends rows; an external mailer drains
// them, so an alert is never lost to a transient SMTP failure.
type NotificationOutboxModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Audience string    `gorm:"type:varchar(20);not null"`
	Subject  string    `gorm:"type:varchar(500);not null"`
	Body     string    `gorm:"type:text;not null"`
	// Recipients is a JSON-encoded list of email addresses resolved from
	// the audience at enqueue time
	Recipients string `gorm:"type:text;not null"`
	OrderNum   int    `gorm:"index"`
	Step       string `gorm:"type:varchar(40)"`
	Status     string `gorm:"type:varchar(20);not null;default:PENDING;index:idx_notification_status_created,priority:1"`
	RetryCount int    `gorm:"default:0"`
	LastError  string `gorm:"type:text"`
	SentAt     *time.Time
	CreatedAt  time.Time `gorm:"not null;index:idx_notification_status_created,priority:2"`
}

// TableName returns the table name for GORM
func (NotificationOutboxModel) TableName() string {
	return "notification_outbox"
}
