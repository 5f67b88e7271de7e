package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotifPending NotificationStatus = "pending"
	NotifSent    NotificationStatus = "sent"
	NotifFailed  NotificationStatus = "failed"
)

// NotificationRecord is the per-attempt delivery state machine:
//
//	pending --success--> sent      (terminal)
//	pending --failure--> failed    (retry_count += 1)
//	failed  --success--> sent      (terminal)
//	failed  --failure--> failed    (retry_count += 1)
//
// SentAt tracks the last transition time, whatever the outcome.
type NotificationRecord struct {
	ID           string             `json:"notification_id"`
	UserID       string             `json:"user_id"`
	MatchID      string             `json:"match_id"`
	Message      string             `json:"message"`
	Status       NotificationStatus `json:"status"`
	RetryCount   int                `json:"retry_count"`
	ErrorMessage string             `json:"error_message,omitempty"`
	SentAt       time.Time          `json:"sent_at"`
}

func NewNotificationRecord(userID, matchID, message string) NotificationRecord {
	return NotificationRecord{
		ID:      uuid.NewString(),
		UserID:  userID,
		MatchID: matchID,
		Message: message,
		Status:  NotifPending,
		SentAt:  time.Now(),
	}
}

func (r *NotificationRecord) MarkSent() {
	r.Status = NotifSent
	r.ErrorMessage = ""
	r.SentAt = time.Now()
}

func (r *NotificationRecord) MarkFailed(reason string) {
	r.Status = NotifFailed
	r.ErrorMessage = reason
	r.RetryCount++
	r.SentAt = time.Now()
}

// CanRetry reports whether the record is still within its retry budget.
func (r NotificationRecord) CanRetry(maxRetries int) bool {
	return r.Status == NotifFailed && r.RetryCount < maxRetries
}
