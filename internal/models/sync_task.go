package models

import "time"

type ActionType string

const (
	ActionAccept  ActionType = "accept"
	ActionDecline ActionType = "decline"
)

// PendingAction is a queued remote effect that could not be confirmed when
// the user made the change.
type PendingAction struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	OfferID    string     `json:"offer_id"`
	Timestamp  time.Time  `json:"timestamp"`
	RetryCount int        `json:"retry_count"`
}

// FailedAction is a PendingAction dropped after exhausting its retries.
type FailedAction struct {
	PendingAction
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}
