package models

import "time"

// Offer is a job opportunity offered to a technician. The record never changes
// after creation; its status lives in a separate map owned by the store.
type Offer struct {
	ID                string    `json:"id"`
	ExpiresAt         time.Time `json:"expires_at"`
	OfferedAt         time.Time `json:"offered_at"`
	NextAvailableDate time.Time `json:"next_available_date"`
}

// IsExpiredAt reports whether the offer deadline has passed at now.
func (o Offer) IsExpiredAt(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

type OfferStatus string

const (
	StatusPending  OfferStatus = "pending"
	StatusAccepted OfferStatus = "accepted"
	StatusDeclined OfferStatus = "declined"
	StatusExpired  OfferStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s OfferStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined, StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is defined from s.
func (s OfferStatus) Terminal() bool {
	return s == StatusDeclined || s == StatusExpired
}
