package models

import "time"

const (
	// UndoWindow is how long an acceptance can be reverted locally.
	UndoWindow = 2 * time.Minute

	// MaxSyncRetries is the number of failed drains after which an action is dropped.
	MaxSyncRetries = 3

	// ReconnectSettleDelay is the wait between coming online and draining the queue.
	ReconnectSettleDelay = 2 * time.Second

	// ExpirationSweepInterval is the period of the expiration sweeper.
	ExpirationSweepInterval = time.Minute

	// DefaultProbeInterval is the connectivity prober period.
	DefaultProbeInterval = 15 * time.Second
)

// Persisted key names in the durable key-value store.
const (
	KeyOffers               = "offers"
	KeyOfferStatuses        = "offerStatuses"
	KeyAcceptanceTimestamps = "acceptanceTimestamps"
	KeySyncQueue            = "syncQueue"
	KeyFailedActions        = "failedActions"
)
