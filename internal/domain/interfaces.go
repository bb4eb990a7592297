package domain

import (
	"context"
	"time"

	"offersync/internal/models"
)

// KVStore is a durable key-value store. Get returns nil, nil for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// OfferGateway is the remote side of offer decisions.
type OfferGateway interface {
	AcceptOffer(ctx context.Context, offerID string) error
	DeclineOffer(ctx context.Context, offerID string) error
	FetchTechnicianOffers(ctx context.Context, userID string) ([]models.Offer, error)
}

type Connectivity interface {
	IsOffline() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ActionQueue is the view of the offer store's sync queue used by the drain loop.
type ActionQueue interface {
	PendingActions() []models.PendingAction
	HasAction(id string) bool
	CompleteAction(ctx context.Context, id string)
	FailAction(ctx context.Context, id string, cause error) (dropped bool)
}

// ExpirationChecker is what the sweeper drives on every tick.
type ExpirationChecker interface {
	CheckExpiredOffers(ctx context.Context) int
}

type OfferService interface {
	FetchOffers(ctx context.Context, userID string) error
	AddOffer(ctx context.Context, offer models.Offer) error
	AcceptOffer(ctx context.Context, id string) error
	DeclineOffer(ctx context.Context, id string) error
	UndoAccept(ctx context.Context, id string) bool
	CheckExpiredOffers(ctx context.Context) int
	GetOffer(id string) (models.Offer, bool)
	GetOfferStatus(id string) (models.OfferStatus, bool)
	AcceptedAt(id string) (time.Time, bool)
	CanUndo(id string) bool
	OffersByStatus(status models.OfferStatus) []models.Offer
	PendingActions() []models.PendingAction
	FailedActions() []models.FailedAction
	ClearFailedActions(ctx context.Context)
}
