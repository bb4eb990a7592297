// Package store owns offer state: the offer map, per-offer statuses,
// acceptance timestamps and the queue of remote actions still to be synced.
//
// Every change is applied optimistically in memory and then mirrored to the
// durable key-value store. Remote failures on accept and decline are absorbed
// into the sync queue and never returned to the caller.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"offersync/internal/codec"
	"offersync/internal/domain"
	"offersync/internal/events"
	"offersync/internal/metrics"
	"offersync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	_ domain.OfferService      = (*Store)(nil)
	_ domain.ActionQueue       = (*Store)(nil)
	_ domain.ExpirationChecker = (*Store)(nil)
)

type Store struct {
	kv      domain.KVStore
	gateway domain.OfferGateway
	conn    domain.Connectivity
	events  domain.EventPublisher
	logger  *zerolog.Logger

	now        func() time.Time
	newID      func() string
	undoWindow time.Duration
	maxRetries int

	mu sync.RWMutex
	st state

	// persistMu orders snapshot+write pairs so the stored state never goes
	// backwards.
	persistMu sync.Mutex
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithEvents(pub domain.EventPublisher) Option {
	return func(s *Store) { s.events = pub }
}

func WithUndoWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.undoWindow = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New creates an empty store. Call Load to hydrate it from kv.
// A nil conn is treated as always online.
func New(kv domain.KVStore, gateway domain.OfferGateway, conn domain.Connectivity, opts ...Option) *Store {
	nop := zerolog.Nop()
	s := &Store{
		kv:         kv,
		gateway:    gateway,
		conn:       conn,
		logger:     &nop,
		now:        time.Now,
		newID:      uuid.NewString,
		undoWindow: models.UndoWindow,
		maxRetries: models.MaxSyncRetries,
		st:         newState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces in-memory state with what is stored in kv. Keys that cannot
// be read or decoded start empty; the returned error names them, but the
// store is usable either way.
func (s *Store) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next := newState()
	var errs []error

	if v, err := readKey(ctx, s.kv, codec.Offers); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		next.offers = v
	}
	if v, err := readKey(ctx, s.kv, codec.Statuses); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		next.statuses = v
	}
	if v, err := readKey(ctx, s.kv, codec.Timestamps); err != nil {
		errs = append(errs, err)
	} else if v != nil {
		next.acceptedAt = v
	}
	if v, err := readKey(ctx, s.kv, codec.Queue); err != nil {
		errs = append(errs, err)
	} else {
		next.queue = v
	}
	if v, err := readKey(ctx, s.kv, codec.Failed); err != nil {
		errs = append(errs, err)
	} else {
		next.failed = v
	}

	for _, err := range errs {
		s.logger.Error().Err(err).Msg("load offer state")
	}

	next.normalize()

	s.mu.Lock()
	s.st = next
	depth := len(next.queue)
	s.mu.Unlock()

	metrics.SetQueueDepth(depth)
	s.logger.Info().
		Int("offers", len(next.offers)).
		Int("queued", depth).
		Int("failed", len(next.failed)).
		Msg("offer state loaded")

	return errors.Join(errs...)
}

// FetchOffers replaces the offer map with the gateway's list for userID,
// keeping local statuses. On remote failure nothing changes.
func (s *Store) FetchOffers(ctx context.Context, userID string) error {
	offers, err := s.gateway.FetchTechnicianOffers(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("fetch offers failed")
		return fmt.Errorf("fetch offers: %w: %w", ErrRemoteFailure, err)
	}

	s.mu.Lock()
	s.st.apply(offersReplaced{offers: offers, now: s.now()})
	count := len(s.st.offers)
	s.mu.Unlock()

	s.persist(ctx)
	metrics.IncTransition("refresh")
	s.publish(events.EventOffersRefreshed, map[string]interface{}{
		"user_id": userID,
		"count":   count,
	})
	return nil
}

// AddOffer inserts or replaces an offer record. A new offer starts pending,
// or expired when its deadline has already passed.
func (s *Store) AddOffer(ctx context.Context, offer models.Offer) error {
	if offer.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidOffer)
	}

	s.mu.Lock()
	s.st.apply(offerAdded{offer: offer, now: s.now()})
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

func (s *Store) AcceptOffer(ctx context.Context, id string) error {
	now := s.now()

	s.mu.Lock()
	offer, err := s.checkPending(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if offer.IsExpiredAt(now) {
		s.st.apply(offersExpired{ids: []string{id}})
		s.mu.Unlock()

		s.persist(ctx)
		metrics.IncTransition("expire")
		s.publishOffer(events.EventOfferExpired, id, models.StatusExpired, time.Time{}, now)
		return fmt.Errorf("%w: %s", ErrExpired, id)
	}

	s.st.apply(offerAccepted{id: id, at: now})
	queued, ok := s.queueIfOffline(models.ActionAccept, id, now)
	s.mu.Unlock()

	s.persist(ctx)
	metrics.IncTransition("accept")
	s.publishOffer(events.EventOfferAccepted, id, models.StatusAccepted, now, now)

	if ok {
		s.actionQueuedHook(queued)
		return nil
	}

	if err := s.gateway.AcceptOffer(ctx, id); err != nil {
		s.queueAfterFailure(ctx, models.ActionAccept, id, models.StatusAccepted, now, err)
	}
	return nil
}

func (s *Store) DeclineOffer(ctx context.Context, id string) error {
	now := s.now()

	s.mu.Lock()
	if _, err := s.checkPending(id); err != nil {
		s.mu.Unlock()
		return err
	}
	s.st.apply(offerDeclined{id: id})
	queued, ok := s.queueIfOffline(models.ActionDecline, id, now)
	s.mu.Unlock()

	s.persist(ctx)
	metrics.IncTransition("decline")
	s.publishOffer(events.EventOfferDeclined, id, models.StatusDeclined, time.Time{}, now)

	if ok {
		s.actionQueuedHook(queued)
		return nil
	}

	if err := s.gateway.DeclineOffer(ctx, id); err != nil {
		s.queueAfterFailure(ctx, models.ActionDecline, id, models.StatusDeclined, now, err)
	}
	return nil
}

// UndoAccept reverts an acceptance made less than the undo window ago and
// drops any queued accept for the offer. It reports whether anything changed.
func (s *Store) UndoAccept(ctx context.Context, id string) bool {
	now := s.now()

	s.mu.Lock()
	if !s.canUndoLocked(id, now) {
		s.mu.Unlock()
		return false
	}
	s.st.apply(acceptUndone{id: id})
	s.mu.Unlock()

	s.persist(ctx)
	metrics.IncTransition("undo")
	s.publishOffer(events.EventAcceptUndone, id, models.StatusPending, time.Time{}, now)
	return true
}

// CheckExpiredOffers moves every pending offer past its deadline to expired
// and returns how many moved.
func (s *Store) CheckExpiredOffers(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var ids []string
	for id, st := range s.st.statuses {
		if st != models.StatusPending {
			continue
		}
		if o, ok := s.st.offers[id]; ok && o.IsExpiredAt(now) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		s.mu.Unlock()
		return 0
	}
	sort.Strings(ids)
	s.st.apply(offersExpired{ids: ids})
	s.mu.Unlock()

	s.persist(ctx)
	for _, id := range ids {
		metrics.IncTransition("expire")
		s.publishOffer(events.EventOfferExpired, id, models.StatusExpired, time.Time{}, now)
	}
	s.logger.Info().Int("count", len(ids)).Msg("offers expired")
	return len(ids)
}

func (s *Store) GetOffer(id string) (models.Offer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.st.offers[id]
	return o, ok
}

func (s *Store) GetOfferStatus(id string) (models.OfferStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.st.statuses[id]
	return st, ok
}

func (s *Store) AcceptedAt(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.st.acceptedAt[id]
	return ts, ok
}

// CanUndo reports whether UndoAccept would succeed right now.
func (s *Store) CanUndo(id string) bool {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canUndoLocked(id, now)
}

// OffersByStatus lists offers with the given status ordered by offer time.
func (s *Store) OffersByStatus(status models.OfferStatus) []models.Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.offersWithStatus(status)
}

func (s *Store) PendingOffers() []models.Offer  { return s.OffersByStatus(models.StatusPending) }
func (s *Store) AcceptedOffers() []models.Offer { return s.OffersByStatus(models.StatusAccepted) }
func (s *Store) DeclinedOffers() []models.Offer { return s.OffersByStatus(models.StatusDeclined) }
func (s *Store) ExpiredOffers() []models.Offer  { return s.OffersByStatus(models.StatusExpired) }

// PendingActions returns a copy of the sync queue in order.
func (s *Store) PendingActions() []models.PendingAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PendingAction{}, s.st.queue...)
}

func (s *Store) HasAction(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.actionIndex(id) >= 0
}

// CompleteAction removes a synced action. Unknown ids are ignored.
func (s *Store) CompleteAction(ctx context.Context, id string) {
	s.mu.Lock()
	i := s.st.actionIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	action := s.st.queue[i]
	s.st.apply(actionCompleted{id: id})
	s.mu.Unlock()

	s.persist(ctx)
	metrics.IncSyncAction("synced")
	s.publishAction(events.EventActionSynced, action, nil)
}

// FailAction records a failed sync attempt. The action is moved to the failed
// list once it has failed maxRetries times; dropped reports that case.
func (s *Store) FailAction(ctx context.Context, id string, cause error) (dropped bool) {
	now := s.now()

	s.mu.Lock()
	i := s.st.actionIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	action := s.st.queue[i]
	action.RetryCount++
	dropped = action.RetryCount >= s.maxRetries
	if dropped {
		s.st.apply(actionDropped{id: id, lastError: errString(cause), at: now})
	} else {
		s.st.apply(actionRetried{id: id})
	}
	s.mu.Unlock()

	s.persist(ctx)

	if dropped {
		metrics.IncSyncAction("dropped")
		s.logger.Warn().
			Err(cause).
			Str("action_id", action.ID).
			Str("offer_id", action.OfferID).
			Str("type", string(action.Type)).
			Int("retry_count", action.RetryCount).
			Msg("sync action dropped after max retries")
		s.publishAction(events.EventActionDropped, action, cause)
		return true
	}

	metrics.IncSyncAction("retry")
	s.logger.Debug().
		Err(cause).
		Str("action_id", action.ID).
		Int("retry_count", action.RetryCount).
		Msg("sync action failed, will retry")
	return false
}

func (s *Store) FailedActions() []models.FailedAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FailedAction{}, s.st.failed...)
}

func (s *Store) ClearFailedActions(ctx context.Context) {
	s.mu.Lock()
	if len(s.st.failed) == 0 {
		s.mu.Unlock()
		return
	}
	s.st.apply(failedCleared{})
	s.mu.Unlock()

	s.persist(ctx)
}

// checkPending must be called with mu held.
func (s *Store) checkPending(id string) (models.Offer, error) {
	offer, ok := s.st.offers[id]
	if !ok {
		return models.Offer{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if st := s.st.statuses[id]; st != models.StatusPending {
		return models.Offer{}, fmt.Errorf("%w: offer %s is %s", ErrInvalidState, id, st)
	}
	return offer, nil
}

func (s *Store) canUndoLocked(id string, now time.Time) bool {
	if s.st.statuses[id] != models.StatusAccepted {
		return false
	}
	ts, ok := s.st.acceptedAt[id]
	if !ok {
		return false
	}
	return now.Sub(ts) < s.undoWindow
}

// queueIfOffline must be called with mu held.
func (s *Store) queueIfOffline(typ models.ActionType, offerID string, at time.Time) (models.PendingAction, bool) {
	if s.conn == nil || !s.conn.IsOffline() {
		return models.PendingAction{}, false
	}
	action := s.newAction(typ, offerID, at)
	s.st.apply(actionQueued{action: action})
	return action, true
}

// queueAfterFailure enqueues the action unless the offer has moved on since
// the remote call started. An accept only counts as unchanged while its
// acceptance timestamp is the one the call was made for, and an offer never
// gets a second queued action of the same type.
func (s *Store) queueAfterFailure(ctx context.Context, typ models.ActionType, offerID string, want models.OfferStatus, at time.Time, cause error) {
	s.logger.Warn().
		Err(cause).
		Str("offer_id", offerID).
		Str("type", string(typ)).
		Msg("remote call failed, queueing for sync")

	s.mu.Lock()
	if !s.stillWanted(typ, offerID, want, at) {
		s.mu.Unlock()
		return
	}
	action := s.newAction(typ, offerID, at)
	s.st.apply(actionQueued{action: action})
	s.mu.Unlock()

	s.persist(ctx)
	s.actionQueuedHook(action)
}

// stillWanted must be called with mu held.
func (s *Store) stillWanted(typ models.ActionType, offerID string, want models.OfferStatus, at time.Time) bool {
	if s.st.statuses[offerID] != want {
		return false
	}
	if typ == models.ActionAccept && !s.st.acceptedAt[offerID].Equal(at) {
		return false
	}
	return !s.st.hasQueued(typ, offerID)
}

func (s *Store) newAction(typ models.ActionType, offerID string, at time.Time) models.PendingAction {
	return models.PendingAction{
		ID:        s.newID(),
		Type:      typ,
		OfferID:   offerID,
		Timestamp: at,
	}
}

func (s *Store) actionQueuedHook(action models.PendingAction) {
	metrics.IncSyncAction("queued")
	s.publishAction(events.EventActionQueued, action, nil)
}

// persist writes a snapshot of every key. Failures are logged and counted
// and never reach the caller.
func (s *Store) persist(ctx context.Context) {
	if s.kv == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	snap := s.st.clone()
	s.mu.RUnlock()

	metrics.SetQueueDepth(len(snap.queue))

	s.writeKey(ctx, codec.Offers.Key, func() ([]byte, error) { return codec.Offers.Marshal(snap.offers) })
	s.writeKey(ctx, codec.Statuses.Key, func() ([]byte, error) { return codec.Statuses.Marshal(snap.statuses) })
	s.writeKey(ctx, codec.Timestamps.Key, func() ([]byte, error) { return codec.Timestamps.Marshal(snap.acceptedAt) })
	s.writeKey(ctx, codec.Queue.Key, func() ([]byte, error) { return codec.Queue.Marshal(snap.queue) })
	if len(snap.failed) == 0 {
		s.deleteKey(ctx, codec.Failed.Key)
	} else {
		s.writeKey(ctx, codec.Failed.Key, func() ([]byte, error) { return codec.Failed.Marshal(snap.failed) })
	}
}

// deleteKey removes a key whose value is empty; a missing key loads as empty.
func (s *Store) deleteKey(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		metrics.IncPersistFailure(key)
		s.logger.Error().Err(err).Str("key", key).Msg("delete offer state")
	}
}

func (s *Store) writeKey(ctx context.Context, key string, encode func() ([]byte, error)) {
	raw, err := encode()
	if err == nil {
		err = s.kv.Set(ctx, key, raw)
	}
	if err != nil {
		metrics.IncPersistFailure(key)
		s.logger.Error().Err(err).Str("key", key).Msg("persist offer state")
	}
}

func readKey[T any](ctx context.Context, kv domain.KVStore, c codec.Codec[T]) (T, error) {
	var zero T
	if kv == nil {
		return zero, nil
	}
	raw, err := kv.Get(ctx, c.Key)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", c.Key, err)
	}
	return c.Unmarshal(raw)
}

func (s *Store) publishOffer(eventType, id string, status models.OfferStatus, acceptedAt, at time.Time) {
	payload := events.OfferEventPayload{
		OfferID: id,
		Status:  string(status),
		At:      at,
	}
	if !acceptedAt.IsZero() {
		payload.AcceptedAt = &acceptedAt
	}
	s.publish(eventType, payload)
}

func (s *Store) publishAction(eventType string, a models.PendingAction, cause error) {
	s.publish(eventType, events.ActionEventPayload{
		ActionID:   a.ID,
		Type:       string(a.Type),
		OfferID:    a.OfferID,
		RetryCount: a.RetryCount,
		Error:      errString(cause),
		At:         s.now(),
	})
}

func (s *Store) publish(eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
