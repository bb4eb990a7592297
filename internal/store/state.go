package store

import (
	"fmt"
	"sort"
	"time"

	"offersync/internal/models"
)

// state is everything the store owns. It is only touched through apply.
type state struct {
	offers     map[string]models.Offer
	statuses   map[string]models.OfferStatus
	acceptedAt map[string]time.Time
	queue      []models.PendingAction
	failed     []models.FailedAction
}

func newState() state {
	return state{
		offers:     make(map[string]models.Offer),
		statuses:   make(map[string]models.OfferStatus),
		acceptedAt: make(map[string]time.Time),
	}
}

func (s *state) clone() state {
	c := state{
		offers:     make(map[string]models.Offer, len(s.offers)),
		statuses:   make(map[string]models.OfferStatus, len(s.statuses)),
		acceptedAt: make(map[string]time.Time, len(s.acceptedAt)),
		queue:      append([]models.PendingAction(nil), s.queue...),
		failed:     append([]models.FailedAction(nil), s.failed...),
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	for k, v := range s.statuses {
		c.statuses[k] = v
	}
	for k, v := range s.acceptedAt {
		c.acceptedAt[k] = v
	}
	return c
}

// transition is the closed set of state changes. Only types in this file
// implement it.
type transition interface {
	transition()
}

type (
	offersReplaced struct {
		offers []models.Offer
		now    time.Time
	}
	offerAdded struct {
		offer models.Offer
		now   time.Time
	}
	offerAccepted struct {
		id string
		at time.Time
	}
	offerDeclined struct {
		id string
	}
	offersExpired struct {
		ids []string
	}
	acceptUndone struct {
		id string
	}
	actionQueued struct {
		action models.PendingAction
	}
	actionCompleted struct {
		id string
	}
	actionRetried struct {
		id string
	}
	actionDropped struct {
		id        string
		lastError string
		at        time.Time
	}
	failedCleared struct{}
)

func (offersReplaced) transition()  {}
func (offerAdded) transition()      {}
func (offerAccepted) transition()   {}
func (offerDeclined) transition()   {}
func (offersExpired) transition()   {}
func (acceptUndone) transition()    {}
func (actionQueued) transition()    {}
func (actionCompleted) transition() {}
func (actionRetried) transition()   {}
func (actionDropped) transition()   {}
func (failedCleared) transition()   {}

// apply mutates s. Preconditions are checked by the caller; apply only keeps
// the status, timestamp and queue maps consistent with each other.
func (s *state) apply(t transition) {
	switch t := t.(type) {
	case offersReplaced:
		next := make(map[string]models.Offer, len(t.offers))
		for _, o := range t.offers {
			if o.ID == "" {
				continue
			}
			next[o.ID] = o
		}
		for id, o := range next {
			current, known := s.statuses[id]
			switch {
			case o.IsExpiredAt(t.now) && current != models.StatusDeclined:
				s.statuses[id] = models.StatusExpired
				delete(s.acceptedAt, id)
			case !known:
				s.statuses[id] = models.StatusPending
			}
		}
		for id := range s.statuses {
			if _, ok := next[id]; !ok {
				delete(s.statuses, id)
			}
		}
		for id := range s.acceptedAt {
			if _, ok := next[id]; !ok {
				delete(s.acceptedAt, id)
			}
		}
		s.offers = next

	case offerAdded:
		s.offers[t.offer.ID] = t.offer
		if _, known := s.statuses[t.offer.ID]; !known {
			if t.offer.IsExpiredAt(t.now) {
				s.statuses[t.offer.ID] = models.StatusExpired
			} else {
				s.statuses[t.offer.ID] = models.StatusPending
			}
		}

	case offerAccepted:
		s.statuses[t.id] = models.StatusAccepted
		s.acceptedAt[t.id] = t.at

	case offerDeclined:
		s.statuses[t.id] = models.StatusDeclined
		delete(s.acceptedAt, t.id)

	case offersExpired:
		for _, id := range t.ids {
			s.statuses[id] = models.StatusExpired
			delete(s.acceptedAt, id)
		}

	case acceptUndone:
		s.statuses[t.id] = models.StatusPending
		delete(s.acceptedAt, t.id)
		kept := s.queue[:0]
		for _, a := range s.queue {
			if a.OfferID == t.id && a.Type == models.ActionAccept {
				continue
			}
			kept = append(kept, a)
		}
		s.queue = kept

	case actionQueued:
		s.queue = append(s.queue, t.action)

	case actionCompleted:
		if i := s.actionIndex(t.id); i >= 0 {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
		}

	case actionRetried:
		if i := s.actionIndex(t.id); i >= 0 {
			s.queue[i].RetryCount++
		}

	case actionDropped:
		if i := s.actionIndex(t.id); i >= 0 {
			a := s.queue[i]
			a.RetryCount++
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.failed = append(s.failed, models.FailedAction{
				PendingAction: a,
				LastError:     t.lastError,
				FailedAt:      t.at,
			})
		}

	case failedCleared:
		s.failed = nil

	default:
		panic(fmt.Sprintf("store: unhandled transition %T", t))
	}
}

func (s *state) actionIndex(id string) int {
	for i, a := range s.queue {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s *state) hasQueued(typ models.ActionType, offerID string) bool {
	for _, a := range s.queue {
		if a.Type == typ && a.OfferID == offerID {
			return true
		}
	}
	return false
}

// normalize restores the one-status-per-offer and accepted-timestamp rules on state read back from
// storage, where keys are written independently.
func (s *state) normalize() {
	for id := range s.offers {
		if _, ok := s.statuses[id]; !ok {
			s.statuses[id] = models.StatusPending
		}
	}
	for id := range s.statuses {
		if _, ok := s.offers[id]; !ok {
			delete(s.statuses, id)
		}
	}
	for id := range s.acceptedAt {
		if s.statuses[id] != models.StatusAccepted {
			delete(s.acceptedAt, id)
		}
	}
}

func (s *state) offersWithStatus(status models.OfferStatus) []models.Offer {
	out := make([]models.Offer, 0)
	for id, st := range s.statuses {
		if st != status {
			continue
		}
		if o, ok := s.offers[id]; ok {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OfferedAt.Equal(out[j].OfferedAt) {
			return out[i].OfferedAt.Before(out[j].OfferedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
