// Package codec holds the versioned on-disk formats of the offer store keys.
//
// Every key is written as a JSON envelope:
//
//	{"version": 1, "data": ...}
//
// Maps are stored as lists of [id, value] pairs sorted by id. Timestamps use
// RFC 3339 with nanoseconds. A reader that sees a version it does not know
// returns ErrUnsupportedVersion instead of guessing.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"offersync/internal/models"
)

// SchemaVersion is the version written by this build for every key.
const SchemaVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported schema version")

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Codec converts one persisted key between its in-memory and stored form.
type Codec[T any] struct {
	Key     string
	Version int
	encode  func(T) (interface{}, error)
	decode  func(json.RawMessage) (T, error)
}

// Marshal wraps the encoded value in a versioned envelope.
func (c Codec[T]) Marshal(v T) ([]byte, error) {
	data, err := c.encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Key, err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Key, err)
	}
	return json.Marshal(envelope{Version: c.Version, Data: raw})
}

// Unmarshal decodes a stored value. An empty input yields the zero value.
func (c Codec[T]) Unmarshal(raw []byte) (T, error) {
	var zero T
	if len(raw) == 0 {
		return zero, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("decode %s envelope: %w", c.Key, err)
	}
	if env.Version != c.Version {
		return zero, fmt.Errorf("decode %s: %w: got %d, want %d", c.Key, ErrUnsupportedVersion, env.Version, c.Version)
	}
	v, err := c.decode(env.Data)
	if err != nil {
		return zero, fmt.Errorf("decode %s: %w", c.Key, err)
	}
	return v, nil
}

var (
	Offers = Codec[map[string]models.Offer]{
		Key:     models.KeyOffers,
		Version: SchemaVersion,
		encode:  encodePairs[models.Offer],
		decode: func(raw json.RawMessage) (map[string]models.Offer, error) {
			m, err := decodePairs[models.Offer](raw)
			if err != nil {
				return nil, err
			}
			for id, o := range m {
				if o.ID != id {
					return nil, fmt.Errorf("offer pair key %q does not match offer id %q", id, o.ID)
				}
			}
			return m, nil
		},
	}

	Statuses = Codec[map[string]models.OfferStatus]{
		Key:     models.KeyOfferStatuses,
		Version: SchemaVersion,
		encode:  encodePairs[models.OfferStatus],
		decode: func(raw json.RawMessage) (map[string]models.OfferStatus, error) {
			m, err := decodePairs[models.OfferStatus](raw)
			if err != nil {
				return nil, err
			}
			for id, s := range m {
				if !s.Valid() {
					return nil, fmt.Errorf("offer %q has unknown status %q", id, s)
				}
			}
			return m, nil
		},
	}

	Timestamps = Codec[map[string]time.Time]{
		Key:     models.KeyAcceptanceTimestamps,
		Version: SchemaVersion,
		encode:  encodePairs[time.Time],
		decode:  decodePairs[time.Time],
	}

	Queue = Codec[[]models.PendingAction]{
		Key:     models.KeySyncQueue,
		Version: SchemaVersion,
		encode: func(q []models.PendingAction) (interface{}, error) {
			if q == nil {
				q = []models.PendingAction{}
			}
			return q, nil
		},
		decode: func(raw json.RawMessage) ([]models.PendingAction, error) {
			var q []models.PendingAction
			if err := json.Unmarshal(raw, &q); err != nil {
				return nil, err
			}
			for _, a := range q {
				if a.Type != models.ActionAccept && a.Type != models.ActionDecline {
					return nil, fmt.Errorf("action %q has unknown type %q", a.ID, a.Type)
				}
			}
			return q, nil
		},
	}

	Failed = Codec[[]models.FailedAction]{
		Key:     models.KeyFailedActions,
		Version: SchemaVersion,
		encode: func(f []models.FailedAction) (interface{}, error) {
			if f == nil {
				f = []models.FailedAction{}
			}
			return f, nil
		},
		decode: func(raw json.RawMessage) ([]models.FailedAction, error) {
			var f []models.FailedAction
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, err
			}
			return f, nil
		},
	}
)

func encodePairs[V any](m map[string]V) (interface{}, error) {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs := make([][2]interface{}, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, [2]interface{}{id, m[id]})
	}
	return pairs, nil
}

func decodePairs[V any](raw json.RawMessage) (map[string]V, error) {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, err
	}

	m := make(map[string]V, len(pairs))
	for i, p := range pairs {
		var id string
		if err := json.Unmarshal(p[0], &id); err != nil {
			return nil, fmt.Errorf("pair %d: id: %w", i, err)
		}
		var v V
		if err := json.Unmarshal(p[1], &v); err != nil {
			return nil, fmt.Errorf("pair %d (%s): %w", i, id, err)
		}
		if _, dup := m[id]; dup {
			return nil, fmt.Errorf("pair %d: duplicate id %q", i, id)
		}
		m[id] = v
	}
	return m, nil
}
