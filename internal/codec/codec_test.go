package codec

import (
	"encoding/json"
	"testing"
	"time"

	"offersync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffersRoundTrip(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	offers := map[string]models.Offer{
		"o2": {ID: "o2", ExpiresAt: time.Date(2025, 5, 1, 10, 30, 0, 123456789, loc), OfferedAt: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)},
		"o1": {ID: "o1", ExpiresAt: time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC), NextAvailableDate: time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)},
	}

	raw, err := Offers.Marshal(offers)
	require.NoError(t, err)

	got, err := Offers.Unmarshal(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for id, want := range offers {
		assert.Equal(t, want.ID, got[id].ID)
		assert.True(t, want.ExpiresAt.Equal(got[id].ExpiresAt), "expires_at of %s", id)
		assert.True(t, want.OfferedAt.Equal(got[id].OfferedAt), "offered_at of %s", id)
		assert.True(t, want.NextAvailableDate.Equal(got[id].NextAvailableDate), "next_available_date of %s", id)
	}
}

func TestOffersLayout(t *testing.T) {
	raw, err := Offers.Marshal(map[string]models.Offer{
		"b": {ID: "b"},
		"a": {ID: "a"},
	})
	require.NoError(t, err)

	var env struct {
		Version int                  `json:"version"`
		Data    [][2]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, SchemaVersion, env.Version)
	require.Len(t, env.Data, 2)
	assert.JSONEq(t, `"a"`, string(env.Data[0][0]))
	assert.JSONEq(t, `"b"`, string(env.Data[1][0]))
}

func TestStatusesRoundTrip(t *testing.T) {
	statuses := map[string]models.OfferStatus{
		"o1": models.StatusPending,
		"o2": models.StatusAccepted,
		"o3": models.StatusDeclined,
		"o4": models.StatusExpired,
	}
	raw, err := Statuses.Marshal(statuses)
	require.NoError(t, err)

	got, err := Statuses.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, statuses, got)
}

func TestTimestampsRoundTrip(t *testing.T) {
	ts := map[string]time.Time{
		"o1": time.Date(2025, 1, 1, 10, 0, 0, 500, time.UTC),
		"o2": time.Now(),
	}
	raw, err := Timestamps.Marshal(ts)
	require.NoError(t, err)

	got, err := Timestamps.Unmarshal(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for id, want := range ts {
		assert.True(t, want.Equal(got[id]), id)
	}
}

func TestQueueRoundTrip(t *testing.T) {
	queue := []models.PendingAction{
		{ID: "a1", Type: models.ActionAccept, OfferID: "o1", Timestamp: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "a2", Type: models.ActionDecline, OfferID: "o2", Timestamp: time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC), RetryCount: 2},
	}
	raw, err := Queue.Marshal(queue)
	require.NoError(t, err)

	got, err := Queue.Unmarshal(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range queue {
		assert.Equal(t, queue[i].ID, got[i].ID)
		assert.Equal(t, queue[i].Type, got[i].Type)
		assert.Equal(t, queue[i].OfferID, got[i].OfferID)
		assert.Equal(t, queue[i].RetryCount, got[i].RetryCount)
		assert.True(t, queue[i].Timestamp.Equal(got[i].Timestamp))
	}
}

func TestEmptyValues(t *testing.T) {
	t.Run("NilInput", func(t *testing.T) {
		got, err := Queue.Unmarshal(nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("EmptyQueueIsArray", func(t *testing.T) {
		raw, err := Queue.Marshal(nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"version":1,"data":[]}`, string(raw))
	})

	t.Run("EmptyMap", func(t *testing.T) {
		raw, err := Statuses.Marshal(map[string]models.OfferStatus{})
		require.NoError(t, err)
		got, err := Statuses.Unmarshal(raw)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestDecodeErrors(t *testing.T) {
	t.Run("UnknownVersion", func(t *testing.T) {
		_, err := Offers.Unmarshal([]byte(`{"version":2,"data":[]}`))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("LegacyBareArray", func(t *testing.T) {
		_, err := Statuses.Unmarshal([]byte(`[["o1","pending"]]`))
		assert.Error(t, err)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		_, err := Statuses.Unmarshal([]byte(`{"version":1,"data":[["o1","cancelled"]]}`))
		assert.Error(t, err)
	})

	t.Run("MismatchedOfferID", func(t *testing.T) {
		_, err := Offers.Unmarshal([]byte(`{"version":1,"data":[["o1",{"id":"o2"}]]}`))
		assert.Error(t, err)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		_, err := Statuses.Unmarshal([]byte(`{"version":1,"data":[["o1","pending"],["o1","accepted"]]}`))
		assert.Error(t, err)
	})

	t.Run("UnknownActionType", func(t *testing.T) {
		_, err := Queue.Unmarshal([]byte(`{"version":1,"data":[{"id":"a1","type":"cancel","offer_id":"o1"}]}`))
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := Failed.Unmarshal([]byte(`not json`))
		assert.Error(t, err)
	})
}
