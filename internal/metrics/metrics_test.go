package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_route")
		IncDrain()
		IncPersistFailure("offers")
	})

	before := testutil.ToFloat64(offerTransitions.WithLabelValues("accept"))
	IncTransition("accept")
	assert.Equal(t, before+1, testutil.ToFloat64(offerTransitions.WithLabelValues("accept")))

	before = testutil.ToFloat64(syncActions.WithLabelValues("dropped"))
	IncSyncAction("dropped")
	assert.Equal(t, before+1, testutil.ToFloat64(syncActions.WithLabelValues("dropped")))

	SetQueueDepth(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(syncQueueDepth))
}
