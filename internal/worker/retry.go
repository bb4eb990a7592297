package worker

import (
	"time"

	"offersync/internal/models"
)

// RetryPolicy bounds sync attempts. Failed actions wait for the next drain
// trigger; there is no per-action backoff.
type RetryPolicy struct {
	MaxRetries  int
	SettleDelay time.Duration
	// DrainInterval enables periodic drains while online. 0 disables them.
	DrainInterval time.Duration
}

// DefaultRetryPolicy returns the three-strike, two-second-settle policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  models.MaxSyncRetries,
		SettleDelay: models.ReconnectSettleDelay,
	}
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = models.MaxSyncRetries
	}
	if r.SettleDelay < 0 {
		r.SettleDelay = 0
	}
	if r.DrainInterval < 0 {
		r.DrainInterval = 0
	}
	return r
}

// Exhausted reports whether an action with retryCount failures is done.
func (r RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount >= r.MaxRetries
}
