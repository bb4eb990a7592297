package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"offersync/internal/domain"
	"offersync/internal/metrics"
	"offersync/internal/models"

	"github.com/rs/zerolog"
)

// DrainResult summarizes one Drain call.
type DrainResult struct {
	Synced  int `json:"synced"`
	Retried int `json:"retried"`
	Dropped int `json:"dropped"`
	// Skipped counts snapshot entries removed from the queue before dispatch.
	Skipped int `json:"skipped"`
	// Offline is set when the drain stopped or never ran because the
	// connection was down.
	Offline bool `json:"offline"`
	// Coalesced is set when another drain was running; it will make one more
	// pass instead.
	Coalesced bool `json:"coalesced"`
}

func (r *DrainResult) add(o DrainResult) {
	r.Synced += o.Synced
	r.Retried += o.Retried
	r.Dropped += o.Dropped
	r.Skipped += o.Skipped
	r.Offline = r.Offline || o.Offline
}

// SyncWorker replays queued accept/decline actions against the gateway.
type SyncWorker struct {
	queue   domain.ActionQueue
	gateway domain.OfferGateway
	conn    domain.Connectivity
	policy  RetryPolicy
	logger  *zerolog.Logger

	mu          sync.Mutex
	draining    bool
	rerun       bool
	started     bool
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	settle      *time.Timer
	settleGen   uint64
	wg          sync.WaitGroup
}

func NewSyncWorker(queue domain.ActionQueue, gateway domain.OfferGateway, conn domain.Connectivity, policy RetryPolicy, logger *zerolog.Logger) *SyncWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SyncWorker{
		queue:   queue,
		gateway: gateway,
		conn:    conn,
		policy:  policy.withDefaults(),
		logger:  logger,
	}
}

// Start subscribes to connectivity changes and, when configured, starts
// periodic drains. It is a no-op after the first call.
func (w *SyncWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	if w.conn != nil {
		unsubscribe := w.conn.Subscribe(w.onConnectivity)
		w.mu.Lock()
		w.unsubscribe = unsubscribe
		w.mu.Unlock()
	}

	if w.policy.DrainInterval > 0 {
		w.wg.Add(1)
		go w.pollLoop(w.ctx)
	}

	w.logger.Info().
		Dur("settle_delay", w.policy.SettleDelay).
		Int("max_retries", w.policy.MaxRetries).
		Msg("sync worker started")
}

// Stop cancels a pending settle timer and waits for running drains.
func (w *SyncWorker) Stop() {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.settle != nil {
		w.settle.Stop()
		w.settle = nil
	}
	unsubscribe := w.unsubscribe
	w.cancel()
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	w.wg.Wait()
	w.logger.Info().Msg("sync worker stopped")
}

func (w *SyncWorker) onConnectivity(online bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.settleGen++
	if w.settle != nil {
		w.settle.Stop()
		w.settle = nil
	}
	if !online || w.stopped {
		return
	}

	gen := w.settleGen
	w.settle = time.AfterFunc(w.policy.SettleDelay, func() { w.settled(gen) })
	w.logger.Debug().Dur("delay", w.policy.SettleDelay).Msg("reconnected, drain scheduled")
}

func (w *SyncWorker) settled(gen uint64) {
	w.mu.Lock()
	if gen != w.settleGen || w.stopped {
		w.mu.Unlock()
		return
	}
	w.settle = nil
	ctx := w.ctx
	w.wg.Add(1)
	w.mu.Unlock()

	defer w.wg.Done()
	w.Drain(ctx)
}

func (w *SyncWorker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.policy.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(w.queue.PendingActions()) > 0 {
				w.Drain(ctx)
			}
		}
	}
}

// Drain dispatches every queued action once. It never runs concurrently with
// itself: a call made while a drain is running returns at once with
// Coalesced set, and the running drain makes one more pass over actions it
// has not tried yet. Nothing is attempted while offline.
func (w *SyncWorker) Drain(ctx context.Context) DrainResult {
	if w.offline() {
		return DrainResult{Offline: true}
	}

	w.mu.Lock()
	if w.draining {
		w.rerun = true
		w.mu.Unlock()
		return DrainResult{Coalesced: true}
	}
	w.draining = true
	w.mu.Unlock()

	attempted := make(map[string]struct{})
	var total DrainResult
	for {
		total.add(w.drainPass(ctx, attempted))

		w.mu.Lock()
		again := w.rerun && !total.Offline && ctx.Err() == nil
		w.rerun = false
		if !again {
			w.draining = false
			w.mu.Unlock()
			break
		}
		w.mu.Unlock()
	}

	metrics.IncDrain()
	if total.Synced+total.Retried+total.Dropped > 0 {
		w.logger.Info().
			Int("synced", total.Synced).
			Int("retried", total.Retried).
			Int("dropped", total.Dropped).
			Int("skipped", total.Skipped).
			Msg("sync queue drained")
	}
	return total
}

func (w *SyncWorker) drainPass(ctx context.Context, attempted map[string]struct{}) DrainResult {
	var res DrainResult

	for _, action := range w.queue.PendingActions() {
		if _, done := attempted[action.ID]; done {
			continue
		}
		if ctx.Err() != nil {
			return res
		}
		if w.offline() {
			res.Offline = true
			return res
		}
		if !w.queue.HasAction(action.ID) {
			res.Skipped++
			continue
		}
		attempted[action.ID] = struct{}{}

		if err := w.dispatch(ctx, action); err != nil {
			event := w.logger.Debug()
			if w.policy.Exhausted(action.RetryCount + 1) {
				event = w.logger.Warn()
			}
			event.
				Err(err).
				Str("action_id", action.ID).
				Str("offer_id", action.OfferID).
				Str("type", string(action.Type)).
				Int("attempt", action.RetryCount+1).
				Int("max_retries", w.policy.MaxRetries).
				Msg("sync action failed")

			if w.queue.FailAction(ctx, action.ID, err) {
				res.Dropped++
			} else {
				res.Retried++
			}
			continue
		}

		w.queue.CompleteAction(ctx, action.ID)
		res.Synced++
	}
	return res
}

// dispatch runs one remote call. The call outlives Stop so that shutdown never
// turns an in-flight attempt into a counted failure.
func (w *SyncWorker) dispatch(ctx context.Context, action models.PendingAction) error {
	ctx = context.WithoutCancel(ctx)
	switch action.Type {
	case models.ActionAccept:
		return w.gateway.AcceptOffer(ctx, action.OfferID)
	case models.ActionDecline:
		return w.gateway.DeclineOffer(ctx, action.OfferID)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

func (w *SyncWorker) offline() bool {
	return w.conn != nil && w.conn.IsOffline()
}
