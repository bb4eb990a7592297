package worker

import (
	"context"
	"sync"
	"time"

	"offersync/internal/domain"
	"offersync/internal/models"

	"github.com/rs/zerolog"
)

// Sweeper expires overdue offers on a fixed interval regardless of
// connectivity. It runs at most once per lifetime.
type Sweeper struct {
	target   domain.ExpirationChecker
	interval time.Duration
	logger   *zerolog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSweeper(target domain.ExpirationChecker, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = models.ExpirationSweepInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Sweeper{target: target, interval: interval, logger: logger}
}

// Start launches the ticker. It reports false if the sweeper was already
// started, including after Stop.
func (s *Sweeper) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)

	s.logger.Info().Dur("interval", s.interval).Msg("expiration sweeper started")
	return true
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.target.CheckExpiredOffers(ctx); n > 0 {
				s.logger.Debug().Int("expired", n).Msg("sweep")
			}
		}
	}
}

// Stop halts the ticker and waits for an in-progress sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info().Msg("expiration sweeper stopped")
}
