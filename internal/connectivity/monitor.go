// Package connectivity tracks whether the remote offer service is reachable.
package connectivity

import (
	"sync"
	"sync/atomic"

	"offersync/internal/domain"

	"github.com/rs/zerolog"
)

var _ domain.Connectivity = (*Monitor)(nil)

// Monitor holds the online flag and notifies subscribers when it flips.
type Monitor struct {
	offline atomic.Bool
	logger  *zerolog.Logger

	mu     sync.Mutex
	subs   map[int]func(online bool)
	nextID int
}

func NewMonitor(startOffline bool, logger *zerolog.Logger) *Monitor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	m := &Monitor{
		logger: logger,
		subs:   make(map[int]func(bool)),
	}
	m.offline.Store(startOffline)
	return m
}

func (m *Monitor) IsOffline() bool {
	return m.offline.Load()
}

// SetOnline records the current state. Subscribers are called synchronously,
// and only when the state actually changes.
func (m *Monitor) SetOnline(online bool) {
	if m.offline.Swap(!online) == !online {
		return
	}

	m.logger.Info().Bool("online", online).Msg("connectivity changed")

	m.mu.Lock()
	handlers := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(online)
	}
}

// Subscribe registers fn for state changes. The returned func removes it and
// is safe to call more than once.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}
