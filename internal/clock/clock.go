// Package clock drives the round timers of every live session.
// The engine only counts seconds when told to; this is the thing that tells
// it, once per interval, for every session in the store.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/applegame/internal/session"
)

// TickRate is one game second.
const TickRate = time.Second

// Sessions is the part of the store the clock needs.
type Sessions interface {
	Each(fn func(*session.Session))
}

// Ticker calls Tick on every session once per interval.
type Ticker struct {
	sessions Sessions
	interval time.Duration
	log      zerolog.Logger
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewTicker creates a ticker; interval <= 0 means TickRate.
func NewTicker(sessions Sessions, interval time.Duration, log zerolog.Logger) *Ticker {
	if interval <= 0 {
		interval = TickRate
	}
	return &Ticker{
		sessions: sessions,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled or Stop is called. Call in a goroutine.
func (t *Ticker) Run(ctx context.Context) {
	t.log.Info().Dur("interval", t.interval).Msg("clock started")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("clock stopped by context")
			return
		case <-t.stopChan:
			t.log.Info().Msg("clock stopped")
			return
		case <-ticker.C:
			t.TickAll()
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// TickAll advances every session by one second. Sessions that are not
// running ignore the tick.
func (t *Ticker) TickAll() {
	n := 0
	t.sessions.Each(func(s *session.Session) {
		s.Tick()
		n++
	})
	t.log.Trace().Int("sessions", n).Msg("tick")
}
