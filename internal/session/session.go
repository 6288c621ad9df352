// internal/session/session.go
//
// A Session is one player's game: an engine, its owner, and the stream hub
// that mirrors the engine's events to connected renderers.
//
// The engine is single-threaded. HTTP handlers, WebSocket readers and the
// server clock all reach it through a Session, whose mutex makes every
// command apply atomically and in arrival order.

package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robalobadob/applegame/internal/board"
	"github.com/robalobadob/applegame/internal/game"
	"github.com/robalobadob/applegame/internal/stream"
)

// Mode selects how boards are dealt.
type Mode string

const (
	ModeClassic Mode = "classic"
	ModeDaily   Mode = "daily"
)

// Session holds the state of a single game session.
type Session struct {
	ID        string
	Owner     string // user id, or anonymous cookie id for guests
	Mode      Mode
	CreatedAt time.Time

	mu     sync.Mutex
	engine *game.Engine
	hub    *stream.Hub
	cancel context.CancelFunc
}

// View is a consistent read of the session for renderers.
type View struct {
	GameID     string         `json:"gameId"`
	Mode       Mode           `json:"mode"`
	Layout     board.Layout   `json:"layout"`
	Status     game.Status    `json:"status"`
	Board      board.Snapshot `json:"board"`
	Candidates []board.Tile   `json:"candidates"`
	Selection  *board.Rect    `json:"selection,omitempty"`
}

// New wraps eng and starts the session's stream hub. Events emitted by the
// engine are broadcast to the hub as JSON. The hub stops when ctx is done or
// Close is called.
func New(ctx context.Context, id, owner string, mode Mode, eng *game.Engine, hub *stream.Hub) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        id,
		Owner:     owner,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
		engine:    eng,
		hub:       hub,
		cancel:    cancel,
	}
	eng.Subscribe(func(ev game.Event) {
		if b, err := json.Marshal(ev); err == nil {
			hub.Broadcast(b)
		}
	})
	go hub.Run(ctx)
	return s
}

// Hub returns the session's stream hub.
func (s *Session) Hub() *stream.Hub { return s.hub }

// Start begins the first round.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Start()
}

// Restart throws away the current round and deals a new one.
func (s *Session) Restart() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Restart()
	return s.view()
}

// BeginDrag opens a selection at p.
func (s *Session) BeginDrag(p board.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.BeginDrag(p)
}

// UpdateDrag moves the selection corner to p and returns the candidates.
func (s *Session) UpdateDrag(p board.Point) ([]board.Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.UpdateDrag(p)
}

// EndDrag releases the selection.
func (s *Session) EndDrag() game.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.EndDrag()
}

// CancelDrag drops the selection.
func (s *Session) CancelDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.CancelDrag()
}

// Tick advances the round timer by one second.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Tick()
}

// ForceEnd ends a running round early.
func (s *Session) ForceEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.ForceEnd()
}

// Status reports the round summary.
func (s *Session) Status() game.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Status()
}

// View returns a full snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() View {
	v := View{
		GameID:     s.ID,
		Mode:       s.Mode,
		Layout:     s.engine.Layout(),
		Status:     s.engine.Status(),
		Board:      s.engine.Board(),
		Candidates: s.engine.Candidates(),
	}
	if v.Candidates == nil {
		v.Candidates = []board.Tile{}
	}
	if r, ok := s.engine.Selection(); ok {
		v.Selection = &r
	}
	return v
}

// Close ends any running round and stops the hub.
func (s *Session) Close() {
	s.ForceEnd()
	s.hub.Stop()
	s.cancel()
}
