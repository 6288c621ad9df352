// internal/game/types.go
//
// Core type definitions for the round engine.
// Defines:
//   - State: ready/running/ended.
//   - Status: the round summary handed to renderers.
//   - Event: notifications emitted to listeners.
//   - Outcome: the result of releasing a drag.

package game

import (
	"errors"

	"github.com/robalobadob/applegame/internal/board"
)

// State is the coarse round state.
type State string

const (
	StateReady   State = "ready"
	StateRunning State = "running"
	StateEnded   State = "ended"
)

var (
	// ErrInvalidState is returned by commands that are not valid in the
	// current round state. Drag commands never return it; they are ignored.
	ErrInvalidState = errors.New("invalid state")

	// ErrOutOfRange is returned for points outside the board surface.
	ErrOutOfRange = board.ErrOutOfRange
)

// Status summarises a round.
type Status struct {
	State         State `json:"state"`
	Score         int   `json:"score"`
	TimeRemaining int   `json:"timeRemaining"`
	Remaining     int   `json:"remaining"` // active tiles left
	MovesLeft     bool  `json:"movesLeft"`
	Round         int   `json:"round"` // 1 for the first round, +1 per restart
}

// EventKind names a notification.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventMatched   EventKind = "matched"
	EventRejected  EventKind = "rejected"
	EventTick      EventKind = "tick"
	EventEnded     EventKind = "ended"
	EventRestarted EventKind = "restarted"
)

// Event is delivered to listeners after the engine state is consistent.
type Event struct {
	Kind          EventKind    `json:"kind"`
	Round         int          `json:"round"`
	Tiles         []board.Tile `json:"tiles,omitempty"` // removed tiles for EventMatched
	Score         int          `json:"score"`
	TimeRemaining int          `json:"timeRemaining"`
	Forced        bool         `json:"forced,omitempty"` // EventEnded caused by ForceEnd
}

// Listener receives engine events synchronously.
type Listener func(Event)

// Result classifies a released drag.
type Result string

const (
	ResultMatched  Result = "matched"
	ResultRejected Result = "rejected"
	ResultIgnored  Result = "ignored" // no drag was open, or the round is not running
)

// Outcome describes what EndDrag did.
type Outcome struct {
	Result Result       `json:"result"`
	Tiles  []board.Tile `json:"tiles,omitempty"`
	Sum    int          `json:"sum"`
	Score  int          `json:"score"`
}
