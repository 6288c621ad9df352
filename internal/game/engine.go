// internal/game/engine.go
//
// Core engine for a single sum-to-ten round.
// Responsibilities:
//   - Drive the round state machine: ready → running → ended, and restart.
//   - Track the in-progress drag rectangle and its candidate tiles.
//   - Apply the sum-to-ten rule on release and keep the score.
//   - Count down the timer on each externally driven Tick.
//
// Notes:
//   - The engine is single-threaded and never blocks. Callers that share an
//     engine between goroutines must serialise access (see package session).
//   - Listeners are called synchronously after each state change.

package game

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/robalobadob/applegame/internal/board"
)

const (
	defaultRows         = 8
	defaultCols         = 15
	defaultRoundSeconds = 60
)

// Config fixes the board shape and round length.
type Config struct {
	Rows         int
	Cols         int
	RoundSeconds int
	Layout       board.Layout
}

// DefaultConfig is the reference 8x15 board with a one-minute round.
func DefaultConfig() Config {
	return Config{
		Rows:         defaultRows,
		Cols:         defaultCols,
		RoundSeconds: defaultRoundSeconds,
		Layout:       board.DefaultLayout,
	}
}

// BoardFactory builds the board for a new round.
type BoardFactory func(rows, cols int) *board.Board

// Option customises an Engine.
type Option func(*Engine)

// WithRandSource makes every round draw its tiles from a source returned by
// fn. Use it to seed daily boards or to make tests deterministic.
func WithRandSource(fn func() board.Rand) Option {
	return func(e *Engine) {
		e.newBoard = func(rows, cols int) *board.Board { return board.New(rows, cols, fn()) }
	}
}

// WithBoardFactory replaces board creation entirely.
func WithBoardFactory(f BoardFactory) Option {
	return func(e *Engine) { e.newBoard = f }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithListener registers a listener at construction time.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// drag is the state of an open selection.
type drag struct {
	anchor     board.Point
	current    board.Point
	candidates []board.Tile
}

// Engine runs rounds of the puzzle.
type Engine struct {
	cfg       Config
	newBoard  BoardFactory
	log       zerolog.Logger
	listeners []Listener

	state         State
	round         int
	board         *board.Board
	score         int
	timeRemaining int
	drag          *drag
}

// New constructs an engine in the ready state. Zero fields in cfg fall back
// to DefaultConfig.
func New(cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Rows <= 0 {
		cfg.Rows = def.Rows
	}
	if cfg.Cols <= 0 {
		cfg.Cols = def.Cols
	}
	if cfg.RoundSeconds <= 0 {
		cfg.RoundSeconds = def.RoundSeconds
	}
	if cfg.Layout == (board.Layout{}) {
		cfg.Layout = def.Layout
	}
	e := &Engine{
		cfg:   cfg,
		log:   zerolog.Nop(),
		state: StateReady,
		newBoard: func(rows, cols int) *board.Board {
			return board.New(rows, cols, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Subscribe adds a listener.
func (e *Engine) Subscribe(l Listener) { e.listeners = append(e.listeners, l) }

func (e *Engine) emit(ev Event) {
	ev.Round = e.round
	for _, l := range e.listeners {
		l(ev)
	}
}

// ----------------------------- round lifecycle -----------------------------

// Start moves a ready engine into a running round with a fresh board.
func (e *Engine) Start() error {
	if e.state != StateReady {
		return fmt.Errorf("start from %s: %w", e.state, ErrInvalidState)
	}
	e.begin()
	e.emit(Event{Kind: EventStarted, Score: e.score, TimeRemaining: e.timeRemaining})
	return nil
}

// Restart abandons whatever round is in progress and immediately starts a
// new one.
func (e *Engine) Restart() {
	e.drag = nil
	e.state = StateReady
	e.begin()
	e.emit(Event{Kind: EventRestarted, Score: e.score, TimeRemaining: e.timeRemaining})
}

func (e *Engine) begin() {
	e.round++
	e.board = e.newBoard(e.cfg.Rows, e.cfg.Cols)
	e.score = 0
	e.timeRemaining = e.cfg.RoundSeconds
	e.drag = nil
	e.state = StateRunning
	e.log.Debug().Int("round", e.round).Int("seconds", e.timeRemaining).Msg("round started")
}

// Tick advances the countdown by one second. The round ends exactly once,
// when the countdown reaches zero; later ticks do nothing.
func (e *Engine) Tick() {
	if e.state != StateRunning {
		return
	}
	e.timeRemaining--
	e.emit(Event{Kind: EventTick, Score: e.score, TimeRemaining: e.timeRemaining})
	if e.timeRemaining <= 0 {
		e.timeRemaining = 0
		e.end(false)
	}
}

// ForceEnd ends a running round early, e.g. when the player leaves the game
// view. It does nothing otherwise.
func (e *Engine) ForceEnd() {
	if e.state != StateRunning {
		return
	}
	e.end(true)
}

func (e *Engine) end(forced bool) {
	e.drag = nil
	e.state = StateEnded
	e.log.Debug().Int("round", e.round).Int("score", e.score).Bool("forced", forced).Msg("round ended")
	e.emit(Event{Kind: EventEnded, Score: e.score, TimeRemaining: e.timeRemaining, Forced: forced})
}

// ------------------------------ drag protocol ------------------------------

// BeginDrag opens a selection anchored at p. Pressing on a removed tile
// opens nothing. Ignored unless the round is running.
func (e *Engine) BeginDrag(p board.Point) error {
	if e.state != StateRunning {
		return nil
	}
	if err := e.checkPoint(p); err != nil {
		return err
	}
	if pos, ok := e.cfg.Layout.TileAt(e.cfg.Rows, e.cfg.Cols, p); ok {
		if t, _ := e.board.Tile(pos.Row, pos.Col); !t.Active {
			e.drag = nil
			return nil
		}
	}
	e.drag = &drag{anchor: p, current: p}
	return nil
}

// UpdateDrag moves the free corner of the selection to p and returns the
// new candidate set. Tiles are never changed here.
func (e *Engine) UpdateDrag(p board.Point) ([]board.Tile, error) {
	if e.state != StateRunning || e.drag == nil {
		return nil, nil
	}
	if err := e.checkPoint(p); err != nil {
		return nil, err
	}
	e.drag.current = p
	region := board.RectFromPoints(e.drag.anchor, p)
	e.drag.candidates = e.board.ActiveTilesIntersecting(e.cfg.Layout, region)
	return e.Candidates(), nil
}

// EndDrag releases the selection. A non-empty candidate set summing to
// board.Target is removed and scores one point per tile; anything else is
// rejected without changing the board or score.
func (e *Engine) EndDrag() Outcome {
	if e.state != StateRunning || e.drag == nil {
		return Outcome{Result: ResultIgnored, Score: e.score}
	}
	candidates := e.drag.candidates
	e.drag = nil

	sum := board.Sum(candidates)
	if len(candidates) == 0 || sum != board.Target {
		e.emit(Event{Kind: EventRejected, Score: e.score, TimeRemaining: e.timeRemaining})
		return Outcome{Result: ResultRejected, Tiles: candidates, Sum: sum, Score: e.score}
	}

	if err := e.board.Deactivate(board.Positions(candidates)); err != nil {
		// candidates come from the board itself
		panic(fmt.Sprintf("game: deactivate candidates: %v", err))
	}
	removed := make([]board.Tile, len(candidates))
	for i, t := range candidates {
		t.Active = false
		removed[i] = t
	}
	e.score += len(removed)
	e.log.Debug().Int("tiles", len(removed)).Int("score", e.score).Msg("matched")
	e.emit(Event{Kind: EventMatched, Tiles: removed, Score: e.score, TimeRemaining: e.timeRemaining})
	return Outcome{Result: ResultMatched, Tiles: removed, Sum: sum, Score: e.score}
}

// CancelDrag drops the selection without evaluating it, e.g. when the
// pointer leaves the board.
func (e *Engine) CancelDrag() {
	e.drag = nil
}

func (e *Engine) checkPoint(p board.Point) error {
	if !e.cfg.Layout.Bounds(e.cfg.Rows, e.cfg.Cols).Contains(p) {
		return fmt.Errorf("point (%.1f, %.1f): %w", p.X, p.Y, ErrOutOfRange)
	}
	return nil
}

// --------------------------------- queries ---------------------------------

// Status reports the round summary.
func (e *Engine) Status() Status {
	st := Status{
		State:         e.state,
		Score:         e.score,
		TimeRemaining: e.timeRemaining,
		Round:         e.round,
	}
	if e.board != nil {
		st.Remaining = e.board.RemainingCount()
		st.MovesLeft = e.board.HasMatch()
	}
	return st
}

// Board returns a copy of the current board. Before the first Start the
// snapshot is empty.
func (e *Engine) Board() board.Snapshot {
	if e.board == nil {
		return board.Snapshot{}
	}
	return e.board.Snapshot()
}

// Candidates returns the tiles under the open selection.
func (e *Engine) Candidates() []board.Tile {
	if e.drag == nil {
		return nil
	}
	return append([]board.Tile(nil), e.drag.candidates...)
}

// Selection returns the normalized selection rectangle, if a drag is open.
func (e *Engine) Selection() (board.Rect, bool) {
	if e.drag == nil {
		return board.Rect{}, false
	}
	return board.RectFromPoints(e.drag.anchor, e.drag.current), true
}

// Dragging reports whether a selection is open.
func (e *Engine) Dragging() bool { return e.drag != nil }

// Layout returns the tile geometry used for hit-testing.
func (e *Engine) Layout() board.Layout { return e.cfg.Layout }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }
