// internal/httpserver/server.go
//
// HTTP server wiring for the sum-to-ten puzzle.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs,
//     access logging).
//   - Public endpoints: "/", "/health".
//   - Game endpoints (optional auth): create a session, read it, and forward
//     pointer input (drag begin/update/end/cancel), restart, end and, in
//     client tick mode, tick.
//   - A WebSocket per session streaming engine events (routes_ws.go).
//   - Auth + round history (auth.go).
//
// Notes:
//   - Sessions belong to whoever created them: a user id when logged in,
//     otherwise the anonymous cookie id. Only the owner may drive a session.
//   - Drag commands sent while a round is not running are accepted and
//     ignored, so late UI events never surface as errors.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/applegame/internal/board"
	"github.com/robalobadob/applegame/internal/config"
	"github.com/robalobadob/applegame/internal/daily"
	"github.com/robalobadob/applegame/internal/game"
	"github.com/robalobadob/applegame/internal/records"
	"github.com/robalobadob/applegame/internal/session"
	"github.com/robalobadob/applegame/internal/store"
	"github.com/robalobadob/applegame/internal/stream"
)

// Server bundles router, session store and records.
type Server struct {
	r        *chi.Mux
	cfg      config.Config
	store    store.Store
	records  *records.Store
	baseCtx  context.Context // parent of every session's lifetime
	upgrader websocket.Upgrader
	now      func() time.Time

	engineOpts []game.Option // appended to every new engine's options
}

// New constructs a Server, installs middleware, and registers routes.
// Sessions created by the server live until ctx is cancelled or they are
// evicted from st.
func New(ctx context.Context, cfg config.Config, st store.Store, rec *records.Store) *Server {
	s := &Server{
		r:       chi.NewRouter(),
		cfg:     cfg,
		store:   st,
		records: rec,
		baseCtx: ctx,
		now:     time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(hlog.NewHandler(log.Logger))
	s.r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("took", d).
			Msg("request")
	}))
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"applegame","endpoints":["/health","POST /game/new","/game/{id}","/game/{id}/ws","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "sessions": s.store.Len()})
	})

	// Game endpoints: OPTIONAL AUTH (guests can play)
	s.r.Group(func(r chi.Router) {
		r.Use(s.withOptionalAuth())
		r.With(chimw.Timeout(10*time.Second)).Post("/game/new", s.handleNewGame)
		r.Route("/game/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/ws", s.handleStream) // long-lived, no timeout
			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(10 * time.Second))
				r.Get("/", s.handleView)
				r.Post("/drag/begin", s.handleBeginDrag)
				r.Post("/drag/update", s.handleUpdateDrag)
				r.Post("/drag/end", s.handleEndDrag)
				r.Post("/drag/cancel", s.handleCancelDrag)
				r.Post("/restart", s.handleRestart)
				r.Post("/end", s.handleEnd)
				if cfg.TickMode == config.TickClient {
					r.Post("/tick", s.handleTick)
				}
			})
		})
	})

	// Auth + round history
	s.mountAuthRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// CloseSessions force-ends every stored session and stops its stream, so
// rounds still running are journaled as abandoned. Call it on shutdown,
// after the HTTP server has stopped and before the database is closed.
func (s *Server) CloseSessions() {
	n := 0
	s.store.Each(func(sess *session.Session) {
		sess.Close()
		n++
	})
	log.Info().Int("sessions", n).Msg("sessions closed")
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ctxSessionKey is the context key for the session loaded by withSession.
type ctxSessionKey struct{}

// withSession loads /game/{id} and rejects callers who do not own it.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if !s.owns(r, sess) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		ctx := context.WithValue(r.Context(), ctxSessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(ctxSessionKey{}).(*session.Session)
	return sess
}

// owns matches the session owner against the logged-in user and the
// anonymous cookie, so a guest who signs up keeps control of their game.
func (s *Server) owns(r *http.Request, sess *session.Session) bool {
	if me := userFrom(r); me != nil && me.ID == sess.Owner {
		return true
	}
	if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" && c.Value == sess.Owner {
		return true
	}
	return false
}

// ------------------------------ GAME ---------------------------------------

// newGameReq is the payload for POST /game/new.
type newGameReq struct {
	Mode session.Mode `json:"mode"` // "classic" (default) | "daily"
}

// handleNewGame creates a session, starts its first round and returns the
// initial view.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if req.Mode == "" {
		req.Mode = session.ModeClassic
	}
	if req.Mode != session.ModeClassic && req.Mode != session.ModeDaily {
		writeError(w, http.StatusBadRequest, "unknown_mode")
		return
	}

	owner, userID, anonID := "", "", ""
	if me := userFrom(r); me != nil {
		owner, userID = me.ID, me.ID
	} else {
		anonID = s.ensureAnonID(w, r)
		owner = anonID
	}

	id := uuid.NewString()
	logger := log.With().Str("gameId", id).Logger()
	opts := []game.Option{game.WithLogger(logger)}
	if req.Mode == session.ModeDaily {
		opts = append(opts, game.WithRandSource(daily.Today(s.now, s.cfg.DailySalt)))
	}
	opts = append(opts, s.engineOpts...)
	eng := game.New(game.Config{
		Rows:         s.cfg.BoardRows,
		Cols:         s.cfg.BoardCols,
		RoundSeconds: s.cfg.RoundSeconds,
		Layout:       board.DefaultLayout,
	}, opts...)
	sess := session.New(s.baseCtx, id, owner, req.Mode, eng, stream.NewHub(logger))
	if s.records != nil {
		eng.Subscribe(s.journal(sess, userID, anonID, logger))
	}

	if err := sess.Start(); err != nil {
		sess.Close()
		writeError(w, http.StatusInternalServerError, "start_failed")
		return
	}
	if err := s.store.Save(r.Context(), sess); err != nil {
		logger.Error().Err(err).Msg("save session")
		sess.Close()
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	logger.Info().Str("mode", string(req.Mode)).Msg("game created")
	_ = json.NewEncoder(w).Encode(sess.View())
}

// journal mirrors round lifecycle into the records store (best effort).
// It runs under the session lock, so its state needs no extra guarding.
// A guest who signs up mid-session has their earlier rounds claimed; later
// rounds of the same session follow them to the account.
func (s *Server) journal(sess *session.Session, userID, anonID string, logger zerolog.Logger) game.Listener {
	roundID := ""
	owner := func() (string, string) {
		if userID != "" {
			return userID, ""
		}
		claimed, err := s.records.ClaimedUser(context.Background(), sess.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("look up round owner")
		}
		if claimed != "" {
			userID, anonID = claimed, ""
		}
		return userID, anonID
	}
	finish := func(status string) {
		if roundID == "" {
			return
		}
		if err := s.records.FinishRound(context.Background(), roundID, status); err != nil {
			logger.Warn().Err(err).Str("round", roundID).Msg("finish round")
		}
		roundID = ""
	}
	return func(ev game.Event) {
		switch ev.Kind {
		case game.EventStarted, game.EventRestarted:
			finish(records.StatusAbandoned)
			roundID = uuid.NewString()
			uid, aid := owner()
			if err := s.records.StartRound(context.Background(), roundID, sess.ID, uid, aid, string(sess.Mode)); err != nil {
				logger.Warn().Err(err).Msg("start round")
			}
		case game.EventEnded:
			if ev.Forced {
				finish(records.StatusAbandoned)
			} else {
				finish(records.StatusEnded)
			}
		}
	}
}

// handleView returns the full session view.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(sessionFrom(r).View())
}

// pointReq is the payload for drag begin/update.
type pointReq struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func decodePoint(r *http.Request) (board.Point, error) {
	var req pointReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return board.Point{}, err
	}
	if req.X == nil || req.Y == nil {
		return board.Point{}, errors.New("x and y are required")
	}
	return board.Point{X: *req.X, Y: *req.Y}, nil
}

// selectionRes reports the candidate set after a drag command.
type selectionRes struct {
	Candidates []board.Tile `json:"candidates"`
	Sum        int          `json:"sum"`
	Dragging   bool         `json:"dragging"`
}

func (s *Server) handleBeginDrag(w http.ResponseWriter, r *http.Request) {
	p, err := decodePoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_point")
		return
	}
	sess := sessionFrom(r)
	if err := sess.BeginDrag(p); err != nil {
		writeEngineError(w, err)
		return
	}
	v := sess.View()
	_ = json.NewEncoder(w).Encode(selectionRes{Candidates: v.Candidates, Dragging: v.Selection != nil})
}

func (s *Server) handleUpdateDrag(w http.ResponseWriter, r *http.Request) {
	p, err := decodePoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_point")
		return
	}
	sess := sessionFrom(r)
	if _, err := sess.UpdateDrag(p); err != nil {
		writeEngineError(w, err)
		return
	}
	v := sess.View()
	_ = json.NewEncoder(w).Encode(selectionRes{Candidates: v.Candidates, Sum: board.Sum(v.Candidates), Dragging: v.Selection != nil})
}

// endDragRes is the result of releasing a drag.
type endDragRes struct {
	game.Outcome
	Status game.Status `json:"status"`
}

func (s *Server) handleEndDrag(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	out := sess.EndDrag()
	_ = json.NewEncoder(w).Encode(endDragRes{Outcome: out, Status: sess.Status()})
}

func (s *Server) handleCancelDrag(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).CancelDrag()
	_ = json.NewEncoder(w).Encode(selectionRes{Candidates: []board.Tile{}})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(sessionFrom(r).Restart())
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.ForceEnd()
	_ = json.NewEncoder(w).Encode(sess.Status())
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Tick()
	_ = json.NewEncoder(w).Encode(sess.Status())
}

// ------------------------------- errors ------------------------------------

// writeError writes {"error": code} with the given status.
func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, "out_of_range")
	case errors.Is(err, game.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state")
	default:
		writeError(w, http.StatusInternalServerError, "internal")
	}
}
