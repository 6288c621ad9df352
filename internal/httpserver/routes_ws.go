// internal/httpserver/routes_ws.go
//
// GET /game/{id}/ws upgrades to a WebSocket bound to one session.
//
// Server -> client:
//   - {"kind":"snapshot", ...view}    on connect
//   - engine events (started, matched, rejected, tick, ended, restarted),
//     broadcast to every socket watching the session
//   - {"kind":"selection","candidates":[...],"sum":n}  reply to begin/update/cancel
//   - {"kind":"error","error":"..."}  reply to a bad command
//
// Client -> server: {"type":"begin|update|end|cancel|restart","x":..,"y":..}

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/applegame/internal/board"
	"github.com/robalobadob/applegame/internal/game"
	"github.com/robalobadob/applegame/internal/session"
	"github.com/robalobadob/applegame/internal/stream"
)

type snapshotMsg struct {
	Kind string `json:"kind"`
	session.View
}

type selectionMsg struct {
	Kind       string       `json:"kind"`
	Candidates []board.Tile `json:"candidates"`
	Sum        int          `json:"sum"`
}

type errorMsg struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		hlog.FromRequest(r).Debug().Err(err).Msg("ws upgrade")
		return
	}
	hello, _ := json.Marshal(snapshotMsg{Kind: "snapshot", View: sess.View()})
	stream.NewClient(sess.Hub(), conn, commandHandler(sess)).Serve(hello)
}

// commandHandler applies socket commands to sess. Matched, rejected and
// restarted results reach the sender through the hub broadcast, so only
// selection changes and errors are replied to directly.
func commandHandler(sess *session.Session) stream.Handler {
	return func(cmd stream.Command) []byte {
		p := board.Point{X: cmd.X, Y: cmd.Y}
		switch cmd.Type {
		case "begin":
			if err := sess.BeginDrag(p); err != nil {
				return commandError(err)
			}
			return selection(sess.View().Candidates)
		case "update":
			tiles, err := sess.UpdateDrag(p)
			if err != nil {
				return commandError(err)
			}
			return selection(tiles)
		case "end":
			sess.EndDrag()
			return nil
		case "cancel":
			sess.CancelDrag()
			return selection(nil)
		case "restart":
			sess.Restart()
			return nil
		default:
			b, _ := json.Marshal(errorMsg{Kind: "error", Error: "unknown_command"})
			return b
		}
	}
}

func selection(tiles []board.Tile) []byte {
	if tiles == nil {
		tiles = []board.Tile{}
	}
	b, _ := json.Marshal(selectionMsg{Kind: "selection", Candidates: tiles, Sum: board.Sum(tiles)})
	return b
}

func commandError(err error) []byte {
	code := "internal"
	switch {
	case errors.Is(err, game.ErrOutOfRange):
		code = "out_of_range"
	case errors.Is(err, game.ErrInvalidState):
		code = "invalid_state"
	}
	b, _ := json.Marshal(errorMsg{Kind: "error", Error: code})
	return b
}

// checkOrigin accepts same-host requests, requests without an Origin
// header, and the configured client origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || strings.EqualFold(origin, s.cfg.ClientOrigin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
