package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/robalobadob/applegame/internal/board"
	"github.com/robalobadob/applegame/internal/config"
	"github.com/robalobadob/applegame/internal/game"
	"github.com/robalobadob/applegame/internal/records"
	"github.com/robalobadob/applegame/internal/session"
	"github.com/robalobadob/applegame/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test_secret",
		JWTExpiresDays: 1,
		CookieName:     "applegame_token",
		ClientOrigin:   "http://localhost:5173",
		DailySalt:      "test_salt",
		BoardRows:      2,
		BoardCols:      2,
		RoundSeconds:   3,
		TickMode:       config.TickServer,
		MaxSessions:    16,
	}
}

// fixture is a running test server with its database.
type fixture struct {
	srv *Server
	ts  *httptest.Server
	db  *sql.DB
}

// newTestServer serves a 2x2 board of [[1,9],[4,6]] for every game.
func newTestServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	return newFixture(t, cfg).ts
}

// newFixture applies setup to the server before it starts serving.
func newFixture(t *testing.T, cfg config.Config, setup ...func(*Server)) fixture {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_foreign_keys=on")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := records.Migrate(ctx, db); err != nil {
		t.Fatal(err)
	}
	st, err := store.NewMemoryStore(cfg.MaxSessions)
	if err != nil {
		t.Fatal(err)
	}

	s := New(ctx, cfg, st, records.NewStore(db))
	s.engineOpts = []game.Option{game.WithBoardFactory(func(int, int) *board.Board {
		b, _ := board.FromValues([][]int{{1, 9}, {4, 6}})
		return b
	})}
	for _, fn := range setup {
		fn(s)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return fixture{srv: s, ts: ts, db: db}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

// post sends body as JSON and decodes the response into out (if non-nil).
func post(t *testing.T, c *http.Client, url string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	res, err := c.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return res.StatusCode
}

func get(t *testing.T, c *http.Client, url string, out any) int {
	t.Helper()
	res, err := c.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return res.StatusCode
}

func newGame(t *testing.T, ts *httptest.Server, c *http.Client, mode string) session.View {
	t.Helper()
	var v session.View
	if code := post(t, c, ts.URL+"/game/new", map[string]string{"mode": mode}, &v); code != http.StatusOK {
		t.Fatalf("new game status = %d", code)
	}
	return v
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func TestNewGameAndMatch(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := newClient(t)

	v := newGame(t, ts, c, "")
	if v.GameID == "" || v.Mode != session.ModeClassic {
		t.Fatalf("view = %+v", v)
	}
	if v.Status.State != game.StateRunning || v.Status.TimeRemaining != 3 || v.Status.Remaining != 4 {
		t.Fatalf("status = %+v", v.Status)
	}
	if v.Board.Rows != 2 || v.Board.Cols != 2 {
		t.Fatalf("board = %+v", v.Board)
	}

	base := ts.URL + "/game/" + v.GameID
	var sel selectionRes
	if code := post(t, c, base+"/drag/begin", point{28, 28}, &sel); code != http.StatusOK || !sel.Dragging {
		t.Fatalf("begin = %d %+v", code, sel)
	}
	if code := post(t, c, base+"/drag/update", point{72, 28}, &sel); code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}
	if len(sel.Candidates) != 2 || sel.Sum != 10 {
		t.Fatalf("update = %+v", sel)
	}

	var out endDragRes
	if code := post(t, c, base+"/drag/end", nil, &out); code != http.StatusOK {
		t.Fatalf("end status = %d", code)
	}
	if out.Result != game.ResultMatched || out.Score != 2 || out.Status.Remaining != 2 {
		t.Fatalf("end = %+v", out)
	}

	// A second release with no open drag is ignored.
	if post(t, c, base+"/drag/end", nil, &out); out.Result != game.ResultIgnored {
		t.Fatalf("second end = %+v", out)
	}

	if code := get(t, c, base+"/", &v); code != http.StatusOK {
		t.Fatalf("view status = %d", code)
	}
	if v.Board.Tiles[0][0].Active || !v.Board.Tiles[1][0].Active {
		t.Fatalf("tiles after match = %+v", v.Board.Tiles)
	}
}

func TestRejectedDragKeepsBoard(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := newClient(t)
	base := ts.URL + "/game/" + newGame(t, ts, c, "classic").GameID

	post(t, c, base+"/drag/begin", point{5, 5}, nil)
	post(t, c, base+"/drag/update", point{95, 95}, nil)
	var out endDragRes
	post(t, c, base+"/drag/end", nil, &out)
	if out.Result != game.ResultRejected || out.Sum != 20 || out.Status.Remaining != 4 || out.Score != 0 {
		t.Fatalf("end = %+v", out)
	}
}

func TestCancelDrag(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := newClient(t)
	base := ts.URL + "/game/" + newGame(t, ts, c, "classic").GameID

	post(t, c, base+"/drag/begin", point{28, 28}, nil)
	post(t, c, base+"/drag/update", point{72, 28}, nil)
	var sel selectionRes
	if code := post(t, c, base+"/drag/cancel", nil, &sel); code != http.StatusOK || len(sel.Candidates) != 0 {
		t.Fatalf("cancel = %d %+v", code, sel)
	}
	var out endDragRes
	post(t, c, base+"/drag/end", nil, &out)
	if out.Result != game.ResultIgnored || out.Status.Remaining != 4 {
		t.Fatalf("end after cancel = %+v", out)
	}
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t, testConfig())
	owner := newClient(t)
	base := ts.URL + "/game/" + newGame(t, ts, owner, "classic").GameID

	if code := get(t, owner, ts.URL+"/game/does-not-exist/", nil); code != http.StatusNotFound {
		t.Errorf("unknown session = %d", code)
	}
	if code := get(t, newClient(t), base+"/", nil); code != http.StatusForbidden {
		t.Errorf("other player = %d", code)
	}
	if code := post(t, owner, base+"/drag/begin", point{1000, 5}, nil); code != http.StatusBadRequest {
		t.Errorf("out of range = %d", code)
	}
	if code := post(t, owner, base+"/drag/begin", map[string]int{"x": 1}, nil); code != http.StatusBadRequest {
		t.Errorf("missing y = %d", code)
	}
	if code := post(t, owner, ts.URL+"/game/new", map[string]string{"mode": "blitz"}, nil); code != http.StatusBadRequest {
		t.Errorf("unknown mode = %d", code)
	}
	// tick is only routed in client tick mode
	if code := post(t, owner, base+"/tick", nil, nil); code != http.StatusNotFound {
		t.Errorf("tick in server mode = %d", code)
	}
}

func TestClientTickModeEndsRound(t *testing.T) {
	cfg := testConfig()
	cfg.TickMode = config.TickClient
	ts := newTestServer(t, cfg)
	c := newClient(t)
	base := ts.URL + "/game/" + newGame(t, ts, c, "classic").GameID

	var st game.Status
	for i := 0; i < 3; i++ {
		if code := post(t, c, base+"/tick", nil, &st); code != http.StatusOK {
			t.Fatalf("tick status = %d", code)
		}
	}
	if st.State != game.StateEnded || st.TimeRemaining != 0 {
		t.Fatalf("status after 3 ticks = %+v", st)
	}
	// drags after the end are accepted and ignored
	var sel selectionRes
	if code := post(t, c, base+"/drag/begin", point{28, 28}, &sel); code != http.StatusOK || sel.Dragging {
		t.Fatalf("begin after end = %d %+v", code, sel)
	}

	var v session.View
	post(t, c, base+"/restart", nil, &v)
	if v.Status.State != game.StateRunning || v.Status.Round != 2 || v.Status.TimeRemaining != 3 {
		t.Fatalf("restart = %+v", v.Status)
	}
}

func TestForceEnd(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := newClient(t)
	base := ts.URL + "/game/" + newGame(t, ts, c, "daily").GameID

	var st game.Status
	if code := post(t, c, base+"/end", nil, &st); code != http.StatusOK || st.State != game.StateEnded {
		t.Fatalf("end = %d %+v", code, st)
	}
}

func TestAuthClaimsGuestRounds(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := newClient(t)
	id := newGame(t, ts, c, "classic").GameID

	if code := get(t, c, ts.URL+"/auth/me", nil); code != http.StatusUnauthorized {
		t.Fatalf("me before signup = %d", code)
	}
	creds := credentials{Username: "dana", Password: "password1"}
	if code := post(t, c, ts.URL+"/auth/signup", creds, nil); code != http.StatusCreated {
		t.Fatalf("signup = %d", code)
	}
	if code := post(t, newClient(t), ts.URL+"/auth/signup", creds, nil); code != http.StatusConflict {
		t.Fatalf("duplicate signup = %d", code)
	}

	var me authUser
	if code := get(t, c, ts.URL+"/auth/me", &me); code != http.StatusOK || me.Username != "dana" {
		t.Fatalf("me = %d %+v", code, me)
	}

	var rounds []records.Round
	get(t, c, ts.URL+"/rounds/mine", &rounds)
	if len(rounds) != 1 || rounds[0].GameID != id || rounds[0].Status != records.StatusRunning {
		t.Fatalf("rounds = %+v", rounds)
	}

	// rounds started in the guest session after signup go to the account
	if code := post(t, c, ts.URL+"/game/"+id+"/restart", nil, nil); code != http.StatusOK {
		t.Fatalf("restart = %d", code)
	}
	get(t, c, ts.URL+"/rounds/mine", &rounds)
	if len(rounds) != 2 || rounds[0].GameID != id || rounds[0].Status != records.StatusRunning ||
		rounds[1].Status != records.StatusAbandoned {
		t.Fatalf("rounds after restart = %+v", rounds)
	}

	// the guest session still belongs to the same browser
	post(t, c, ts.URL+"/game/"+id+"/end", nil, nil)
	get(t, c, ts.URL+"/rounds/mine", &rounds)
	if len(rounds) != 2 || rounds[0].Status != records.StatusAbandoned {
		t.Fatalf("rounds after end = %+v", rounds)
	}

	// logged-in games are journaled under the account directly
	newGame(t, ts, c, "daily")
	get(t, c, ts.URL+"/rounds/mine", &rounds)
	if len(rounds) != 3 || rounds[0].Mode != "daily" {
		t.Fatalf("rounds after second game = %+v", rounds)
	}

	post(t, c, ts.URL+"/auth/logout", nil, nil)
	if code := get(t, c, ts.URL+"/auth/me", nil); code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d", code)
	}
	if code := post(t, c, ts.URL+"/auth/login", credentials{Username: "DANA", Password: "password1"}, nil); code != http.StatusOK {
		t.Fatalf("login = %d", code)
	}
	if code := post(t, c, ts.URL+"/auth/login", credentials{Username: "dana", Password: "nope"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", code)
	}
}

func TestSignupErrors(t *testing.T) {
	f := newFixture(t, testConfig())

	res, err := newClient(t).Post(f.ts.URL+"/auth/signup", "application/json",
		strings.NewReader(`{"username":"frank","password":"short"}`))
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	_ = json.NewDecoder(res.Body).Decode(&body)
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest || !strings.Contains(body["error"], "password must be 8-72 chars") {
		t.Fatalf("short password = %d %v", res.StatusCode, body)
	}

	// storage failures are reported without their details
	f.db.Close()
	res, err = newClient(t).Post(f.ts.URL+"/auth/signup", "application/json",
		strings.NewReader(`{"username":"frank","password":"password1"}`))
	if err != nil {
		t.Fatal(err)
	}
	body = nil
	_ = json.NewDecoder(res.Body).Decode(&body)
	res.Body.Close()
	if res.StatusCode != http.StatusInternalServerError || body["error"] != "signup_failed" {
		t.Fatalf("db failure = %d %v", res.StatusCode, body)
	}
}

func TestCloseSessionsAbandonsRunningRounds(t *testing.T) {
	f := newFixture(t, testConfig())
	c := newClient(t)
	if code := post(t, c, f.ts.URL+"/auth/signup", credentials{Username: "gina", Password: "password1"}, nil); code != http.StatusCreated {
		t.Fatalf("signup = %d", code)
	}
	newGame(t, f.ts, c, "classic")
	newGame(t, f.ts, c, "daily")

	f.srv.CloseSessions()

	var rounds []records.Round
	get(t, c, f.ts.URL+"/rounds/mine", &rounds)
	if len(rounds) != 2 {
		t.Fatalf("rounds = %+v", rounds)
	}
	for _, r := range rounds {
		if r.Status != records.StatusAbandoned || r.FinishedAt == "" {
			t.Fatalf("round after close = %+v", r)
		}
	}
}

func TestDailyBoardFollowsTheDate(t *testing.T) {
	cfg := testConfig()
	cfg.BoardRows, cfg.BoardCols = 8, 15
	var clock atomic.Int64
	clock.Store(time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC).Unix())
	f := newFixture(t, cfg, func(s *Server) {
		s.engineOpts = nil // deal from the daily seed
		s.now = func() time.Time { return time.Unix(clock.Load(), 0) }
	})
	c := newClient(t)

	v := newGame(t, f.ts, c, "daily")
	base := f.ts.URL + "/game/" + v.GameID
	var again session.View
	post(t, c, base+"/restart", nil, &again)
	if !sameBoard(v.Board, again.Board) {
		t.Fatal("restart on the same day dealt a different board")
	}

	clock.Add(120)
	var next session.View
	post(t, c, base+"/restart", nil, &next)
	if sameBoard(v.Board, next.Board) {
		t.Fatal("restart after midnight dealt the previous day's board")
	}
	if fresh := newGame(t, f.ts, c, "daily"); !sameBoard(fresh.Board, next.Board) {
		t.Fatal("restarted session and new session disagree on today's board")
	}
}

func sameBoard(a, b board.Snapshot) bool {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return false
	}
	for r := range a.Tiles {
		for c := range a.Tiles[r] {
			if a.Tiles[r][c].Value != b.Tiles[r][c].Value {
				return false
			}
		}
	}
	return true
}

// readKind reads socket messages until one of the given kind arrives.
func readKind(t *testing.T, conn *websocket.Conn, kind string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", kind, err)
		}
		if msg["kind"] == kind {
			return msg
		}
	}
}

func TestStreamDrivesSession(t *testing.T) {
	ts := newTestServer(t, testConfig())
	c := newClient(t)
	id := newGame(t, ts, c, "classic").GameID

	u, _ := url.Parse(ts.URL)
	header := http.Header{}
	for _, ck := range c.Jar.Cookies(u) {
		header.Add("Cookie", ck.String())
	}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/game/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	snap := readKind(t, conn, "snapshot")
	if snap["gameId"] != id {
		t.Fatalf("snapshot = %v", snap)
	}

	_ = conn.WriteJSON(map[string]any{"type": "begin", "x": 28, "y": 72})
	readKind(t, conn, "selection")
	_ = conn.WriteJSON(map[string]any{"type": "update", "x": 72, "y": 72})
	sel := readKind(t, conn, "selection")
	if sel["sum"] != float64(10) {
		t.Fatalf("selection = %v", sel)
	}
	_ = conn.WriteJSON(map[string]any{"type": "end"})
	matched := readKind(t, conn, "matched")
	if matched["score"] != float64(2) {
		t.Fatalf("matched = %v", matched)
	}

	_ = conn.WriteJSON(map[string]any{"type": "begin", "x": 5000, "y": 1})
	if e := readKind(t, conn, "error"); e["error"] != "out_of_range" {
		t.Fatalf("error = %v", e)
	}

	// HTTP commands on the same session show up on the socket
	post(t, c, ts.URL+"/game/"+id+"/restart", nil, nil)
	if r := readKind(t, conn, "restarted"); r["round"] != float64(2) {
		t.Fatalf("restarted = %v", r)
	}
}

func TestStreamRejectsOtherPlayers(t *testing.T) {
	ts := newTestServer(t, testConfig())
	id := newGame(t, ts, newClient(t), "classic").GameID

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/game/" + id + "/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial succeeded without the owner cookie")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v", res)
	}
}
