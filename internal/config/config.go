// internal/config/config.go
//
// Process configuration.
// Values come from the environment; a .env file in the working directory is
// loaded first when present (development convenience, never required).
//
// Environment variables (defaults in parentheses):
//   PORT (5175), LOG_LEVEL (info), LOG_FORMAT (json | console),
//   DB_PATH (./data/app.db), JWT_SECRET (dev_secret_change_me),
//   JWT_EXPIRES_DAYS (14), COOKIE_NAME (applegame_token),
//   CLIENT_ORIGIN (http://localhost:5173), NODE_ENV,
//   DAILY_SALT (local_dev_salt), BOARD_ROWS (8, max 64), BOARD_COLS (15, max 64),
//   ROUND_SECONDS (60), TICK_MODE (server | client), MAX_SESSIONS (1024).

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// TickMode selects who drives the round timer.
type TickMode string

const (
	TickServer TickMode = "server" // a server-side clock ticks every running session
	TickClient TickMode = "client" // clients call POST /game/{id}/tick themselves
)

// MaxBoardSide caps BOARD_ROWS and BOARD_COLS. Move detection scans every
// cell rectangle, so it grows with rows²·cols².
const MaxBoardSide = 64

// Config is the full process configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string
	DBPath    string

	JWTSecret      string
	JWTExpiresDays int
	CookieName     string
	ClientOrigin   string
	Production     bool

	DailySalt    string
	BoardRows    int
	BoardCols    int
	RoundSeconds int
	TickMode     TickMode
	MaxSessions  int
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (Config, error) {
	c := Config{
		Port:         getEnv("PORT", "5175"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		DBPath:       getEnv("DB_PATH", "./data/app.db"),
		JWTSecret:    getEnv("JWT_SECRET", "dev_secret_change_me"),
		CookieName:   getEnv("COOKIE_NAME", "applegame_token"),
		ClientOrigin: getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		Production:   os.Getenv("NODE_ENV") == "production",
		DailySalt:    getEnv("DAILY_SALT", "local_dev_salt"),
		TickMode:     TickMode(getEnv("TICK_MODE", string(TickServer))),
	}
	ints := []struct {
		key  string
		def  int
		max  int // 0 means unbounded
		dest *int
	}{
		{"JWT_EXPIRES_DAYS", 14, 0, &c.JWTExpiresDays},
		{"BOARD_ROWS", 8, MaxBoardSide, &c.BoardRows},
		{"BOARD_COLS", 15, MaxBoardSide, &c.BoardCols},
		{"ROUND_SECONDS", 60, 0, &c.RoundSeconds},
		{"MAX_SESSIONS", 1024, 0, &c.MaxSessions},
	}
	for _, it := range ints {
		n, err := getInt(it.key, it.def)
		if err != nil {
			return Config{}, err
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %d", it.key, n)
		}
		if it.max > 0 && n > it.max {
			return Config{}, fmt.Errorf("%s must be at most %d, got %d", it.key, it.max, n)
		}
		*it.dest = n
	}
	if c.TickMode != TickServer && c.TickMode != TickClient {
		return Config{}, fmt.Errorf("TICK_MODE must be %q or %q, got %q", TickServer, TickClient, c.TickMode)
	}
	return c, nil
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
