// internal/records/store.go
//
// SQLite-backed records: player accounts and the round journal.
// The journal tracks when each round started and how it finished so a
// player can list their recent rounds. It never stores scores.

package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username taken")

	// ErrInvalidSignup wraps every ValidateSignup failure; the message is
	// safe to show to the player.
	ErrInvalidSignup = errors.New("invalid signup")
)

// Round statuses.
const (
	StatusRunning   = "running"
	StatusEnded     = "ended"     // timer ran out
	StatusAbandoned = "abandoned" // ended early or replaced by a restart
)

// User matches the users table shape.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Round is one row of the journal.
type Round struct {
	ID          string `json:"id"`
	GameID      string `json:"gameId"`
	UserID      string `json:"-"`
	AnonymousID string `json:"-"`
	Mode        string `json:"mode"`
	StartedAt   string `json:"startedAt"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	Status      string `json:"status"`
}

// Store wraps the database handle.
type Store struct{ db *sql.DB }

// NewStore returns a Store over an already migrated database.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// ------------------------------- users -------------------------------------

// CreateUser validates input, checks uniqueness, hashes the password and
// inserts a new user.
func (s *Store) CreateUser(ctx context.Context, username, pw string) (*User, error) {
	username = NormalizeUsername(username)
	if err := ValidateSignup(username, pw); err != nil {
		return nil, err
	}
	if _, err := s.UserByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(h),
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt.Format(time.RFC3339)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u, nil
}

// UserByUsername looks a user up case-insensitively.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE lower(username)=lower(?)`, username))
}

// UserByID loads a user by id.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id=?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var created string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &u, nil
}

// Authenticate returns the user when username and password match.
func (s *Store) Authenticate(ctx context.Context, username, pw string) (*User, error) {
	u, err := s.UserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pw)) != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// NormalizeUsername trims whitespace.
func NormalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// ValidateSignup enforces basic username/password rules.
func ValidateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return fmt.Errorf("%w: username must be 3-24 chars", ErrInvalidSignup)
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("%w: username: letters, numbers, underscore only", ErrInvalidSignup)
		}
	}
	if len(p) < 8 || len(p) > 72 {
		return fmt.Errorf("%w: password must be 8-72 chars", ErrInvalidSignup)
	}
	return nil
}

// ------------------------------- rounds ------------------------------------

// StartRound inserts a running journal row. Exactly one of userID and
// anonID should be set.
func (s *Store) StartRound(ctx context.Context, id, gameID, userID, anonID, mode string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO rounds (id, game_id, user_id, anonymous_id, mode, started_at, status)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, gameID, nullable(userID), nullable(anonID), mode, now(), StatusRunning)
	return err
}

// FinishRound closes a running round. Rounds that are already finished are
// left untouched.
func (s *Store) FinishRound(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rounds SET status=?, finished_at=? WHERE id=? AND status=?`,
		status, now(), id, StatusRunning)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish round %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClaimAnonRounds moves an anonymous player's rounds to their account.
func (s *Store) ClaimAnonRounds(ctx context.Context, anonID, userID string) error {
	if anonID == "" || userID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE rounds SET user_id=?, anonymous_id=NULL WHERE anonymous_id=?`, userID, anonID)
	return err
}

// ClaimedUser returns the account that claimed earlier rounds of gameID, or
// "" when the game's rounds are still anonymous.
func (s *Store) ClaimedUser(ctx context.Context, gameID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM rounds WHERE game_id=? AND user_id IS NOT NULL LIMIT 1`, gameID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return userID, err
}

// RoundsByUser lists a user's most recent rounds, newest first.
func (s *Store) RoundsByUser(ctx context.Context, userID string, limit int) ([]Round, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, game_id, mode, started_at, COALESCE(finished_at, ''), status
        FROM rounds
        WHERE user_id=?
        ORDER BY started_at DESC, rowid DESC
        LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Round, 0, limit)
	for rows.Next() {
		r := Round{UserID: userID}
		if err := rows.Scan(&r.ID, &r.GameID, &r.Mode, &r.StartedAt, &r.FinishedAt, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// journalTime is fixed-width so timestamps sort lexically.
const journalTime = "2006-01-02T15:04:05.000000000Z07:00"

func now() string { return time.Now().UTC().Format(journalTime) }
