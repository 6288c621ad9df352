// internal/daily/daily.go
//
// Deterministic "daily board" seeding.
// Every player who starts a daily game on the same UTC date gets the same
// tiles: the board's random source is seeded from HMAC(salt, YYYY-MM-DD).

package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/robalobadob/applegame/internal/board"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Seed derives the two PCG seed words for a date.
func Seed(date time.Time, salt string) (uint64, uint64) {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])
}

// Source returns a function producing a fresh random source for the date on
// each call, so a restarted daily round deals the same tiles again.
func Source(date time.Time, salt string) func() board.Rand {
	s1, s2 := Seed(date, salt)
	return func() board.Rand { return rand.New(rand.NewPCG(s1, s2)) }
}

// Today is like Source but reads the date from now on every deal, so a daily
// session restarted after UTC midnight gets the new day's board.
func Today(now func() time.Time, salt string) func() board.Rand {
	return func() board.Rand { return Source(now(), salt)() }
}
