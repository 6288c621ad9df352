// internal/board/board.go
//
// Board model for the sum-to-ten puzzle.
// Responsibilities:
//   - Create a fixed-size grid of tiles with values drawn uniformly from 1..9.
//   - Answer geometric queries (which active tiles a selection touches).
//   - Deactivate matched tiles; a tile never comes back once removed.
//
// The board has no notion of rounds, scores or time; see package game.

package board

import (
	"errors"
	"fmt"
)

const (
	MinValue = 1
	MaxValue = 9

	// Target is the sum a selection must reach to be removed.
	Target = 10
)

// ErrOutOfRange is returned when a position or point lies outside the grid.
var ErrOutOfRange = errors.New("out of range")

// Rand is the random source used to fill a board.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// Pos addresses a cell in the grid.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Tile is a single numbered cell.
type Tile struct {
	Row    int  `json:"row"`
	Col    int  `json:"col"`
	Value  int  `json:"value"`
	Active bool `json:"active"`
}

// Pos returns the tile's grid position.
func (t Tile) Pos() Pos { return Pos{Row: t.Row, Col: t.Col} }

// Board is a rows x cols grid of tiles. Its dimensions never change.
type Board struct {
	rows  int
	cols  int
	tiles [][]Tile
}

// New fills a rows x cols board with random values in [MinValue, MaxValue].
func New(rows, cols int, rng Rand) *Board {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("board: invalid dimensions %dx%d", rows, cols))
	}
	b := &Board{rows: rows, cols: cols, tiles: make([][]Tile, rows)}
	for r := 0; r < rows; r++ {
		b.tiles[r] = make([]Tile, cols)
		for c := 0; c < cols; c++ {
			b.tiles[r][c] = Tile{
				Row:    r,
				Col:    c,
				Value:  rng.IntN(MaxValue-MinValue+1) + MinValue,
				Active: true,
			}
		}
	}
	return b
}

// FromValues builds a board with fixed tile values, all active.
func FromValues(values [][]int) (*Board, error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return nil, errors.New("board: empty grid")
	}
	rows, cols := len(values), len(values[0])
	b := &Board{rows: rows, cols: cols, tiles: make([][]Tile, rows)}
	for r, line := range values {
		if len(line) != cols {
			return nil, fmt.Errorf("board: row %d has %d values, want %d", r, len(line), cols)
		}
		b.tiles[r] = make([]Tile, cols)
		for c, v := range line {
			if v < MinValue || v > MaxValue {
				return nil, fmt.Errorf("board: value %d at (%d,%d) not in [%d,%d]", v, r, c, MinValue, MaxValue)
			}
			b.tiles[r][c] = Tile{Row: r, Col: c, Value: v, Active: true}
		}
	}
	return b, nil
}

// Rows and Cols report the grid dimensions.
func (b *Board) Rows() int { return b.rows }
func (b *Board) Cols() int { return b.cols }

func (b *Board) inside(p Pos) bool {
	return p.Row >= 0 && p.Row < b.rows && p.Col >= 0 && p.Col < b.cols
}

// Tile returns a copy of the tile at (row, col).
func (b *Board) Tile(row, col int) (Tile, error) {
	if !b.inside(Pos{Row: row, Col: col}) {
		return Tile{}, fmt.Errorf("tile (%d,%d) on %dx%d board: %w", row, col, b.rows, b.cols, ErrOutOfRange)
	}
	return b.tiles[row][col], nil
}

// ActiveTilesIntersecting returns every active tile whose rectangle under
// layout l overlaps region, in row-major order.
func (b *Board) ActiveTilesIntersecting(l Layout, region Rect) []Tile {
	var out []Tile
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.cols; c++ {
			t := b.tiles[r][c]
			if t.Active && region.Overlaps(l.TileRect(r, c)) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Deactivate removes the tiles at the given positions. Positions are all
// validated before anything changes. Tiles that are already inactive are
// left as they are.
func (b *Board) Deactivate(positions []Pos) error {
	for _, p := range positions {
		if !b.inside(p) {
			return fmt.Errorf("deactivate (%d,%d): %w", p.Row, p.Col, ErrOutOfRange)
		}
	}
	for _, p := range positions {
		b.tiles[p.Row][p.Col].Active = false
	}
	return nil
}

// RemainingCount returns the number of active tiles.
func (b *Board) RemainingCount() int {
	n := 0
	for r := range b.tiles {
		for _, t := range b.tiles[r] {
			if t.Active {
				n++
			}
		}
	}
	return n
}

// HasMatch reports whether some rectangular block of cells holds active
// tiles that sum to exactly Target. Any such block can be selected with a
// single drag, so false means the player has no moves left.
func (b *Board) HasMatch() bool {
	// sum[r][c] holds the active total of the block [0,r) x [0,c).
	sum := make([][]int, b.rows+1)
	for r := range sum {
		sum[r] = make([]int, b.cols+1)
	}
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.cols; c++ {
			v := 0
			if b.tiles[r][c].Active {
				v = b.tiles[r][c].Value
			}
			sum[r+1][c+1] = v + sum[r][c+1] + sum[r+1][c] - sum[r][c]
		}
	}
	for top := 0; top < b.rows; top++ {
		for bottom := top + 1; bottom <= b.rows; bottom++ {
			for left := 0; left < b.cols; left++ {
				for right := left + 1; right <= b.cols; right++ {
					s := sum[bottom][right] - sum[top][right] - sum[bottom][left] + sum[top][left]
					if s == Target {
						return true
					}
					if s > Target {
						// widening further only adds non-negative values
						break
					}
				}
			}
		}
	}
	return false
}

// Snapshot is a read-only copy of the board for renderers.
type Snapshot struct {
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Tiles [][]Tile `json:"tiles"`
}

// Snapshot copies the current grid.
func (b *Board) Snapshot() Snapshot {
	tiles := make([][]Tile, b.rows)
	for r := range b.tiles {
		tiles[r] = append([]Tile(nil), b.tiles[r]...)
	}
	return Snapshot{Rows: b.rows, Cols: b.cols, Tiles: tiles}
}

// Sum adds up tile values.
func Sum(tiles []Tile) int {
	s := 0
	for _, t := range tiles {
		s += t.Value
	}
	return s
}

// Positions extracts the grid positions of tiles.
func Positions(tiles []Tile) []Pos {
	out := make([]Pos, len(tiles))
	for i, t := range tiles {
		out[i] = t.Pos()
	}
	return out
}
