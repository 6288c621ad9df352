package board

import (
	"errors"
	"math/rand/v2"
	"testing"
)

// seqRand returns values from a fixed cycle.
type seqRand struct {
	vals []int
	i    int
}

func (s *seqRand) IntN(n int) int {
	v := s.vals[s.i%len(s.vals)] % n
	s.i++
	return v
}

func mustBoard(t *testing.T, values [][]int) *Board {
	t.Helper()
	b, err := FromValues(values)
	if err != nil {
		t.Fatalf("FromValues: %v", err)
	}
	return b
}

func TestNewFillsEveryCellInRange(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		b := New(8, 15, rand.New(rand.NewPCG(seed, seed+1)))
		if b.Rows() != 8 || b.Cols() != 15 {
			t.Fatalf("dimensions = %dx%d, want 8x15", b.Rows(), b.Cols())
		}
		count := 0
		snap := b.Snapshot()
		for r, row := range snap.Tiles {
			for c, tile := range row {
				count++
				if tile.Value < MinValue || tile.Value > MaxValue {
					t.Fatalf("seed %d: value %d at (%d,%d) out of range", seed, tile.Value, r, c)
				}
				if !tile.Active {
					t.Fatalf("seed %d: tile (%d,%d) starts inactive", seed, r, c)
				}
				if tile.Row != r || tile.Col != c {
					t.Fatalf("tile at (%d,%d) reports position (%d,%d)", r, c, tile.Row, tile.Col)
				}
			}
		}
		if count != 120 || b.RemainingCount() != 120 {
			t.Fatalf("seed %d: %d tiles, %d remaining, want 120", seed, count, b.RemainingCount())
		}
	}
}

func TestNewUsesWholeValueRange(t *testing.T) {
	b := New(1, 9, &seqRand{vals: []int{0, 1, 2, 3, 4, 5, 6, 7, 8}})
	for c := 0; c < 9; c++ {
		tile, _ := b.Tile(0, c)
		if tile.Value != c+1 {
			t.Fatalf("tile %d value = %d, want %d", c, tile.Value, c+1)
		}
	}
}

func TestBoardsDoNotShareState(t *testing.T) {
	rng := &seqRand{vals: []int{4}}
	a := New(2, 2, rng)
	b := New(2, 2, rng)
	if err := a.Deactivate([]Pos{{0, 0}}); err != nil {
		t.Fatal(err)
	}
	tile, _ := b.Tile(0, 0)
	if !tile.Active {
		t.Fatal("deactivating one board changed another")
	}
}

func TestFromValuesRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		values [][]int
	}{
		{"empty", nil},
		{"empty row", [][]int{{}}},
		{"ragged", [][]int{{1, 2}, {3}}},
		{"zero", [][]int{{0, 1}}},
		{"ten", [][]int{{10}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromValues(tc.values); err == nil {
				t.Fatalf("FromValues(%v) succeeded", tc.values)
			}
		})
	}
}

func TestTileOutOfRange(t *testing.T) {
	b := mustBoard(t, [][]int{{1, 9}, {4, 6}})
	for _, p := range []Pos{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		if _, err := b.Tile(p.Row, p.Col); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("Tile(%d,%d) err = %v, want ErrOutOfRange", p.Row, p.Col, err)
		}
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	once := mustBoard(t, [][]int{{1, 9}, {4, 6}})
	twice := mustBoard(t, [][]int{{1, 9}, {4, 6}})

	if err := once.Deactivate([]Pos{{0, 1}}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := twice.Deactivate([]Pos{{0, 1}}); err != nil {
			t.Fatal(err)
		}
	}
	a, b := once.Snapshot(), twice.Snapshot()
	for r := range a.Tiles {
		for c := range a.Tiles[r] {
			if a.Tiles[r][c] != b.Tiles[r][c] {
				t.Fatalf("tile (%d,%d) differs: %+v vs %+v", r, c, a.Tiles[r][c], b.Tiles[r][c])
			}
		}
	}
	if once.RemainingCount() != 3 {
		t.Fatalf("RemainingCount = %d, want 3", once.RemainingCount())
	}
}

func TestDeactivateValidatesBeforeMutating(t *testing.T) {
	b := mustBoard(t, [][]int{{1, 9}, {4, 6}})
	err := b.Deactivate([]Pos{{0, 0}, {5, 5}})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if b.RemainingCount() != 4 {
		t.Fatalf("partial deactivation: %d remaining", b.RemainingCount())
	}
}

func TestActiveTilesIntersecting(t *testing.T) {
	l := DefaultLayout // tiles at 8..48 and 52..92 on both axes
	b := mustBoard(t, [][]int{{1, 9}, {4, 6}})

	cases := []struct {
		name   string
		region Rect
		want   []Pos
	}{
		{"inside first tile", RectFromPoints(Point{20, 20}, Point{30, 30}), []Pos{{0, 0}}},
		{"first row", RectFromPoints(Point{20, 20}, Point{70, 30}), []Pos{{0, 0}, {0, 1}}},
		{"reversed drag", RectFromPoints(Point{70, 30}, Point{20, 20}), []Pos{{0, 0}, {0, 1}}},
		{"whole board", RectFromPoints(Point{0, 0}, Point{100, 100}), []Pos{{0, 0}, {0, 1}, {1, 0}, {1, 1}}},
		{"gap only", RectFromPoints(Point{49, 0}, Point{51, 100}), nil},
		{"touching edge", RectFromPoints(Point{48, 20}, Point{50, 20}), []Pos{{0, 0}}},
		{"zero area on tile", RectFromPoints(Point{60, 60}, Point{60, 60}), []Pos{{1, 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Positions(b.ActiveTilesIntersecting(l, tc.region))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestActiveTilesIntersectingSkipsRemoved(t *testing.T) {
	b := mustBoard(t, [][]int{{1, 9}, {4, 6}})
	_ = b.Deactivate([]Pos{{0, 0}})
	got := b.ActiveTilesIntersecting(DefaultLayout, Rect{Right: 100, Bottom: 100})
	if len(got) != 3 {
		t.Fatalf("got %d tiles, want 3", len(got))
	}
	for _, tile := range got {
		if tile.Row == 0 && tile.Col == 0 {
			t.Fatal("removed tile was selected")
		}
	}
}

func TestHasMatch(t *testing.T) {
	cases := []struct {
		name   string
		values [][]int
		remove []Pos
		want   bool
	}{
		{"pair in row", [][]int{{1, 9}, {4, 4}}, nil, true},
		{"pair in column", [][]int{{3, 9}, {7, 9}}, nil, true},
		{"block of four", [][]int{{2, 3}, {1, 4}}, nil, true},
		{"none", [][]int{{9, 9}, {9, 9}}, nil, false},
		{"gap after removal", [][]int{{1, 9, 8}}, []Pos{{0, 1}}, false},
		{"bridge over removed tile", [][]int{{4, 9, 6}}, []Pos{{0, 1}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := mustBoard(t, tc.values)
			if err := b.Deactivate(tc.remove); err != nil {
				t.Fatal(err)
			}
			if got := b.HasMatch(); got != tc.want {
				t.Fatalf("HasMatch = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := mustBoard(t, [][]int{{5, 5}})
	snap := b.Snapshot()
	snap.Tiles[0][0].Active = false
	if b.RemainingCount() != 2 {
		t.Fatal("mutating a snapshot changed the board")
	}
}
