// internal/board/geom.go
//
// Board-local geometry: points, rectangles and the tile layout.
// Tile rectangles are computed from (row, col) and fixed cell dimensions,
// so hit-testing never depends on a rendered surface.

package board

// Point is a position in board-local coordinates (pixels from the top-left
// corner of the board surface).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle. Left <= Right and Top <= Bottom once
// normalized.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// RectFromPoints normalizes the rectangle spanned by an anchor and the
// current pointer position; the pointer may be on any side of the anchor.
func RectFromPoints(a, b Point) Rect {
	return Rect{
		Left:   min(a.X, b.X),
		Top:    min(a.Y, b.Y),
		Right:  max(a.X, b.X),
		Bottom: max(a.Y, b.Y),
	}
}

// Overlaps reports whether r and o share any point. Touching edges count.
func (r Rect) Overlaps(o Rect) bool {
	return !(r.Right < o.Left ||
		r.Left > o.Right ||
		r.Bottom < o.Top ||
		r.Top > o.Bottom)
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Top && p.Y <= r.Bottom
}

// Width and Height of the rectangle.
func (r Rect) Width() float64  { return r.Right - r.Left }
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Layout fixes the on-screen size of tiles.
type Layout struct {
	CellWidth  float64 `json:"cellWidth"`
	CellHeight float64 `json:"cellHeight"`
	Gap        float64 `json:"gap"`     // space between neighbouring tiles
	Padding    float64 `json:"padding"` // space between the board edge and the outer tiles
}

// DefaultLayout matches the reference board: 40px tiles with a 4px gap.
var DefaultLayout = Layout{CellWidth: 40, CellHeight: 40, Gap: 4, Padding: 8}

// TileRect returns the bounding rectangle of the tile at (row, col).
func (l Layout) TileRect(row, col int) Rect {
	left := l.Padding + float64(col)*(l.CellWidth+l.Gap)
	top := l.Padding + float64(row)*(l.CellHeight+l.Gap)
	return Rect{Left: left, Top: top, Right: left + l.CellWidth, Bottom: top + l.CellHeight}
}

// Bounds returns the rectangle of the whole board surface for a grid of the
// given size.
func (l Layout) Bounds(rows, cols int) Rect {
	w := 2*l.Padding + float64(cols)*l.CellWidth + float64(cols-1)*l.Gap
	h := 2*l.Padding + float64(rows)*l.CellHeight + float64(rows-1)*l.Gap
	return Rect{Right: w, Bottom: h}
}

// TileAt returns the grid position of the tile under p, if any.
// Points in the gaps or the padding hit nothing.
func (l Layout) TileAt(rows, cols int, p Point) (Pos, bool) {
	if l.CellWidth <= 0 || l.CellHeight <= 0 {
		return Pos{}, false
	}
	col := int((p.X - l.Padding) / (l.CellWidth + l.Gap))
	row := int((p.Y - l.Padding) / (l.CellHeight + l.Gap))
	if p.X < l.Padding || p.Y < l.Padding || row >= rows || col >= cols {
		return Pos{}, false
	}
	if !l.TileRect(row, col).Contains(p) {
		return Pos{}, false
	}
	return Pos{Row: row, Col: col}, true
}
