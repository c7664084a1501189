// Package navtest builds field snapshots from ASCII maps for tests.
//
// Legend:
//
//	.  open cell
//	#  boundary
//	a  other agent
//	o  object
//	t  target object (also an object)
//	g  goal
//	s  self
//	S  self standing on the target object
//	G  self standing on a goal
//
// The first row is the highest y; x grows to the right. The map is fenced
// with boundary cells one step outside its edges.
package navtest

import (
	"testing"

	"gridpilot.ai/internal/sim/grid"
)

func Parse(t testing.TB, rows ...string) *grid.Snapshot {
	t.Helper()
	if len(rows) == 0 {
		t.Fatalf("navtest: empty map")
	}
	w := len(rows[0])
	h := len(rows)
	s := Fenced(w, h)
	for r, row := range rows {
		if len(row) != w {
			t.Fatalf("navtest: row %d has width %d, want %d", r, len(row), w)
		}
		y := h - 1 - r
		for x, ch := range row {
			c := grid.Cell{X: x, Y: y}
			switch ch {
			case '.':
			case '#':
				s.Boundaries[c] = struct{}{}
			case 'a':
				s.Agents[c] = struct{}{}
			case 'o':
				s.Objects[c] = struct{}{}
			case 't':
				s.Objects[c] = struct{}{}
				setTarget(s, c)
			case 'g':
				s.Goals[c] = struct{}{}
			case 's':
				s.Self = c
			case 'S':
				s.Self = c
				s.Objects[c] = struct{}{}
				setTarget(s, c)
			case 'G':
				s.Self = c
				s.Goals[c] = struct{}{}
			default:
				t.Fatalf("navtest: unknown map rune %q at (%d,%d)", ch, x, y)
			}
		}
	}
	return s
}

// Fenced returns an empty w x h field with corner (0,0) surrounded by boundary cells.
func Fenced(w, h int) *grid.Snapshot { return FencedRect(0, 0, w, h) }

// FencedRect returns an empty w x h field whose lowest corner is (minX, minY).
func FencedRect(minX, minY, w, h int) *grid.Snapshot {
	s := &grid.Snapshot{
		Boundaries: grid.NewSet(),
		Agents:     grid.NewSet(),
		Objects:    grid.NewSet(),
		Goals:      grid.NewSet(),
	}
	for x := minX - 1; x <= minX+w; x++ {
		s.Boundaries[grid.Cell{X: x, Y: minY - 1}] = struct{}{}
		s.Boundaries[grid.Cell{X: x, Y: minY + h}] = struct{}{}
	}
	for y := minY; y < minY+h; y++ {
		s.Boundaries[grid.Cell{X: minX - 1, Y: y}] = struct{}{}
		s.Boundaries[grid.Cell{X: minX + w, Y: y}] = struct{}{}
	}
	return s
}

func setTarget(s *grid.Snapshot, c grid.Cell) {
	tc := c
	s.Target = &tc
}
