package grid

import (
	"fmt"
	"sort"
)

// Cell is one discrete field position.
type Cell struct {
	X int
	Y int
}

func (c Cell) Add(dx, dy int) Cell { return Cell{X: c.X + dx, Y: c.Y + dy} }

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Set is a membership set of cells. A nil Set is empty.
type Set map[Cell]struct{}

func NewSet(cells ...Cell) Set {
	s := make(Set, len(cells))
	for _, c := range cells {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Has(c Cell) bool {
	_, ok := s[c]
	return ok
}

func (s Set) Len() int { return len(s) }

// Sorted returns the members ordered by X, then Y.
func (s Set) Sorted() []Cell {
	out := make([]Cell, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

type CarryPair struct {
	AgentID  int
	ObjectID int
}

// Snapshot holds the positional facts about the field for one tick.
// It is rebuilt every tick and never mutated by readers.
type Snapshot struct {
	Boundaries Set
	Agents     Set
	Objects    Set
	Goals      Set

	// Target is the designated object to seek; nil outside advanced missions.
	Target  *Cell
	Carried []CarryPair

	Self Cell
}

func (s *Snapshot) IsBlocked(c Cell) bool          { return s.Boundaries.Has(c) }
func (s *Snapshot) IsOccupiedByAgent(c Cell) bool  { return s.Agents.Has(c) }
func (s *Snapshot) IsOccupiedByObject(c Cell) bool { return s.Objects.Has(c) }
func (s *Snapshot) IsGoal(c Cell) bool             { return s.Goals.Has(c) }

func (s *Snapshot) TargetCell() (Cell, bool) {
	if s.Target == nil {
		return Cell{}, false
	}
	return *s.Target, true
}

func (s *Snapshot) IsTarget(c Cell) bool {
	t, ok := s.TargetCell()
	return ok && t == c
}

func Chebyshev(a, b Cell) int {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func Manhattan(a, b Cell) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
