package grid

// Path is an ordered walk starting at the search origin (origin included).
type Path []Cell

// Steps is the number of moves along the path.
func (p Path) Steps() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// Next returns the immediate next step after the origin.
func (p Path) Next() (Cell, bool) {
	if len(p) < 2 {
		return Cell{}, false
	}
	return p[1], true
}

func (p Path) Last() (Cell, bool) {
	if len(p) == 0 {
		return Cell{}, false
	}
	return p[len(p)-1], true
}

func (p Path) Contains(c Cell) bool {
	for _, pc := range p {
		if pc == c {
			return true
		}
	}
	return false
}

// Contiguous reports whether every consecutive pair differs by one unit on exactly one axis.
func (p Path) Contiguous() bool {
	for i := 1; i < len(p); i++ {
		if Manhattan(p[i-1], p[i]) != 1 {
			return false
		}
	}
	return true
}

// Extend returns a copy of p with c appended. Queued paths never share backing arrays.
func (p Path) Extend(c Cell) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, c)
}
