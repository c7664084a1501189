package navigation

import "gridpilot.ai/internal/sim/grid"

type Mode string

const (
	// FirstMatch returns the first goal path found in expansion order.
	FirstMatch Mode = "FIRST_MATCH"
	// AllShortest collects every goal path of minimal length and keeps the least congested one.
	AllShortest Mode = "ALL_SHORTEST"
)

const (
	// DefaultAgentClearance is how many path cells (origin included) must already be
	// walked before the route may pass through a cell held by another agent.
	DefaultAgentClearance = 2
	// DefaultCongestionRadius is the Chebyshev radius used when counting agents near a path cell.
	DefaultCongestionRadius = 2
	// DefaultMaxExpanded bounds the cells dequeued by one search.
	DefaultMaxExpanded = 1 << 16
)

type Params struct {
	AgentClearance   int
	CongestionRadius int
	MaxExpanded      int
}

func DefaultParams() Params {
	return Params{
		AgentClearance:   DefaultAgentClearance,
		CongestionRadius: DefaultCongestionRadius,
		MaxExpanded:      DefaultMaxExpanded,
	}
}

func (p Params) normalized() Params {
	if p.AgentClearance <= 0 {
		p.AgentClearance = DefaultAgentClearance
	}
	if p.CongestionRadius <= 0 {
		p.CongestionRadius = DefaultCongestionRadius
	}
	if p.MaxExpanded <= 0 {
		p.MaxExpanded = DefaultMaxExpanded
	}
	return p
}

type Query struct {
	Origin   grid.Cell
	Goal     func(grid.Cell) bool
	Carrying bool
	Mode     Mode
}

type Result struct {
	Found bool
	Path  grid.Path

	// Score is the congestion score of Path (AllShortest only).
	Score int

	// Candidates is the number of minimal-length goal paths seen.
	Candidates int

	// Expanded is the number of cells dequeued.
	Expanded int
}

// Fixed neighbor order: +x, -x, +y, -y. FirstMatch tie-breaking depends on it.
var dirs = [4]grid.Cell{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

type qItem struct {
	p    grid.Cell
	path grid.Path
}

// Search runs a ring-by-ring breadth-first expansion from q.Origin over snap.
// All search state is local to the call; snap is only read.
func Search(snap *grid.Snapshot, q Query, p Params) Result {
	p = p.normalized()
	if snap == nil {
		snap = &grid.Snapshot{}
	}
	goal := q.Goal
	if goal == nil {
		goal = func(grid.Cell) bool { return false }
	}

	visited := make(map[grid.Cell]bool, 256)
	visited[q.Origin] = true

	ring := []qItem{{p: q.Origin, path: grid.Path{q.Origin}}}
	var res Result

	for len(ring) > 0 {
		var matches []grid.Path
		for _, it := range ring {
			res.Expanded++
			if res.Expanded > p.MaxExpanded {
				return Result{Expanded: res.Expanded}
			}
			if !goal(it.p) {
				continue
			}
			if q.Mode != AllShortest {
				res.Found = true
				res.Path = it.path
				res.Candidates = 1
				return res
			}
			matches = append(matches, it.path)
		}
		if len(matches) > 0 {
			best, score := leastCongested(snap, matches, p.CongestionRadius)
			res.Found = true
			res.Path = best
			res.Score = score
			res.Candidates = len(matches)
			return res
		}

		next := make([]qItem, 0, len(ring)*2)
		for _, it := range ring {
			for _, d := range dirs {
				np := it.p.Add(d.X, d.Y)
				if visited[np] {
					continue
				}
				if !passable(snap, np, it.path, q.Carrying, p.AgentClearance) {
					continue
				}
				visited[np] = true
				next = append(next, qItem{p: np, path: it.path.Extend(np)})
			}
		}
		ring = next
	}
	return res
}

func passable(snap *grid.Snapshot, c grid.Cell, pathSoFar grid.Path, carrying bool, clearance int) bool {
	if snap.IsBlocked(c) {
		return false
	}
	// A loaded agent may not step onto another object.
	if carrying && snap.IsOccupiedByObject(c) {
		return false
	}
	if snap.IsOccupiedByAgent(c) {
		return len(pathSoFar) > clearance
	}
	return true
}
