package navigation

import "gridpilot.ai/internal/sim/grid"

// Congestion sums, over every cell of path, the agents within Chebyshev distance radius.
func Congestion(snap *grid.Snapshot, path grid.Path, radius int) int {
	if snap == nil || snap.Agents.Len() == 0 {
		return 0
	}
	score := 0
	for _, c := range path {
		score += agentsNear(snap, c, radius)
	}
	return score
}

func agentsNear(snap *grid.Snapshot, c grid.Cell, radius int) int {
	window := (2*radius + 1) * (2*radius + 1)
	n := 0
	if snap.Agents.Len() < window {
		for a := range snap.Agents {
			if grid.Chebyshev(a, c) <= radius {
				n++
			}
		}
		return n
	}
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			if snap.IsOccupiedByAgent(c.Add(dx, dy)) {
				n++
			}
		}
	}
	return n
}

// leastCongested picks the lowest-score path; the earliest one wins ties.
func leastCongested(snap *grid.Snapshot, paths []grid.Path, radius int) (grid.Path, int) {
	var best grid.Path
	bestScore := 0
	for i, path := range paths {
		s := Congestion(snap, path, radius)
		if i == 0 || s < bestScore {
			best = path
			bestScore = s
		}
	}
	return best, bestScore
}
