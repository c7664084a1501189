package protocol

import "gridpilot.ai/internal/sim/grid"

// SensorData is the per-tick field record sent by the host. Every list may be
// absent; absent lists read as empty.
type SensorData struct {
	FieldBoundaries [][2]int `json:"field_boundaries,omitempty"`
	DriveLocations  [][2]int `json:"drive_locations,omitempty"`
	PodLocations    [][2]int `json:"pod_locations,omitempty"`
	PlayerLocation  [2]int   `json:"player_location"`
	GoalLocations   [][2]int `json:"goal_locations,omitempty"`

	// GoalLocation is the legacy single-goal field; it joins GoalLocations.
	GoalLocation *[2]int `json:"goal_location,omitempty"`

	// Advanced missions only.
	TargetPodLocation   *[2]int  `json:"target_pod_location,omitempty"`
	DriveLiftedPodPairs [][2]int `json:"drive_lifted_pod_pairs,omitempty"`
}

// Snapshot converts the record into a grid snapshot. The agent's own cell is
// never reported as another agent.
func (d SensorData) Snapshot() *grid.Snapshot {
	self := cellOf(d.PlayerLocation)
	s := &grid.Snapshot{
		Boundaries: setOf(d.FieldBoundaries),
		Agents:     setOf(d.DriveLocations),
		Objects:    setOf(d.PodLocations),
		Goals:      setOf(d.GoalLocations),
		Self:       self,
	}
	delete(s.Agents, self)
	if d.GoalLocation != nil {
		s.Goals[cellOf(*d.GoalLocation)] = struct{}{}
	}
	if d.TargetPodLocation != nil {
		t := cellOf(*d.TargetPodLocation)
		s.Target = &t
	}
	if len(d.DriveLiftedPodPairs) > 0 {
		s.Carried = make([]grid.CarryPair, 0, len(d.DriveLiftedPodPairs))
		for _, p := range d.DriveLiftedPodPairs {
			s.Carried = append(s.Carried, grid.CarryPair{AgentID: p[0], ObjectID: p[1]})
		}
	}
	return s
}

func cellOf(p [2]int) grid.Cell { return grid.Cell{X: p[0], Y: p[1]} }

func setOf(ps [][2]int) grid.Set {
	s := make(grid.Set, len(ps))
	for _, p := range ps {
		s[cellOf(p)] = struct{}{}
	}
	return s
}

// SensorFromSnapshot is the inverse of Snapshot, with lists in sorted order.
func SensorFromSnapshot(s *grid.Snapshot) SensorData {
	d := SensorData{
		FieldBoundaries: pairsOf(s.Boundaries),
		DriveLocations:  pairsOf(s.Agents),
		PodLocations:    pairsOf(s.Objects),
		PlayerLocation:  [2]int{s.Self.X, s.Self.Y},
		GoalLocations:   pairsOf(s.Goals),
	}
	if t, ok := s.TargetCell(); ok {
		d.TargetPodLocation = &[2]int{t.X, t.Y}
	}
	for _, p := range s.Carried {
		d.DriveLiftedPodPairs = append(d.DriveLiftedPodPairs, [2]int{p.AgentID, p.ObjectID})
	}
	return d
}

func pairsOf(s grid.Set) [][2]int {
	if s.Len() == 0 {
		return nil
	}
	cells := s.Sorted()
	out := make([][2]int, 0, len(cells))
	for _, c := range cells {
		out = append(out, [2]int{c.X, c.Y})
	}
	return out
}
