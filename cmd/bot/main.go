package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gridpilot.ai/internal/protocol"
	"gridpilot.ai/internal/sim/grid"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		sensorPath = flag.String("sensor", "", "JSON file holding one sensor record (default: built-in demo field)")
		missionID  = flag.String("mission", "", "mission id (default: random)")
		advanced   = flag.Bool("advanced", true, "advanced mode (fetch the target object first)")
		steps      = flag.Int("steps", 32, "ticks to drive; the probe applies each action to its local copy of the field")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	sensor := demoSensor()
	if *sensorPath != "" {
		b, err := os.ReadFile(*sensorPath)
		if err != nil {
			logger.Fatalf("read sensor: %v", err)
		}
		sensor = protocol.SensorData{}
		if err := json.Unmarshal(b, &sensor); err != nil {
			logger.Fatalf("decode sensor: %v", err)
		}
	}
	if *missionID == "" {
		*missionID = uuid.NewString()
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		MissionID:       *missionID,
		AdvancedMode:    *advanced,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	logger.Printf("WELCOME session=%s mission=%s phase=%s", w.SessionID, w.MissionID, w.Phase)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for tick := uint64(1); tick <= uint64(*steps); tick++ {
		select {
		case <-stop:
			return
		default:
		}

		sm := protocol.SensorMsg{
			Type:            protocol.TypeSensor,
			ProtocolVersion: protocol.Version,
			Tick:            tick,
			Sensor:          sensor,
		}
		if err := conn.WriteJSON(sm); err != nil {
			logger.Fatalf("send SENSOR: %v", err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			logger.Fatalf("decode: %v", err)
		}
		if base.Type == protocol.TypeError {
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Fatalf("ERROR tick=%d code=%s: %s", e.Tick, e.Code, e.Message)
		}
		var act protocol.ActMsg
		if err := json.Unmarshal(msg, &act); err != nil {
			logger.Fatalf("decode ACT: %v", err)
		}

		done := apply(&sensor, act.Action)
		logger.Printf("tick=%d action=%s phase=%s pos=%v goal_dist=%d", act.Tick, act.Action, act.Phase, sensor.PlayerLocation, goalDistance(sensor))
		if done {
			return
		}
	}
}

// apply moves the local field copy as the host would. A lifted target travels
// with the agent until dropped. It reports whether the mission is over.
func apply(s *protocol.SensorData, action string) bool {
	dx, dy := 0, 0
	switch action {
	case "UP":
		dy = 1
	case "DOWN":
		dy = -1
	case "LEFT":
		dx = -1
	case "RIGHT":
		dx = 1
	case "LIFT_OBJECT":
		s.DriveLiftedPodPairs = append(s.DriveLiftedPodPairs, [2]int{0, 0})
		if s.TargetPodLocation != nil {
			s.PodLocations = without(s.PodLocations, *s.TargetPodLocation)
		}
		return false
	case "DROP_OBJECT":
		return true
	case "NONE":
		return false
	}
	s.PlayerLocation = [2]int{s.PlayerLocation[0] + dx, s.PlayerLocation[1] + dy}
	if len(s.DriveLiftedPodPairs) > 0 && s.TargetPodLocation != nil {
		t := s.PlayerLocation
		s.TargetPodLocation = &t
	}
	return false
}

func without(cells [][2]int, c [2]int) [][2]int {
	out := cells[:0]
	for _, p := range cells {
		if p != c {
			out = append(out, p)
		}
	}
	return out
}

func goalDistance(s protocol.SensorData) int {
	snap := s.Snapshot()
	best := -1
	for _, g := range snap.Goals.Sorted() {
		if d := grid.Manhattan(snap.Self, g); best < 0 || d < best {
			best = d
		}
	}
	return best
}

// demoSensor is a 10x6 fenced field with a shelf row, one other agent and
// a single goal on the far edge.
func demoSensor() protocol.SensorData {
	var s protocol.SensorData
	for x := -1; x <= 10; x++ {
		s.FieldBoundaries = append(s.FieldBoundaries, [2]int{x, -1}, [2]int{x, 6})
	}
	for y := 0; y <= 5; y++ {
		s.FieldBoundaries = append(s.FieldBoundaries, [2]int{-1, y}, [2]int{10, y})
	}
	for x := 2; x <= 7; x++ {
		s.PodLocations = append(s.PodLocations, [2]int{x, 3})
	}
	target := [2]int{5, 3}
	s.TargetPodLocation = &target
	s.DriveLocations = [][2]int{{8, 1}}
	s.PlayerLocation = [2]int{0, 0}
	s.GoalLocations = [][2]int{{9, 5}}
	return s
}
