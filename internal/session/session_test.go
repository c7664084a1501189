package session

import (
	"errors"
	"testing"

	persistlog "gridpilot.ai/internal/persistence/log"
	"gridpilot.ai/internal/protocol"
	"gridpilot.ai/internal/sim/navigation"
	"gridpilot.ai/internal/sim/navtest"
)

type memSink struct {
	sessions  []string
	decisions []persistlog.DecisionLogEntry
	writeErr  error
}

func (m *memSink) RecordSession(id, missionID string, advanced bool) {
	m.sessions = append(m.sessions, id+"/"+missionID)
}

func (m *memSink) RecordDecision(e persistlog.DecisionLogEntry) {
	m.decisions = append(m.decisions, e)
}

func (m *memSink) WriteDecision(e persistlog.DecisionLogEntry) error { return m.writeErr }

func sensor(t *testing.T, tick uint64, rows ...string) protocol.SensorMsg {
	t.Helper()
	return protocol.SensorMsg{
		Type:            protocol.TypeSensor,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Sensor:          protocol.SensorFromSnapshot(navtest.Parse(t, rows...)),
	}
}

func TestSession_AdvancedMission(t *testing.T) {
	sink := &memSink{}
	s, welcome := Start(protocol.HelloMsg{MissionID: "m7", AdvancedMode: true}, Options{
		Params: navigation.DefaultParams(),
		Index:  sink,
		NewID:  func() string { return "sess" },
	})
	if welcome.SessionID != "sess" || welcome.Phase != "SEEKING_OBJECT" || welcome.Type != protocol.TypeWelcome {
		t.Fatalf("welcome=%+v", welcome)
	}
	if len(sink.sessions) != 1 || sink.sessions[0] != "sess/m7" {
		t.Fatalf("sessions=%v", sink.sessions)
	}

	steps := []struct {
		msg    protocol.SensorMsg
		action string
		phase  string
	}{
		{sensor(t, 1, "s.t.g"), "RIGHT", "SEEKING_OBJECT"},
		{sensor(t, 2, "..S.g"), "LIFT_OBJECT", "TRANSPORTING"},
		{sensor(t, 3, "..s.g"), "RIGHT", "TRANSPORTING"},
		{sensor(t, 4, "....G"), "DROP_OBJECT", "TRANSPORTING"},
	}
	for i, st := range steps {
		act, perr, err := s.HandleSensor(st.msg)
		if err != nil || perr != nil {
			t.Fatalf("step %d: perr=%v err=%v", i, perr, err)
		}
		if act.Action != st.action || act.Phase != st.phase {
			t.Fatalf("step %d: got %s/%s want %s/%s", i, act.Action, act.Phase, st.action, st.phase)
		}
		if act.SessionID != "sess" || act.Tick != uint64(i+1) {
			t.Fatalf("step %d: act=%+v", i, act)
		}
	}
	if len(sink.decisions) != 4 {
		t.Fatalf("indexed %d decisions", len(sink.decisions))
	}
	if d := sink.decisions[0]; d.Mode != "ALL_SHORTEST" || !d.Found || d.PathLen != 3 || d.MissionID != "m7" || !d.Advanced {
		t.Fatalf("first decision=%+v", d)
	}
}

func TestSession_RejectsStaleTick(t *testing.T) {
	s, _ := Start(protocol.HelloMsg{MissionID: "m"}, Options{})
	if _, perr, _ := s.HandleSensor(sensor(t, 5, "s.g")); perr != nil {
		t.Fatalf("first tick rejected: %+v", perr)
	}
	for _, tick := range []uint64{5, 4} {
		_, perr, _ := s.HandleSensor(sensor(t, tick, "s.g"))
		if perr == nil || perr.Code != protocol.ErrStale {
			t.Fatalf("tick %d: perr=%+v want E_STALE", tick, perr)
		}
	}
	if _, perr, _ := s.HandleSensor(sensor(t, 6, "s.g")); perr != nil {
		t.Fatalf("tick 6 rejected: %+v", perr)
	}
}

func TestSession_TickZeroAccepted(t *testing.T) {
	s, _ := Start(protocol.HelloMsg{MissionID: "m"}, Options{})
	act, perr, _ := s.HandleSensor(sensor(t, 0, "sg"))
	if perr != nil || act.Action != "RIGHT" {
		t.Fatalf("act=%+v perr=%+v", act, perr)
	}
}

func TestSession_DecisionWriteErrorStillActs(t *testing.T) {
	sink := &memSink{writeErr: errors.New("disk full")}
	s, _ := Start(protocol.HelloMsg{MissionID: "m"}, Options{Decisions: sink})
	act, perr, err := s.HandleSensor(sensor(t, 1, "s.g"))
	if perr != nil || act.Action != "RIGHT" {
		t.Fatalf("act=%+v perr=%+v", act, perr)
	}
	if err == nil {
		t.Fatalf("expected write error")
	}
}
