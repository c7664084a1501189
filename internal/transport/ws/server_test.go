package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	persistlog "gridpilot.ai/internal/persistence/log"
	"gridpilot.ai/internal/protocol"
	"gridpilot.ai/internal/sim/navtest"
	"gridpilot.ai/internal/sim/tuning"
)

type countingIndex struct {
	sessions  atomic.Int64
	decisions atomic.Int64
}

func (c *countingIndex) RecordSession(string, string, bool)          { c.sessions.Add(1) }
func (c *countingIndex) RecordDecision(persistlog.DecisionLogEntry) { c.decisions.Add(1) }

func startServer(t *testing.T, idx *countingIndex) string {
	t.Helper()
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	srv := NewServer(Config{
		Tuning:    tuning.Defaults(),
		Validator: v,
		Index:     idx,
	}, log.New(io.Discard, "", 0))
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readInto(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(msg, v); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
}

func hello(t *testing.T, conn *websocket.Conn, advanced bool) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		MissionID:       "mission-1",
		AdvancedMode:    advanced,
	}); err != nil {
		t.Fatalf("send HELLO: %v", err)
	}
	var w protocol.WelcomeMsg
	readInto(t, conn, &w)
	return w
}

func TestServer_SensorActLoop(t *testing.T) {
	idx := &countingIndex{}
	conn := dial(t, startServer(t, idx))

	w := hello(t, conn, true)
	if w.Type != protocol.TypeWelcome || w.SessionID == "" || w.Phase != "SEEKING_OBJECT" {
		t.Fatalf("welcome=%+v", w)
	}

	frames := []struct {
		rows   []string
		action string
	}{
		{[]string{"..s..", "....t"}, "RIGHT"},
		{[]string{".....", "....S"}, "LIFT_OBJECT"},
		{[]string{"g....", "....s"}, "LEFT"},
	}
	for i, f := range frames {
		sm := protocol.SensorMsg{
			Type:            protocol.TypeSensor,
			ProtocolVersion: protocol.Version,
			Tick:            uint64(i + 1),
			Sensor:          protocol.SensorFromSnapshot(navtest.Parse(t, f.rows...)),
		}
		if err := conn.WriteJSON(sm); err != nil {
			t.Fatalf("send SENSOR: %v", err)
		}
		var act protocol.ActMsg
		readInto(t, conn, &act)
		if act.Type != protocol.TypeAct || act.Action != f.action || act.Tick != sm.Tick || act.SessionID != w.SessionID {
			t.Fatalf("frame %d: act=%+v want %s", i, act, f.action)
		}
	}
	if n := idx.sessions.Load(); n != 1 {
		t.Fatalf("sessions indexed=%d", n)
	}
	if n := idx.decisions.Load(); n != int64(len(frames)) {
		t.Fatalf("decisions indexed=%d", n)
	}
}

func TestServer_ErrorReplies(t *testing.T) {
	conn := dial(t, startServer(t, &countingIndex{}))
	hello(t, conn, false)

	cases := []struct {
		raw  string
		code string
	}{
		{`not json`, protocol.ErrProtoBadRequest},
		{`{"type":"HELLO","protocol_version":"1.0","mission_id":"x"}`, protocol.ErrProtoBadRequest},
		{`{"type":"SENSOR","protocol_version":"0.1","tick":1,"sensor":{"player_location":[0,0]}}`, protocol.ErrProtoVersion},
		{`{"type":"SENSOR","protocol_version":"1.0","tick":1,"sensor":{}}`, protocol.ErrBadRequest},
		{`{"type":"SENSOR","protocol_version":"1.0","tick":1,"sensor":{"player_location":[0,0],"goal_locations":[[0,0]]}}`, ""},
		{`{"type":"SENSOR","protocol_version":"1.0","tick":1,"sensor":{"player_location":[0,0],"goal_locations":[[0,0]]}}`, protocol.ErrStale},
	}
	for i, tc := range cases {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tc.raw)); err != nil {
			t.Fatalf("case %d: write: %v", i, err)
		}
		var got struct {
			Type   string `json:"type"`
			Code   string `json:"code"`
			Action string `json:"action"`
		}
		readInto(t, conn, &got)
		if tc.code == "" {
			if got.Type != protocol.TypeAct || got.Action != "DROP_OBJECT" {
				t.Fatalf("case %d: got %+v want ACT DROP_OBJECT", i, got)
			}
			continue
		}
		if got.Type != protocol.TypeError || got.Code != tc.code {
			t.Fatalf("case %d: got %+v want %s", i, got, tc.code)
		}
	}
}

func TestServer_RejectsMissingHello(t *testing.T) {
	conn := dial(t, startServer(t, &countingIndex{}))
	if err := conn.WriteJSON(map[string]any{"type": protocol.TypeSensor, "protocol_version": protocol.Version}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("err=%v want policy violation close", err)
	}
}

func TestServer_EncodeChecksOutbound(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	tune := tuning.Defaults()
	srv := NewServer(Config{Tuning: tune, Validator: v}, log.New(io.Discard, "", 0))

	good := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            3,
		SessionID:       "s",
		Action:          "UP",
		Phase:           "TRANSPORTING",
	}
	if _, err := srv.encode(good); err != nil {
		t.Fatalf("valid ACT rejected: %v", err)
	}
	if _, err := srv.encode(protocol.NewError(0, protocol.ErrStale, "stale")); err != nil {
		t.Fatalf("valid ERROR rejected: %v", err)
	}

	bad := good
	bad.Action = "JUMP"
	if _, err := srv.encode(bad); !errors.Is(err, errOutbound) {
		t.Fatalf("err=%v want outbound schema error", err)
	}
	if _, err := srv.encode(protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, Phase: "SEEKING_OBJECT"}); !errors.Is(err, errOutbound) {
		t.Fatalf("WELCOME without session id: err=%v", err)
	}

	tune.Session.ValidateSensor = false
	off := NewServer(Config{Tuning: tune, Validator: v}, log.New(io.Discard, "", 0))
	if _, err := off.encode(bad); err != nil {
		t.Fatalf("validation off: %v", err)
	}
}
