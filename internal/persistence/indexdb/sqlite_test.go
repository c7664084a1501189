package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	persistlog "gridpilot.ai/internal/persistence/log"
	"gridpilot.ai/internal/protocol"
	"gridpilot.ai/internal/sim/tuning"
)

func TestSQLiteIndex_RecordDecisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	idx.RecordSession("s1", "m1", true)
	for tick, action := range []string{"RIGHT", "RIGHT", "LIFT_OBJECT", "UP", "DROP_OBJECT"} {
		idx.RecordDecision(persistlog.DecisionLogEntry{
			Tick:      uint64(tick),
			SessionID: "s1",
			MissionID: "m1",
			Action:    action,
			Phase:     "TRANSPORTING",
			Sensor:    protocol.SensorData{PlayerLocation: [2]int{tick, 0}},
		})
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		mission  string
		advanced int
	)
	if err := db.QueryRow(`SELECT mission_id,advanced FROM sessions WHERE session_id='s1'`).Scan(&mission, &advanced); err != nil {
		t.Fatalf("Scan session: %v", err)
	}
	if mission != "m1" || advanced != 1 {
		t.Fatalf("session row mismatch: mission=%q advanced=%d", mission, advanced)
	}

	var x int
	if err := db.QueryRow(`SELECT self_x FROM decisions WHERE session_id='s1' AND tick=3`).Scan(&x); err != nil {
		t.Fatalf("Scan decision: %v", err)
	}
	if x != 3 {
		t.Fatalf("self_x=%d want 3", x)
	}

	var digest string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning_digest'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning digest=%q err=%v", digest, err)
	}
}

func TestSQLiteIndex_ActionCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for tick, action := range []string{"RIGHT", "RIGHT", "NONE"} {
		idx.RecordDecision(persistlog.DecisionLogEntry{Tick: uint64(tick), SessionID: "s", Action: action, Phase: "TRANSPORTING"})
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: the writer loop has committed everything on Close.
	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	counts, err := idx.ActionCounts(context.Background(), "s")
	if err != nil {
		t.Fatalf("ActionCounts: %v", err)
	}
	if counts["RIGHT"] != 2 || counts["NONE"] != 1 || len(counts) != 2 {
		t.Fatalf("counts=%v", counts)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqDecision}

	s.RecordDecision(persistlog.DecisionLogEntry{Tick: 2})
	s.RecordSession("s", "m", false)

	st := s.Stats()
	if st.DropDecisionTotal != 1 || st.DropSessionTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	s.RecordSession("s", "m", true)
	s.RecordDecision(persistlog.DecisionLogEntry{})
	if err := s.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("nil UpsertTuning: %v", err)
	}
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("nil stats=%+v", st)
	}
}

func TestSQLiteIndex_RecordWhileClosing(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for tick := 0; tick < 500; tick++ {
				idx.RecordDecision(persistlog.DecisionLogEntry{Tick: uint64(tick), SessionID: fmt.Sprintf("s%d", g), Action: "NONE"})
			}
		}(g)
	}
	close(start)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	// Late writers after Close are discarded, not counted as drops.
	idx.RecordSession("late", "m", false)
	if st := idx.Stats(); st.DropSessionTotal != 0 || st.DropDecisionTotal != 0 {
		t.Fatalf("drops=%+v", st)
	}
}

func TestSQLiteIndex_IdleCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := openSQLite(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	defer idx.Close()

	idx.RecordSession("s1", "m1", false)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err == nil && n == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session row not committed while idle")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
