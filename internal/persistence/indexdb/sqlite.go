package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	persistlog "gridpilot.ai/internal/persistence/log"
	"gridpilot.ai/internal/sim/tuning"
)

// SQLiteIndex is a read-model over decisions. It never feeds back into the controller;
// the JSONL decision log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against close(ch).
	mu     sync.RWMutex
	closed bool

	flushEvery time.Duration

	dropSession  atomic.Uint64
	dropDecision atomic.Uint64
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqDecision
)

type req struct {
	kind reqKind

	session  sessionRow
	decision persistlog.DecisionLogEntry
}

type sessionRow struct {
	SessionID string
	MissionID string
	Advanced  bool
	StartedAt string
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropSessionTotal  uint64
	DropDecisionTotal uint64
}

// defaultFlushEvery bounds how long a written row may sit in an open transaction.
const defaultFlushEvery = 2 * time.Second

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, defaultFlushEvery)
}

func openSQLite(path string, flushEvery time.Duration) (*SQLiteIndex, error) {
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:         db,
		ch:         make(chan req, 65536),
		flushEvery: flushEvery,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			mission_id TEXT NOT NULL,
			advanced INTEGER NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			action TEXT NOT NULL,
			phase TEXT NOT NULL,
			mode TEXT NOT NULL,
			found INTEGER NOT NULL,
			path_len INTEGER NOT NULL,
			score INTEGER NOT NULL,
			expanded INTEGER NOT NULL,
			self_x INTEGER NOT NULL,
			self_y INTEGER NOT NULL,
			PRIMARY KEY (session_id, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(session_id, action);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropSessionTotal:  s.dropSession.Load(),
		DropDecisionTotal: s.dropDecision.Load(),
	}
}

func (s *SQLiteIndex) RecordSession(sessionID, missionID string, advanced bool) {
	if s == nil {
		return
	}
	r := sessionRow{
		SessionID: sessionID,
		MissionID: missionID,
		Advanced:  advanced,
		StartedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if !s.enqueue(req{kind: reqSession, session: r}) {
		s.dropSession.Add(1)
	}
}

func (s *SQLiteIndex) RecordDecision(entry persistlog.DecisionLogEntry) {
	if s == nil {
		return
	}
	// Drop if the indexer falls behind.
	if !s.enqueue(req{kind: reqDecision, decision: entry}) {
		s.dropDecision.Add(1)
	}
}

// enqueue never blocks. After Close it silently discards r and reports true,
// so late writers from draining connections are not counted as drops.
func (s *SQLiteIndex) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// UpsertTuning stores the tuning actually applied, keyed by digest. Call it
// before recording: the single connection is held by the writer loop between commits.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows := [][2]string{
		{"schema_version", "1"},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"tuning_json", string(b)},
	}
	for _, r := range rows {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, r[0], r[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ActionCounts reports how often each action was chosen in one session.
// Meant for offline inspection of a closed index.
func (s *SQLiteIndex) ActionCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM decisions WHERE session_id=? GROUP BY action`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		out[action] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session_id,mission_id,advanced,started_at) VALUES(?,?,?,?)`)
	insertDecision, _ := s.db.Prepare(`INSERT OR REPLACE INTO decisions(session_id,tick,action,phase,mode,found,path_len,score,expanded,self_x,self_y) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertSession != nil {
			_ = insertSession.Close()
		}
		if insertDecision != nil {
			_ = insertDecision.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = s.flushEvery
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	handle := func(r req) {
		begin()
		if tx == nil {
			return
		}
		switch r.kind {
		case reqSession:
			se := r.session
			if insertSession != nil {
				if _, err := tx.Stmt(insertSession).Exec(se.SessionID, se.MissionID, boolInt(se.Advanced), se.StartedAt); err != nil {
					rollback()
					return
				}
				opCount++
			}

		case reqDecision:
			d := r.decision
			if insertDecision != nil {
				if _, err := tx.Stmt(insertDecision).Exec(
					d.SessionID,
					int64(d.Tick),
					d.Action,
					d.Phase,
					d.Mode,
					boolInt(d.Found),
					d.PathLen,
					d.Score,
					d.Expanded,
					d.Sensor.PlayerLocation[0],
					d.Sensor.PlayerLocation[1],
				); err != nil {
					rollback()
					return
				}
				opCount++
			}
		}
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
			flushIfNeeded()
		case <-ticker.C:
			// An idle index still commits what it holds.
			flushIfNeeded()
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
