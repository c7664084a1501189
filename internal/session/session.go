// Package session binds one host mission to one controller and translates
// between wire messages and decisions.
package session

import (
	"fmt"

	"github.com/google/uuid"

	persistlog "gridpilot.ai/internal/persistence/log"
	"gridpilot.ai/internal/protocol"
	"gridpilot.ai/internal/sim/controller"
	"gridpilot.ai/internal/sim/navigation"
)

// DecisionWriter receives every decision; implemented by persistlog.DecisionLogger.
type DecisionWriter interface {
	WriteDecision(persistlog.DecisionLogEntry) error
}

// Indexer receives sessions and decisions; implemented by indexdb.SQLiteIndex.
type Indexer interface {
	RecordSession(sessionID, missionID string, advanced bool)
	RecordDecision(persistlog.DecisionLogEntry)
}

type Options struct {
	Params    navigation.Params
	Decisions DecisionWriter
	Index     Indexer
	// NewID overrides session id generation (tests).
	NewID func() string
}

type Session struct {
	id   string
	ctrl *controller.Controller
	opts Options

	lastTick uint64
	seenTick bool
}

// Start opens a session for hello and returns it with the WELCOME reply.
func Start(hello protocol.HelloMsg, opts Options) (*Session, protocol.WelcomeMsg) {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	s := &Session{
		id:   newID(),
		ctrl: controller.New(hello.MissionID, hello.AdvancedMode, controller.WithParams(opts.Params)),
		opts: opts,
	}
	if opts.Index != nil {
		opts.Index.RecordSession(s.id, hello.MissionID, hello.AdvancedMode)
	}
	return s, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.id,
		MissionID:       hello.MissionID,
		AdvancedMode:    hello.AdvancedMode,
		Phase:           string(s.ctrl.Phase()),
	}
}

func (s *Session) ID() string                         { return s.id }
func (s *Session) Controller() *controller.Controller { return s.ctrl }

// HandleSensor decides one tick. Ticks must strictly increase; a repeated or
// older tick is rejected so the controller runs at most once per tick.
// A non-nil error from the decision writer is returned alongside a valid ACT.
func (s *Session) HandleSensor(msg protocol.SensorMsg) (protocol.ActMsg, *protocol.ErrorMsg, error) {
	if s.seenTick && msg.Tick <= s.lastTick {
		e := protocol.NewError(msg.Tick, protocol.ErrStale, fmt.Sprintf("tick %d not after %d", msg.Tick, s.lastTick))
		return protocol.ActMsg{}, &e, nil
	}
	s.lastTick = msg.Tick
	s.seenTick = true

	d := s.ctrl.Decide(msg.Sensor.Snapshot())
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            msg.Tick,
		SessionID:       s.id,
		Action:          string(d.Action),
		Phase:           string(d.Phase),
	}

	entry := persistlog.DecisionLogEntry{
		Tick:      msg.Tick,
		SessionID: s.id,
		MissionID: s.ctrl.MissionID(),
		Advanced:  s.ctrl.Advanced(),
		Sensor:    msg.Sensor,
		Action:    act.Action,
		Phase:     act.Phase,
		Mode:      string(d.Mode),
		Found:     d.Result.Found,
		PathLen:   len(d.Result.Path),
		Score:     d.Result.Score,
		Expanded:  d.Result.Expanded,
	}
	if s.opts.Index != nil {
		s.opts.Index.RecordDecision(entry)
	}
	var err error
	if s.opts.Decisions != nil {
		if werr := s.opts.Decisions.WriteDecision(entry); werr != nil {
			err = fmt.Errorf("decision log: %w", werr)
		}
	}
	return act, nil, err
}
