package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gridpilot.ai/internal/protocol"
	"gridpilot.ai/internal/session"
	"gridpilot.ai/internal/sim/tuning"
)

type Config struct {
	Tuning tuning.Tuning

	// Validator checks inbound HELLO/SENSOR and every outbound reply when
	// Tuning.Session.ValidateSensor is set.
	Validator *protocol.Validator

	Decisions session.DecisionWriter
	Index     session.Indexer
}

// Server serves one mission per websocket connection: HELLO, then SENSOR/ACT pairs.
type Server struct {
	cfg Config
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg Config, logger *log.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.log.Printf("session=%s mission=%s advanced=%v started", sess.ID(), sess.Controller().MissionID(), sess.Controller().Advanced())

		readTimeout := ms(s.cfg.Tuning.Session.ReadTimeoutMs, 60*time.Second)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.handleMessage(sess, msg)
			if err := s.writeJSON(conn, reply); err != nil {
				if errors.Is(err, errOutbound) {
					s.log.Printf("session=%s: %v", sess.ID(), err)
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "bad reply"), time.Now().Add(time.Second))
				}
				break
			}
		}
		s.log.Printf("session=%s closed phase=%s", sess.ID(), sess.Controller().Phase())
	}
}

func (s *Server) handleMessage(sess *session.Session, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError(0, protocol.ErrProtoBadRequest, "bad json")
	}
	if base.Type != protocol.TypeSensor {
		return protocol.NewError(0, protocol.ErrProtoBadRequest, "expected SENSOR, got "+base.Type)
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError(0, protocol.ErrProtoVersion, "bad protocol_version")
	}
	if err := s.validate(protocol.TypeSensor, msg); err != nil {
		return protocol.NewError(0, protocol.ErrBadRequest, err.Error())
	}
	var sm protocol.SensorMsg
	if err := json.Unmarshal(msg, &sm); err != nil {
		return protocol.NewError(0, protocol.ErrBadRequest, err.Error())
	}
	act, perr, err := sess.HandleSensor(sm)
	if err != nil {
		s.log.Printf("session=%s tick=%d: %v", sess.ID(), sm.Tick, err)
	}
	if perr != nil {
		return *perr
	}
	return act
}

func (s *Server) handshake(conn *websocket.Conn) *session.Session {
	_ = conn.SetReadDeadline(time.Now().Add(ms(s.cfg.Tuning.Session.HandshakeTimeoutMs, 5*time.Second)))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.closeWith(conn, "expected HELLO")
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		s.closeWith(conn, "bad protocol_version")
		return nil
	}
	if err := s.validate(protocol.TypeHello, msg); err != nil {
		s.closeWith(conn, "bad HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}

	sess, welcome := session.Start(hello, session.Options{
		Params:    s.cfg.Tuning.NavigationParams(),
		Decisions: s.cfg.Decisions,
		Index:     s.cfg.Index,
	})
	if err := s.writeJSON(conn, welcome); err != nil {
		if errors.Is(err, errOutbound) {
			s.log.Printf("session=%s: %v", sess.ID(), err)
		}
		return nil
	}
	return sess
}

func (s *Server) validate(typ string, msg []byte) error {
	if s.cfg.Validator == nil || !s.cfg.Tuning.Session.ValidateSensor {
		return nil
	}
	return s.cfg.Validator.Validate(typ, msg)
}

func (s *Server) closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

var errOutbound = errors.New("outbound message fails schema")

// encode marshals an outbound message and, with validation on, checks it
// against the schema of its own type.
func (s *Server) encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		return nil, err
	}
	if err := s.validate(base.Type, b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errOutbound, base.Type, err)
	}
	return b, nil
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	b, err := s.encode(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(ms(s.cfg.Tuning.Session.WriteTimeoutMs, 5*time.Second)))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func ms(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}
