package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/aggregates"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	requestTimeout   = 3 * time.Second
)

// Games resolves a game id to its runtime.
type Games interface {
	Game(id string) (*game.Game, error)
}

type Server struct {
	games Games
	bus   *events.Bus
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(games Games, bus *events.Bus, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		games: games,
		bus:   bus,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type session struct {
	game   *game.Game
	empire string
	out    chan []byte
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

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sub := s.bus.Subscribe(events.ForEmpireFilter(sess.game.ID(), sess.empire))
		defer sub.Close()

		// Event forwarder. A slow client misses events rather than
		// stalling the bus.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub.C:
					if !ok {
						return
					}
					b, err := json.Marshal(eventMsg(ev))
					if err != nil {
						continue
					}
					select {
					case sess.out <- b:
					default:
					}
				}
			}
		}()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			res := s.dispatch(ctx, sess, msg)
			if res == nil {
				continue
			}
			b, err := json.Marshal(res)
			if err != nil {
				s.log.Printf("ws: marshal result: %v", err)
				continue
			}
			select {
			case sess.out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closePolicy(conn, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return nil
	}
	g, err := s.games.Game(hello.GameID)
	if err != nil {
		closePolicy(conn, "unknown game")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := g.Empire(ctx, hello.EmpireID); err != nil {
		closePolicy(conn, "unknown empire")
		return nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		GameID:          g.ID(),
		EmpireID:        hello.EmpireID,
		Period:          g.Period(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return &session{game: g, empire: hello.EmpireID, out: make(chan []byte, maxQ)}
}

// dispatch runs one client command and returns its RESULT. Messages that
// are not commands are ignored.
func (s *Server) dispatch(ctx context.Context, sess *session, msg []byte) *protocol.ResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return badRequest("", "malformed message")
	}
	if base.ProtocolVersion != protocol.Version {
		return badRequest("", "bad protocol_version")
	}

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch base.Type {
	case protocol.TypeJobCreate:
		var m protocol.JobCreateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return badRequest("", "bad JOB_CREATE")
		}
		j, err := sess.game.CreateJob(rctx, sess.empire, m.Intent)
		return result(m.Ref, j, err)
	case protocol.TypeJobCancel:
		var m protocol.JobCancelMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return badRequest("", "bad JOB_CANCEL")
		}
		j, err := sess.game.CancelJob(rctx, sess.empire, m.JobID)
		return result(m.Ref, j, err)
	case protocol.TypeAggregate:
		var m protocol.AggregateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return badRequest("", "bad AGGREGATE")
		}
		r, err := sess.game.Aggregate(rctx, sess.empire, m.Name, aggregates.Params(m.Params))
		return result(m.Ref, r, err)
	}
	return nil
}

func result(ref string, data any, err error) *protocol.ResultMsg {
	res := &protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version, Ref: ref}
	if err != nil {
		res.Code = apperrors.CodeOf(err)
		res.Message = err.Error()
		return res
	}
	res.OK = true
	res.Data = data
	return res
}

func badRequest(ref, message string) *protocol.ResultMsg {
	return &protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		Code:            protocol.ErrProtoBadRequest,
		Message:         message,
	}
}

func eventMsg(ev events.Event) protocol.EventMsg {
	m := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		GameID:          ev.Game,
		Period:          ev.Period,
		Kind:            string(ev.Kind),
		Topic:           ev.Topic,
	}
	if ev.Data != nil {
		if b, err := json.Marshal(ev.Data); err == nil {
			m.Data = b
		}
	}
	return m
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
