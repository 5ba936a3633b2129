package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
	"stellarforge.ai/internal/sim/model"
	"stellarforge.ai/internal/sim/tuning"
)

type gameMap map[string]*game.Game

func (m gameMap) Game(id string) (*game.Game, error) {
	g := m[id]
	if g == nil {
		return nil, apperrors.New(protocol.ErrGameNotFound, "game "+id+" not found")
	}
	return g, nil
}

func newTestServer(t *testing.T) string {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	st := model.NewState("g1")
	st.PutEmpire(&model.Empire{ID: "e1", Resources: map[string]float64{"minerals": 100}})
	st.PutSystem(&model.System{ID: "A", Upgrade: model.StageColonized, Owner: "e1", Capacity: 10, Districts: map[string]int{}, Links: map[string]float64{}})
	st.ResetChanges()

	bus := events.NewBus(16)
	g, err := game.New(game.Options{
		Config:   game.Config{ID: "g1", PeriodMs: int(time.Hour / time.Millisecond)},
		Catalogs: cats,
		Tuning:   tuning.Defaults(),
		State:    st,
		Sink:     bus,
	})
	if err != nil {
		t.Fatalf("game: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = g.Run(ctx) }()

	srv := httptest.NewServer(NewServer(gameMap{"g1": g}, bus, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-g.Done()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, hello protocol.HelloMsg) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	hello.Type = protocol.TypeHello
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	return conn
}

type inbound struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref"`
	OK      bool            `json:"ok"`
	Code    string          `json:"code"`
	Kind    string          `json:"kind"`
	Topic   string          `json:"topic"`
	GameID  string          `json:"game_id"`
	Empire  string          `json:"empire_id"`
	Period  uint64          `json:"period"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func read(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m inbound
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

// readResult skips pushed events until the RESULT for ref arrives.
func readResult(t *testing.T, conn *websocket.Conn, ref string, seen map[string]bool) inbound {
	t.Helper()
	for i := 0; i < 20; i++ {
		m := read(t, conn)
		if m.Type == protocol.TypeEvent {
			seen[m.Kind] = true
			continue
		}
		if m.Type == protocol.TypeResult && m.Ref == ref {
			return m
		}
	}
	t.Fatalf("no RESULT for %s", ref)
	return inbound{}
}

func TestHandshakeAndCommands(t *testing.T) {
	url := newTestServer(t)
	conn := dial(t, url, protocol.HelloMsg{ProtocolVersion: protocol.Version, GameID: "g1", EmpireID: "e1"})

	w := read(t, conn)
	if w.Type != protocol.TypeWelcome || w.GameID != "g1" || w.Empire != "e1" {
		t.Fatalf("welcome: %+v", w)
	}

	seen := map[string]bool{}
	create := protocol.JobCreateMsg{
		Type:            protocol.TypeJobCreate,
		ProtocolVersion: protocol.Version,
		Ref:             "r1",
		Intent:          protocol.JobIntent{Type: "building", System: "A", Building: "exchange"},
	}
	if err := conn.WriteJSON(create); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := readResult(t, conn, "r1", seen)
	if !res.OK {
		t.Fatalf("create result: %+v", res)
	}
	var j model.Job
	if err := json.Unmarshal(res.Data, &j); err != nil || j.Total != 9 {
		t.Fatalf("job data: %s (%v)", res.Data, err)
	}

	cancelMsg := protocol.JobCancelMsg{Type: protocol.TypeJobCancel, ProtocolVersion: protocol.Version, Ref: "r2", JobID: "missing"}
	if err := conn.WriteJSON(cancelMsg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if res := readResult(t, conn, "r2", seen); res.OK || res.Code != protocol.ErrNotFound {
		t.Fatalf("cancel result: %+v", res)
	}

	agg := protocol.AggregateMsg{Type: protocol.TypeAggregate, ProtocolVersion: protocol.Version, Ref: "r3", Name: "resources.periodic"}
	if err := conn.WriteJSON(agg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if res := readResult(t, conn, "r3", seen); res.OK || res.Code != protocol.ErrBadRequest {
		t.Fatalf("aggregate result: %+v", res)
	}

	cancelMsg = protocol.JobCancelMsg{Type: protocol.TypeJobCancel, ProtocolVersion: protocol.Version, Ref: "r4", JobID: j.ID}
	if err := conn.WriteJSON(cancelMsg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if res := readResult(t, conn, "r4", seen); !res.OK {
		t.Fatalf("cancel result: %+v", res)
	}

	// job.deleted is pushed after the cancel was persisted.
	deadline := time.Now().Add(5 * time.Second)
	for !seen[string(events.JobDeleted)] && time.Now().Before(deadline) {
		if m := read(t, conn); m.Type == protocol.TypeEvent {
			seen[m.Kind] = true
		}
	}
	if !seen[string(events.JobCreated)] || !seen[string(events.JobDeleted)] {
		t.Fatalf("events seen: %v", seen)
	}
}

func TestHandshakeRejects(t *testing.T) {
	url := newTestServer(t)
	cases := []struct {
		name  string
		hello protocol.HelloMsg
	}{
		{"bad version", protocol.HelloMsg{ProtocolVersion: "0.1", GameID: "g1", EmpireID: "e1"}},
		{"unknown game", protocol.HelloMsg{ProtocolVersion: protocol.Version, GameID: "g9", EmpireID: "e1"}},
		{"unknown empire", protocol.HelloMsg{ProtocolVersion: protocol.Version, GameID: "g1", EmpireID: "e9"}},
	}
	for _, tc := range cases {
		conn := dial(t, url, tc.hello)
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("%s: expected policy violation close, got %v", tc.name, err)
		}
	}
}
