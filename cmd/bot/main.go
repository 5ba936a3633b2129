package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"

	"stellarforge.ai/internal/protocol"
	"stellarforge.ai/internal/sim/events"
)

// plan is the job list a bot works through, one job at a time.
type plan struct {
	Jobs []protocol.JobIntent `yaml:"jobs"`
}

func loadPlan(path string) (plan, error) {
	var p plan
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("plan: %w", err)
	}
	for i, in := range p.Jobs {
		if err := protocol.ValidateIntent(in); err != nil {
			return p, fmt.Errorf("plan job %d: %w", i, err)
		}
	}
	return p, nil
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		gameID   = flag.String("game", "", "game id (default: server default game)")
		empireID = flag.String("empire", "", "empire id")
		planPath = flag.String("plan", "", "yaml file with the jobs to create in order (optional)")
		every    = flag.Uint64("report_every", 10, "query resource income every N periods (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	p, err := loadPlan(*planPath)
	if err != nil {
		logger.Fatalf("load plan: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		GameID:          *gameID,
		EmpireID:        *empireID,
		MaxQueue:        64,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{conn: conn, logger: logger, plan: p.Jobs, every: *every}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				logger.Printf("closed: %d %s", ce.Code, ce.Text)
			}
			return
		}
		b.handle(msg)
	}
}

type bot struct {
	conn   *websocket.Conn
	logger *log.Logger
	plan   []protocol.JobIntent
	every  uint64

	next    int
	pending string // ref of the in-flight JOB_CREATE
	current string // id of the plan job being worked on
	seq     int
}

func (b *bot) handle(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		b.logger.Printf("WELCOME game=%s empire=%s period=%d", w.GameID, w.EmpireID, w.Period)
		b.submit()

	case protocol.TypeResult:
		var r protocol.ResultMsg
		if err := json.Unmarshal(msg, &r); err != nil {
			return
		}
		if !r.OK {
			b.logger.Printf("RESULT %s failed: %s %s", r.Ref, r.Code, r.Message)
			if r.Ref == b.pending {
				// Skip the job that cannot be created.
				b.pending = ""
				b.submit()
			}
			return
		}
		if r.Ref == b.pending {
			b.pending = ""
			if m, ok := r.Data.(map[string]any); ok {
				b.current, _ = m["id"].(string)
			}
			b.logger.Printf("job %s accepted", b.current)
			return
		}
		b.logger.Printf("RESULT %s: %v", r.Ref, r.Data)

	case protocol.TypeEvent:
		var ev protocol.EventMsg
		if err := json.Unmarshal(msg, &ev); err != nil {
			return
		}
		b.event(ev)
	}
}

func (b *bot) event(ev protocol.EventMsg) {
	switch events.Kind(ev.Kind) {
	case events.JobCompleted, events.JobDeleted:
		var j struct {
			ID     string `json:"id"`
			Result *struct {
				Code string `json:"code"`
			} `json:"result"`
		}
		_ = json.Unmarshal(ev.Data, &j)
		if j.ID != "" && j.ID == b.current {
			if j.Result != nil {
				b.logger.Printf("job %s finished: %s", j.ID, j.Result.Code)
			}
			b.current = ""
			b.submit()
		}
	case events.PeriodAdvanced:
		if b.every > 0 && ev.Period%b.every == 0 {
			b.send(protocol.AggregateMsg{
				Type:            protocol.TypeAggregate,
				ProtocolVersion: protocol.Version,
				Ref:             b.ref("income"),
				Name:            "resources.periodic",
				Params:          map[string]string{"resource": "minerals"},
			})
		}
	default:
		b.logger.Printf("EVENT %s period=%d", ev.Topic, ev.Period)
	}
}

// submit creates the next plan job unless one is already in flight.
func (b *bot) submit() {
	if b.pending != "" || b.current != "" || b.next >= len(b.plan) {
		return
	}
	in := b.plan[b.next]
	b.next++
	b.pending = b.ref("job")
	b.send(protocol.JobCreateMsg{
		Type:            protocol.TypeJobCreate,
		ProtocolVersion: protocol.Version,
		Ref:             b.pending,
		Intent:          in,
	})
}

func (b *bot) ref(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s_%d", prefix, b.seq)
}

func (b *bot) send(v any) {
	if err := b.conn.WriteJSON(v); err != nil {
		b.logger.Printf("send: %v", err)
	}
}
