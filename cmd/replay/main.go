package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	persistlog "stellarforge.ai/internal/persistence/log"
	"stellarforge.ai/internal/persistence/snapshot"
	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
	"stellarforge.ai/internal/sim/model"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		gameID   = flag.String("game", "", "game id")
		snapPath = flag.String("snapshot", "", "snapshot to start from (optional; jobs it holds count as created)")
		empire   = flag.String("empire", "", "only print events of this empire")
		printAll = flag.Bool("print", false, "print every event")
		toPeriod = flag.Uint64("to_period", 0, "stop at period (inclusive, optional)")
	)
	flag.Parse()

	if *gameID == "" {
		fmt.Fprintln(os.Stderr, "missing -game")
		os.Exit(2)
	}
	gameDir := filepath.Join(*dataDir, "games", *gameID)

	r := newReplay(*toPeriod)
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		if snap.Header.GameID != *gameID {
			fmt.Fprintf(os.Stderr, "snapshot belongs to game %s\n", snap.Header.GameID)
			os.Exit(2)
		}
		r.seed(snap)
		fmt.Printf("snapshot v%d game=%s period=%d empires=%d systems=%d fleets=%d ships=%d jobs=%d\n",
			snap.Header.Version, snap.Header.GameID, snap.Header.Period,
			len(snap.Empires), len(snap.Systems), len(snap.Fleets), len(snap.Ships), len(snap.Jobs))
	}
	if *printAll {
		r.out = os.Stdout
		r.empire = *empire
	}

	if err := persistlog.ReadPeriods(gameDir, r.period); err != nil && !errors.Is(err, errStop) {
		fmt.Fprintln(os.Stderr, "replay periods:", err)
		os.Exit(1)
	}
	if err := persistlog.ReadEvents(gameDir, r.event); err != nil && !errors.Is(err, errStop) {
		fmt.Fprintln(os.Stderr, "replay events:", err)
		os.Exit(1)
	}
	if err := r.finish(); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: periods=%d events=%d jobs=%d open=%d\n", r.periods, r.events, len(r.jobs), r.open())
}

var errStop = errors.New("stop")

type jobState int

const (
	jobRunning jobState = iota + 1
	jobCompleted
	jobDeleted
)

// replay checks that the period and event logs of a game are consistent:
// periods advance one at a time, and every job goes created, optionally
// completed, then deleted, with nothing after deletion.
type replay struct {
	to     uint64
	out    io.Writer
	empire string

	lastPeriod uint64
	periods    int
	events     int
	completed  map[string]uint64
	jobs       map[string]jobState
}

func newReplay(to uint64) *replay {
	return &replay{to: to, completed: map[string]uint64{}, jobs: map[string]jobState{}}
}

func (r *replay) seed(snap snapshot.GameSnapshotV1) {
	r.lastPeriod = snap.Header.Period
	for _, j := range snap.Jobs {
		if j.Completed() {
			r.jobs[j.ID] = jobCompleted
		} else {
			r.jobs[j.ID] = jobRunning
		}
	}
}

func (r *replay) period(e game.PeriodLogEntry) error {
	if e.Period <= r.lastPeriod && r.periods == 0 {
		// Entries written before the snapshot.
		return nil
	}
	if r.to != 0 && e.Period > r.to {
		return errStop
	}
	if r.periods > 0 || r.lastPeriod > 0 {
		if e.Period != r.lastPeriod+1 {
			return fmt.Errorf("period gap: %d after %d", e.Period, r.lastPeriod)
		}
	}
	r.lastPeriod = e.Period
	r.periods++
	for _, id := range e.Completed {
		r.completed[id] = e.Period
	}
	return nil
}

func (r *replay) event(ev events.Event) error {
	if r.to != 0 && ev.Period > r.to {
		return errStop
	}
	r.events++
	if r.out != nil && (r.empire == "" || ev.Empire == "" || ev.Empire == r.empire) {
		data, _ := json.Marshal(ev.Data)
		fmt.Fprintf(r.out, "%6d %-18s %s %s\n", ev.Period, ev.Kind, ev.Topic, data)
	}

	switch ev.Kind {
	case events.JobCreated, events.JobCompleted, events.JobDeleted:
	default:
		return nil
	}
	id, err := jobID(ev)
	if err != nil {
		return err
	}
	prev := r.jobs[id]
	switch ev.Kind {
	case events.JobCreated:
		if prev != 0 {
			return fmt.Errorf("period %d: job %s created twice", ev.Period, id)
		}
		r.jobs[id] = jobRunning
	case events.JobCompleted:
		if prev != jobRunning {
			return fmt.Errorf("period %d: job %s completed while not running", ev.Period, id)
		}
		if p, ok := r.completed[id]; ok && p != ev.Period {
			return fmt.Errorf("job %s completed in period %d but logged in period %d", id, ev.Period, p)
		}
		r.jobs[id] = jobCompleted
	case events.JobDeleted:
		if prev == jobDeleted {
			return fmt.Errorf("period %d: job %s deleted twice", ev.Period, id)
		}
		r.jobs[id] = jobDeleted
	}
	return nil
}

func (r *replay) finish() error {
	for id, p := range r.completed {
		if r.jobs[id] == jobRunning {
			return fmt.Errorf("job %s logged complete in period %d without a job.completed event", id, p)
		}
	}
	return nil
}

func (r *replay) open() int {
	n := 0
	for _, s := range r.jobs {
		if s != jobDeleted {
			n++
		}
	}
	return n
}

// jobID reads the id of the job copy carried by a job event.
func jobID(ev events.Event) (string, error) {
	b, err := json.Marshal(ev.Data)
	if err != nil {
		return "", err
	}
	var j model.Job
	if err := json.Unmarshal(b, &j); err != nil || j.ID == "" {
		return "", fmt.Errorf("period %d: %s event without a job", ev.Period, ev.Kind)
	}
	return j.ID, nil
}
