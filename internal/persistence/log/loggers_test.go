package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
)

func readLines(t *testing.T, dir string) []map[string]any {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one log file in %s, got %v (%v)", dir, files, err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var out []map[string]any
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestEventLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	l.Emit(events.ForGame(events.PeriodAdvanced, "g1", 1, nil))
	if err := l.WriteEvent(events.ForEmpire(events.ResourcesChanged, "g1", "e1", 1, map[string]float64{"energy": 3})); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	lines := readLines(t, filepath.Join(dir, "events"))
	if len(lines) != 2 {
		t.Fatalf("lines: %d", len(lines))
	}
	if lines[1]["topic"] != "games.g1.empires.e1.resources.changed" {
		t.Fatalf("topic: %v", lines[1]["topic"])
	}
}

func TestPeriodLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewPeriodLogger(dir)
	if err := l.WritePeriod(game.PeriodLogEntry{GameID: "g1", Period: 4, Advanced: 2, Completed: []string{"j1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	lines := readLines(t, filepath.Join(dir, "periods"))
	if len(lines) != 1 || lines[0]["period"] != float64(4) {
		t.Fatalf("lines: %v", lines)
	}
}

func TestReadBackAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	for i := uint64(1); i <= 2; i++ {
		l := NewEventLogger(dir)
		l.Emit(events.ForGame(events.PeriodAdvanced, "g1", i, nil))
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	var periods []uint64
	err := ReadEvents(dir, func(ev events.Event) error {
		periods = append(periods, ev.Period)
		return nil
	})
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(periods) != 2 || periods[0] != 1 || periods[1] != 2 {
		t.Fatalf("periods: %v", periods)
	}

	pl := NewPeriodLogger(dir)
	_ = pl.WritePeriod(game.PeriodLogEntry{GameID: "g1", Period: 1})
	_ = pl.Close()
	n := 0
	if err := ReadPeriods(dir, func(game.PeriodLogEntry) error { n++; return nil }); err != nil || n != 1 {
		t.Fatalf("read periods: n=%d err=%v", n, err)
	}
}

func TestReadMissingDir(t *testing.T) {
	if err := ReadEvents(filepath.Join(t.TempDir(), "nope"), func(events.Event) error { return nil }); err != nil {
		t.Fatalf("missing dir: %v", err)
	}
}

func TestEventLoggerReportsWriteFailures(t *testing.T) {
	dir := t.TempDir()
	// A file where the events directory should be makes every write fail.
	if err := os.WriteFile(filepath.Join(dir, "events"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := NewEventLogger(dir)
	var calls []uint64
	l.OnError(func(err error, failures uint64) { calls = append(calls, failures) })
	for i := 0; i < 3; i++ {
		l.Emit(events.ForGame(events.PeriodAdvanced, "g1", uint64(i), nil))
	}
	if l.Failures() != 3 {
		t.Fatalf("failures: %d", l.Failures())
	}
	if len(calls) != 1 || calls[0] != 1 {
		t.Fatalf("callback calls: %v", calls)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "periods")
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }
	if err := w.Write(map[string]int{"period": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"period": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := ListFiles(dir, "periods")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "periods-2026-03-01-10.jsonl.zst" {
		t.Fatalf("files: %v", files)
	}
}
