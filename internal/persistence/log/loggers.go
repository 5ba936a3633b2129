package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
)

// JSONLZstdWriter appends JSON lines to <dir>/<prefix>-<yyyy-mm-dd-hh>.jsonl.zst,
// starting a new file every UTC hour. Each line is flushed as written so a
// crash loses at most the current zstd block.
type JSONLZstdWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	hour string
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix, now: time.Now}
}

func (w *JSONLZstdWriter) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if hour := w.now().UTC().Format("2006-01-02-15"); hour != w.hour || w.buf == nil {
		if err := w.open(hour); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.release()
}

func (w *JSONLZstdWriter) open(hour string) error {
	if err := w.release(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return err
	}
	w.file, w.zw, w.buf, w.hour = f, zw, bufio.NewWriterSize(zw, 64<<10), hour
	return nil
}

func (w *JSONLZstdWriter) release() error {
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	zErr := w.zw.Close()
	fErr := w.file.Close()
	w.file, w.zw, w.buf = nil, nil, nil
	for _, err := range []error{flushErr, zErr, fErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// EventLogger writes every domain event of a game.
type EventLogger struct {
	w       *JSONLZstdWriter
	onError func(err error, failures uint64)
	fails   atomic.Uint64
}

func NewEventLogger(gameDir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(filepath.Join(gameDir, "events"), "events")}
}

// OnError sets the callback for failed writes from Emit. It is called on
// the first failure and then every 1000th.
func (l *EventLogger) OnError(fn func(err error, failures uint64)) { l.onError = fn }

func (l *EventLogger) WriteEvent(ev events.Event) error { return l.w.Write(ev) }
func (l *EventLogger) Close() error                     { return l.w.Close() }

// Failures counts events Emit could not write.
func (l *EventLogger) Failures() uint64 { return l.fails.Load() }

// Emit makes the logger an events.Sink.
func (l *EventLogger) Emit(ev events.Event) {
	err := l.WriteEvent(ev)
	if err == nil {
		return
	}
	n := l.fails.Add(1)
	if l.onError != nil && (n == 1 || n%1000 == 0) {
		l.onError(err, n)
	}
}

// PeriodLogger writes one JSONL entry per period.
type PeriodLogger struct{ w *JSONLZstdWriter }

func NewPeriodLogger(gameDir string) *PeriodLogger {
	return &PeriodLogger{w: NewJSONLZstdWriter(filepath.Join(gameDir, "periods"), "periods")}
}

func (l *PeriodLogger) WritePeriod(v game.PeriodLogEntry) error { return l.w.Write(v) }
func (l *PeriodLogger) Close() error                            { return l.w.Close() }
