package r2s3

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Uploader is the part of Client the mirror needs.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

type Stats struct {
	Queued   int
	Uploaded uint64
	Failed   uint64
	Dropped  uint64
}

// Mirror copies files written under dataDir to the bucket in the
// background. Object keys are the path relative to dataDir under prefix,
// e.g. stellarforge/games/demo/snapshots/00000000000000000100.snap.zst.
type Mirror struct {
	up      Uploader
	dataDir string
	prefix  string
	logger  *log.Logger
	backoff time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan string
	wg     sync.WaitGroup

	uploaded atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

func NewMirror(up Uploader, dataDir, prefix string, queue int, logger *log.Logger) *Mirror {
	if queue <= 0 {
		queue = 64
	}
	m := &Mirror{
		up:      up,
		dataDir: dataDir,
		prefix:  strings.Trim(filepath.ToSlash(prefix), "/"),
		logger:  logger,
		backoff: 250 * time.Millisecond,
		queue:   make(chan string, queue),
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Enqueue schedules localPath for upload without blocking. A full queue
// drops the file.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- localPath:
	default:
		n := m.dropped.Add(1)
		m.printf("r2 mirror: queue full, dropped %s (dropped_total=%d)", localPath, n)
	}
}

// Close drains pending uploads. Later Enqueue calls are ignored.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Queued:   len(m.queue),
		Uploaded: m.uploaded.Load(),
		Failed:   m.failed.Load(),
		Dropped:  m.dropped.Load(),
	}
}

func (m *Mirror) loop() {
	defer m.wg.Done()
	for p := range m.queue {
		key, err := m.keyFor(p)
		if err != nil {
			m.failed.Add(1)
			m.printf("r2 mirror: skip %s: %v", p, err)
			continue
		}
		if err := m.upload(key, p); err != nil {
			m.failed.Add(1)
			m.printf("r2 mirror: upload %s failed: %v", key, err)
			continue
		}
		m.uploaded.Add(1)
		m.printf("r2 mirror: uploaded %s", key)
	}
}

func (m *Mirror) upload(key, localPath string) error {
	const attempts = 3
	var err error
	for i := 1; i <= attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.up.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		if i < attempts {
			time.Sleep(time.Duration(i*i) * m.backoff)
		}
	}
	return err
}

func (m *Mirror) keyFor(localPath string) (string, error) {
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("outside data dir %s", base)
	}
	if m.prefix == "" {
		return rel, nil
	}
	return path.Join(m.prefix, rel), nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
