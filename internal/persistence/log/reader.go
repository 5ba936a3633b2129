package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"stellarforge.ai/internal/sim/events"
	"stellarforge.ai/internal/sim/game"
)

// ListFiles returns the prefix-*.jsonl.zst files of dir in write order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadJSONL calls fn with every line of the given log files. Returning an
// error from fn stops the read.
func ReadJSONL(files []string, fn func(line []byte) error) error {
	for _, path := range files {
		if err := readFile(path, fn); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func readFile(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadEvents replays the event log of a game directory.
func ReadEvents(gameDir string, fn func(events.Event) error) error {
	files, err := ListFiles(filepath.Join(gameDir, "events"), "events")
	if err != nil {
		return err
	}
	return ReadJSONL(files, func(line []byte) error {
		var ev events.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		return fn(ev)
	})
}

// ReadPeriods replays the period log of a game directory.
func ReadPeriods(gameDir string, fn func(game.PeriodLogEntry) error) error {
	files, err := ListFiles(filepath.Join(gameDir, "periods"), "periods")
	if err != nil {
		return err
	}
	return ReadJSONL(files, func(line []byte) error {
		var e game.PeriodLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		return fn(e)
	})
}
