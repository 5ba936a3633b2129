package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"stellarforge.ai/internal/sim/model"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	GameID  string `json:"game_id"`
	Period  uint64 `json:"period"`
}

// GameSnapshotV1 is the full state of one game at the end of a period.
type GameSnapshotV1 struct {
	Header Header `json:"header"`

	NextJobSeq uint64 `json:"next_job_seq"`
	// Catalog digests at the time of the snapshot.
	Catalogs map[string]string `json:"catalogs,omitempty"`

	Empires []model.Empire `json:"empires"`
	Systems []model.System `json:"systems"`
	Fleets  []model.Fleet  `json:"fleets"`
	Ships   []model.Ship   `json:"ships"`
	Jobs    []model.Job    `json:"jobs"`
}

// FromState copies st into a snapshot with entities sorted by id.
func FromState(st *model.State, digests map[string]string) GameSnapshotV1 {
	s := GameSnapshotV1{
		Header:     Header{Version: Version, GameID: st.GameID, Period: st.Period},
		NextJobSeq: st.NextJobSeq,
		Catalogs:   digests,
	}
	for _, id := range sortedIDs(st.Empires) {
		s.Empires = append(s.Empires, *st.Empires[id].Clone())
	}
	for _, id := range sortedIDs(st.Systems) {
		s.Systems = append(s.Systems, *st.Systems[id].Clone())
	}
	for _, id := range sortedIDs(st.Fleets) {
		s.Fleets = append(s.Fleets, *st.Fleets[id].Clone())
	}
	for _, id := range sortedIDs(st.Ships) {
		s.Ships = append(s.Ships, *st.Ships[id].Clone())
	}
	for _, id := range sortedIDs(st.Jobs) {
		s.Jobs = append(s.Jobs, *st.Jobs[id].Clone())
	}
	return s
}

// State rebuilds a game state. The returned state has no pending changes.
func (s GameSnapshotV1) State() *model.State {
	st := model.NewState(s.Header.GameID)
	st.Period = s.Header.Period
	for i := range s.Empires {
		st.PutEmpire(s.Empires[i].Clone())
	}
	for i := range s.Systems {
		st.PutSystem(s.Systems[i].Clone())
	}
	for i := range s.Fleets {
		st.PutFleet(s.Fleets[i].Clone())
	}
	for i := range s.Ships {
		st.PutShip(s.Ships[i].Clone())
	}
	for i := range s.Jobs {
		st.PutJob(s.Jobs[i].Clone())
	}
	if s.NextJobSeq > st.NextJobSeq {
		st.NextJobSeq = s.NextJobSeq
	}
	st.ResetChanges()
	return st
}

func sortedIDs[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PathFor is where the snapshot of a game at period is stored.
func PathFor(dataDir, gameID string, period uint64) string {
	return filepath.Join(dataDir, "games", gameID, "snapshots", fmt.Sprintf("%d.snap.zst", period))
}

// Latest returns the path of the highest-period snapshot of a game, or ""
// when there is none.
func Latest(dataDir, gameID string) (string, error) {
	dir := filepath.Join(dataDir, "games", gameID, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	best, found := uint64(0), ""
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		p, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if found == "" || p > best {
			best, found = p, filepath.Join(dir, name)
		}
	}
	return found, nil
}

func WriteSnapshot(path string, snap GameSnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (GameSnapshotV1, error) {
	var snap GameSnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header is repeated inside the gob payload.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
