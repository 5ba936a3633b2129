package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/model"
)

var tables = map[model.Kind]string{
	model.KindEmpire: "empires",
	model.KindSystem: "systems",
	model.KindFleet:  "fleets",
	model.KindShip:   "ships",
	model.KindJob:    "jobs",
}

var upserts = map[model.Kind]string{
	model.KindEmpire: `INSERT INTO empires (game, id, doc) VALUES (:game, :id, :doc)
		ON CONFLICT(game, id) DO UPDATE SET doc=excluded.doc`,
	model.KindSystem: `INSERT INTO systems (game, id, owner, doc) VALUES (:game, :id, :owner, :doc)
		ON CONFLICT(game, id) DO UPDATE SET owner=excluded.owner, doc=excluded.doc`,
	model.KindFleet: `INSERT INTO fleets (game, id, empire, location, doc) VALUES (:game, :id, :empire, :location, :doc)
		ON CONFLICT(game, id) DO UPDATE SET empire=excluded.empire, location=excluded.location, doc=excluded.doc`,
	model.KindShip: `INSERT INTO ships (game, id, empire, fleet, doc) VALUES (:game, :id, :empire, :fleet, :doc)
		ON CONFLICT(game, id) DO UPDATE SET empire=excluded.empire, fleet=excluded.fleet, doc=excluded.doc`,
	model.KindJob: `INSERT INTO jobs (game, id, empire, seq, completed, doc) VALUES (:game, :id, :empire, :seq, :completed, :doc)
		ON CONFLICT(game, id) DO UPDATE SET completed=excluded.completed, doc=excluded.doc`,
}

func docRow(game string, v any) (entityRow, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return entityRow{}, err
	}
	return entityRow{Game: game, Doc: string(b)}, nil
}

// SaveBatch applies every upsert and deletion of b in one transaction and
// records the game's period.
func (s *Store) SaveBatch(ctx context.Context, b model.Batch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE games SET period = ?, next_job_seq = ?, updated_at = ? WHERE id = ?`,
		b.Period, b.NextJobSeq, now(), b.GameID)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("game %s", b.GameID)
	}

	put := func(kind model.Kind, id string, row entityRow) error {
		row.ID = id
		if _, err := tx.NamedExecContext(ctx, upserts[kind], row); err != nil {
			return fmt.Errorf("save %s %s: %w", kind, id, err)
		}
		return nil
	}
	for _, e := range b.Empires {
		row, err := docRow(b.GameID, e)
		if err != nil {
			return err
		}
		if err := put(model.KindEmpire, e.ID, row); err != nil {
			return err
		}
	}
	for _, sys := range b.Systems {
		row, err := docRow(b.GameID, sys)
		if err != nil {
			return err
		}
		row.Owner = sys.Owner
		if err := put(model.KindSystem, sys.ID, row); err != nil {
			return err
		}
	}
	for _, f := range b.Fleets {
		row, err := docRow(b.GameID, f)
		if err != nil {
			return err
		}
		row.Empire, row.Location = f.Empire, f.Location
		if err := put(model.KindFleet, f.ID, row); err != nil {
			return err
		}
	}
	for _, sh := range b.Ships {
		row, err := docRow(b.GameID, sh)
		if err != nil {
			return err
		}
		row.Empire, row.Fleet = sh.Empire, sh.Fleet
		if err := put(model.KindShip, sh.ID, row); err != nil {
			return err
		}
	}
	for _, j := range b.Jobs {
		row, err := docRow(b.GameID, j)
		if err != nil {
			return err
		}
		row.Empire, row.Seq, row.Completed = j.Empire, j.Seq, j.Completed()
		if err := put(model.KindJob, j.ID, row); err != nil {
			return err
		}
	}
	for _, r := range b.Deleted {
		table, ok := tables[r.Kind]
		if !ok {
			return fmt.Errorf("delete: unknown kind %q", r.Kind)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE game = ? AND id = ?", b.GameID, r.ID); err != nil {
			return fmt.Errorf("delete %s %s: %w", r.Kind, r.ID, err)
		}
	}
	return tx.Commit()
}

func selectDocs(ctx context.Context, q sqlx.QueryerContext, table, game string) ([]string, error) {
	var docs []string
	if err := sqlx.SelectContext(ctx, q, &docs, "SELECT doc FROM "+table+" WHERE game = ? ORDER BY id", game); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	return docs, nil
}

func decodeAll[T any](docs []string, put func(*T)) error {
	for _, d := range docs {
		v := new(T)
		if err := json.Unmarshal([]byte(d), v); err != nil {
			return err
		}
		put(v)
	}
	return nil
}

// LoadState reads every entity of a game. The returned state has no
// pending changes.
func (s *Store) LoadState(ctx context.Context, gameID string) (*model.State, error) {
	g, err := s.Game(ctx, gameID)
	if err != nil {
		return nil, err
	}
	st := model.NewState(gameID)
	st.Period = g.Period

	load := func(kind model.Kind, decode func([]string) error) error {
		docs, err := selectDocs(ctx, s.db, tables[kind], gameID)
		if err != nil {
			return err
		}
		if err := decode(docs); err != nil {
			return fmt.Errorf("decode %s: %w", kind, err)
		}
		return nil
	}
	steps := []struct {
		kind   model.Kind
		decode func([]string) error
	}{
		{model.KindEmpire, func(d []string) error { return decodeAll(d, st.PutEmpire) }},
		{model.KindSystem, func(d []string) error { return decodeAll(d, st.PutSystem) }},
		{model.KindFleet, func(d []string) error { return decodeAll(d, st.PutFleet) }},
		{model.KindShip, func(d []string) error { return decodeAll(d, st.PutShip) }},
		{model.KindJob, func(d []string) error { return decodeAll(d, st.PutJob) }},
	}
	for _, step := range steps {
		if err := load(step.kind, step.decode); err != nil {
			return nil, err
		}
	}
	if g.NextJobSeq > st.NextJobSeq {
		st.NextJobSeq = g.NextJobSeq
	}
	st.ResetChanges()
	return st, nil
}

func (s *Store) loadDoc(ctx context.Context, kind model.Kind, game, id string, out any) error {
	var doc string
	err := s.db.GetContext(ctx, &doc, "SELECT doc FROM "+tables[kind]+" WHERE game = ? AND id = ?", game, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("%s %s", kind, id)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(doc), out)
}

func (s *Store) LoadEmpire(ctx context.Context, game, id string) (*model.Empire, error) {
	var e model.Empire
	if err := s.loadDoc(ctx, model.KindEmpire, game, id, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) LoadSystem(ctx context.Context, game, id string) (*model.System, error) {
	var sys model.System
	if err := s.loadDoc(ctx, model.KindSystem, game, id, &sys); err != nil {
		return nil, err
	}
	return &sys, nil
}

func (s *Store) LoadFleet(ctx context.Context, game, id string) (*model.Fleet, error) {
	var f model.Fleet
	if err := s.loadDoc(ctx, model.KindFleet, game, id, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) LoadJob(ctx context.Context, game, id string) (*model.Job, error) {
	var j model.Job
	if err := s.loadDoc(ctx, model.KindJob, game, id, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// EmpireJobs lists the jobs of one empire in creation order.
func (s *Store) EmpireJobs(ctx context.Context, game, empire string) ([]*model.Job, error) {
	var docs []string
	if err := s.db.SelectContext(ctx, &docs, "SELECT doc FROM jobs WHERE game = ? AND empire = ? ORDER BY seq", game, empire); err != nil {
		return nil, err
	}
	out := make([]*model.Job, 0, len(docs))
	err := decodeAll(docs, func(j *model.Job) { out = append(out, j) })
	return out, err
}
