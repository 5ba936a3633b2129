package store

import (
	"context"
	"encoding/json"
	"fmt"

	"stellarforge.ai/internal/sim/catalogs"
	"stellarforge.ai/internal/sim/tuning"
)

type CatalogRow struct {
	Name      string `db:"name"`
	Digest    string `db:"digest"`
	JSON      string `db:"json"`
	UpdatedAt string `db:"updated_at"`
}

// UpsertCatalogs records the loaded content and tuning with their digests
// so games can be matched against the content they were played with.
func (s *Store) UpsertCatalogs(ctx context.Context, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	digests := cats.Digests()
	docs := map[string]any{
		"resources":    cats.Resources.ByID,
		"districts":    cats.Districts.ByID,
		"buildings":    cats.Buildings.ByID,
		"systems":      cats.Systems.ByID,
		"empire":       cats.Empire.Tree,
		"technologies": cats.Technologies.ByID,
		"ships":        cats.Ships.ByID,
		"traits":       cats.Traits.ByID,
		"scoring":      cats.Scoring,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := now()
	const q = `INSERT INTO catalogs (name, digest, json, updated_at) VALUES (:name, :digest, :json, :updated_at)
		ON CONFLICT(name) DO UPDATE SET digest=excluded.digest, json=excluded.json, updated_at=excluded.updated_at`
	for name, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("catalog %s: %w", name, err)
		}
		row := CatalogRow{Name: name, Digest: digests[name], JSON: string(b), UpdatedAt: ts}
		if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
			return fmt.Errorf("catalog %s: %w", name, err)
		}
	}
	tb, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, q, CatalogRow{Name: "tuning", Digest: "", JSON: string(tb), UpdatedAt: ts}); err != nil {
		return fmt.Errorf("catalog tuning: %w", err)
	}
	return tx.Commit()
}

// CatalogDigests returns the stored digest of every catalog.
func (s *Store) CatalogDigests(ctx context.Context) (map[string]string, error) {
	var rows []CatalogRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM catalogs ORDER BY name"); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Digest
	}
	return out, nil
}
