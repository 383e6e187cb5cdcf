package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/0xa1bed0/stagecache/internal/cache"
	"github.com/0xa1bed0/stagecache/internal/fingerprint"
)

// Layer is one locally built layer.
type Layer struct {
	Fingerprint fingerprint.Fingerprint
	Artifact    string
	Stage       string
	CreatedAt   time.Time
	LastUsed    time.Time
}

// LayerStore keeps every layer built on this machine. Like the in-memory
// index, the first record for a fingerprint wins; rows only go away through
// DeleteUnusedBefore, which counts from the last build that reused a layer.
type LayerStore struct {
	db *DB
}

// NewLayerStore returns a store over database. Open has already created the
// table.
func NewLayerStore(database *DB) (*LayerStore, error) {
	if database == nil {
		return nil, errors.New("layer store: nil database")
	}
	return &LayerStore{db: database}, nil
}

// InsertIfAbsent stores rec unless its fingerprint is already present and
// reports whether it was inserted.
func (s *LayerStore) InsertIfAbsent(ctx context.Context, rec cache.LayerRecord) (bool, error) {
	const stmt = `
INSERT INTO layers (fingerprint, artifact, stage, created_at, last_used)
VALUES (?, ?, ?, strftime('%s','now'), strftime('%s','now'))
ON CONFLICT(fingerprint) DO NOTHING;
`
	if err := rec.Fingerprint.Validate(); err != nil {
		return false, fmt.Errorf("layer_store: insert: %w", err)
	}
	res, err := s.db.Raw().ExecContext(ctx, stmt, rec.Fingerprint.String(), rec.Artifact, rec.Stage)
	if err != nil {
		return false, fmt.Errorf("layer_store: insert: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordLayer stores a freshly built layer.
func (s *LayerStore) RecordLayer(ctx context.Context, rec cache.LayerRecord) error {
	_, err := s.InsertIfAbsent(ctx, rec)
	return err
}

// Get returns the layer for fp. Reading a layer does not count as using it.
func (s *LayerStore) Get(ctx context.Context, fp fingerprint.Fingerprint) (layer Layer, found bool, err error) {
	const q = `
SELECT fingerprint, artifact, stage, created_at, last_used
FROM layers
WHERE fingerprint = ?
`
	row := s.db.Raw().QueryRowContext(ctx, q, fp.String())
	layer, err = scanLayer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Layer{}, false, nil
		}
		return Layer{}, false, fmt.Errorf("layer_store: get: %w", err)
	}
	return layer, true, nil
}

// Touch updates last_used for fp when a build reuses it. No-op if the row
// doesn't exist.
func (s *LayerStore) Touch(ctx context.Context, fp fingerprint.Fingerprint) error {
	const stmt = `UPDATE layers SET last_used = strftime('%s','now') WHERE fingerprint = ?;`
	if _, err := s.db.Raw().ExecContext(ctx, stmt, fp.String()); err != nil {
		return fmt.Errorf("layer_store: touch: %w", err)
	}
	return nil
}

// List returns every layer, oldest first.
func (s *LayerStore) List(ctx context.Context) ([]Layer, error) {
	const q = `
SELECT fingerprint, artifact, stage, created_at, last_used
FROM layers
ORDER BY created_at, fingerprint
`
	rows, err := s.db.Raw().QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("layer_store: list: %w", err)
	}
	defer rows.Close()

	var out []Layer
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, fmt.Errorf("layer_store: list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteUnusedBefore deletes layers that haven't been used since cutoff.
func (s *LayerStore) DeleteUnusedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const stmt = `DELETE FROM layers WHERE last_used < ?;`
	res, err := s.db.Raw().ExecContext(ctx, stmt, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("layer_store: delete unused: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLayer(row scanner) (Layer, error) {
	var (
		l                 Layer
		fp                string
		created, lastUsed int64
	)
	if err := row.Scan(&fp, &l.Artifact, &l.Stage, &created, &lastUsed); err != nil {
		return Layer{}, err
	}
	l.Fingerprint = fingerprint.Fingerprint(fp)
	l.CreatedAt = time.Unix(created, 0).UTC()
	l.LastUsed = time.Unix(lastUsed, 0).UTC()
	return l, nil
}
