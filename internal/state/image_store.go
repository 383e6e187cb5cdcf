package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0xa1bed0/stagecache/internal/build"
	"github.com/0xa1bed0/stagecache/internal/cache"
)

var ErrImageNotFound = errors.New("image not found")

// ImageRecord is an image published by the local runtime.
type ImageRecord struct {
	Ref       string
	Stage     string
	Artifact  string
	Schema    string
	History   cache.History
	CreatedAt time.Time
}

// ImageStore is the local runtime's registry. Publishing to an existing ref
// replaces it, the way re-tagging does.
type ImageStore struct {
	db *DB
}

func NewImageStore(database *DB) (*ImageStore, error) {
	if database == nil {
		return nil, errors.New("image store: nil database")
	}
	return &ImageStore{db: database}, nil
}

func (s *ImageStore) Publish(ctx context.Context, ref string, img build.Image) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errors.New("image_store: publish: empty reference")
	}
	history, err := json.Marshal(img.History)
	if err != nil {
		return fmt.Errorf("image_store: encode history: %w", err)
	}

	const stmt = `
INSERT INTO images (ref, stage, schema, artifact, history, created_at)
VALUES (?, ?, ?, ?, ?, strftime('%s','now'))
ON CONFLICT(ref) DO UPDATE SET
	stage = excluded.stage,
	schema = excluded.schema,
	artifact = excluded.artifact,
	history = excluded.history,
	created_at = excluded.created_at;
`
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt, ref, img.Stage, img.History.Schema, img.Artifact, string(history)); err != nil {
			return fmt.Errorf("image_store: publish %s: %w", ref, err)
		}
		return nil
	})
}

// FetchHistory returns the history published under ref.
func (s *ImageStore) FetchHistory(ctx context.Context, ref string) (cache.History, error) {
	rec, err := s.Get(ctx, ref)
	if err != nil {
		return cache.History{}, err
	}
	return rec.History, nil
}

func (s *ImageStore) Get(ctx context.Context, ref string) (ImageRecord, error) {
	const q = `
SELECT ref, stage, schema, artifact, history, created_at
FROM images
WHERE ref = ?
`
	rec, err := scanImage(s.db.Raw().QueryRowContext(ctx, q, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ImageRecord{}, fmt.Errorf("%w: %s", ErrImageNotFound, ref)
		}
		return ImageRecord{}, fmt.Errorf("image_store: get %s: %w", ref, err)
	}
	return rec, nil
}

// List returns every image ordered by reference.
func (s *ImageStore) List(ctx context.Context) ([]ImageRecord, error) {
	const q = `
SELECT ref, stage, schema, artifact, history, created_at
FROM images
ORDER BY ref
`
	rows, err := s.db.Raw().QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("image_store: list: %w", err)
	}
	defer rows.Close()

	var out []ImageRecord
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("image_store: list: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes ref and reports whether it existed.
func (s *ImageStore) Delete(ctx context.Context, ref string) (bool, error) {
	res, err := s.db.Raw().ExecContext(ctx, `DELETE FROM images WHERE ref = ?`, ref)
	if err != nil {
		return false, fmt.Errorf("image_store: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteBefore removes images published before cutoff.
func (s *ImageStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Raw().ExecContext(ctx, `DELETE FROM images WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("image_store: delete before: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanImage(row scanner) (ImageRecord, error) {
	var (
		rec     ImageRecord
		history string
		created int64
	)
	if err := row.Scan(&rec.Ref, &rec.Stage, &rec.Schema, &rec.Artifact, &history, &created); err != nil {
		return ImageRecord{}, err
	}
	if err := json.Unmarshal([]byte(history), &rec.History); err != nil {
		return ImageRecord{}, fmt.Errorf("decode history of %s: %w", rec.Ref, err)
	}
	rec.CreatedAt = time.Unix(created, 0).UTC()
	return rec, nil
}
