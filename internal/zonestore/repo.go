package zonestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/yardmove/internal/apperr"
	"github.com/starford/yardmove/internal/checksum"
	"github.com/starford/yardmove/internal/gateway"
	"github.com/starford/yardmove/internal/models"
)

// Verify *DB satisfies gateway.Gateway at compile time.
var _ gateway.Gateway = (*DB)(nil)

// ListCategories returns every zone type in insertion order.
func (db *DB) ListCategories(ctx context.Context) ([]models.CategoryRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM zone_types ORDER BY rowid`)
	if err != nil {
		return nil, apperr.Gateway("list zone types", err)
	}
	defer rows.Close()

	var out []models.CategoryRecord
	for rows.Next() {
		var c models.CategoryRecord
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, apperr.Gateway("list zone types", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Gateway("list zone types", err)
	}
	return out, nil
}

// CreateCategory inserts a zone type with a fresh id.
func (db *DB) CreateCategory(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperr.Gateway("add zone type", errors.New("name is required"))
	}
	id := uuid.NewString()
	if err := db.PutCategory(ctx, models.CategoryRecord{ID: id, Name: name}); err != nil {
		return "", err
	}
	return id, nil
}

// PutCategory inserts or renames a zone type with a caller-chosen id.
func (db *DB) PutCategory(ctx context.Context, c models.CategoryRecord) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO zone_types (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, c.ID, c.Name)
	if err != nil {
		return apperr.Gateway("put zone type", err)
	}
	return nil
}

// ListZones returns all zones in insertion order, or only the listed ids.
func (db *DB) ListZones(ctx context.Context, ids ...string) ([]gateway.RawZone, error) {
	query := `SELECT id, name, zone_types, points, version, comment, active_from, active_to, extra FROM zones`
	args := make([]any, 0, len(ids))
	if len(ids) > 0 {
		query += ` WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY rowid`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Gateway("list zones", err)
	}
	defer rows.Close()

	var out []gateway.RawZone
	for rows.Next() {
		r, err := scanZone(rows)
		if err != nil {
			return nil, apperr.Gateway("list zones", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Gateway("list zones", err)
	}
	return out, nil
}

// GetZone returns one zone or apperr.ErrNotFound.
func (db *DB) GetZone(ctx context.Context, id string) (gateway.RawZone, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, name, zone_types, points, version, comment, active_from, active_to, extra
		FROM zones WHERE id = ?`, id)
	r, err := scanZone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.RawZone{}, fmt.Errorf("zone %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return gateway.RawZone{}, apperr.Gateway("get zone", err)
	}
	return r, nil
}

// UpdateZone replaces a zone with r when r.Version matches the stored
// version and assigns a new version. Absent fields of r are stored as absent.
func (db *DB) UpdateZone(ctx context.Context, r gateway.RawZone) (gateway.RawZone, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return gateway.RawZone{}, apperr.Gateway("update zone", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var current string
	err = tx.QueryRowContext(ctx, `SELECT version FROM zones WHERE id = ?`, r.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.RawZone{}, fmt.Errorf("zone %s: %w", r.ID, apperr.ErrNotFound)
	}
	if err != nil {
		return gateway.RawZone{}, apperr.Gateway("update zone", err)
	}
	if current != r.Version {
		return gateway.RawZone{}, fmt.Errorf("zone %s: version %q is stale: %w", r.ID, r.Version, apperr.ErrConflict)
	}

	committed := r.WithZoneTypes(r.ZoneTypes)
	committed.Version = nextVersion(current, r)
	if err := writeZone(ctx, tx, committed); err != nil {
		return gateway.RawZone{}, apperr.Gateway("update zone", err)
	}
	if err := tx.Commit(); err != nil {
		return gateway.RawZone{}, apperr.Gateway("update zone", err)
	}
	return committed, nil
}

// PutZone inserts or replaces a zone without a version check. Fields absent
// from r are stored as absent. The stored version is returned.
func (db *DB) PutZone(ctx context.Context, r gateway.RawZone) (string, error) {
	if strings.TrimSpace(r.ID) == "" {
		return "", apperr.Gateway("put zone", errors.New("id is required"))
	}
	var prev string
	_ = db.conn.QueryRowContext(ctx, `SELECT version FROM zones WHERE id = ?`, r.ID).Scan(&prev)
	r.Version = nextVersion(prev, r)
	if err := writeZone(ctx, db.conn, r); err != nil {
		return "", apperr.Gateway("put zone", err)
	}
	return r.Version, nil
}

// DeleteZone removes a zone. Deleting a missing zone is not an error.
func (db *DB) DeleteZone(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM zones WHERE id = ?`, id); err != nil {
		return apperr.Gateway("delete zone", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func writeZone(ctx context.Context, ex execer, r gateway.RawZone) error {
	tagsJSON, err := json.Marshal(nonNil(r.ZoneTypes))
	if err != nil {
		return err
	}
	pointsJSON, err := json.Marshal(nonNil(r.Points))
	if err != nil {
		return err
	}
	extraJSON := []byte("{}")
	if len(r.Extra) > 0 {
		if extraJSON, err = json.Marshal(r.Extra); err != nil {
			return err
		}
	}
	var name sql.NullString
	if r.Name != nil {
		name = sql.NullString{String: *r.Name, Valid: true}
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO zones (id, name, zone_types, points, version, comment, active_from, active_to, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name        = excluded.name,
			zone_types  = excluded.zone_types,
			points      = excluded.points,
			version     = excluded.version,
			comment     = excluded.comment,
			active_from = excluded.active_from,
			active_to   = excluded.active_to,
			extra       = excluded.extra
	`, r.ID, name, string(tagsJSON), string(pointsJSON), r.Version, r.Comment, r.ActiveFrom, r.ActiveTo, string(extraJSON))
	return err
}

func scanZone(s scanner) (gateway.RawZone, error) {
	var (
		r                            gateway.RawZone
		name                         sql.NullString
		tagsJSON, ptsJSON, extraJSON string
	)
	if err := s.Scan(&r.ID, &name, &tagsJSON, &ptsJSON, &r.Version, &r.Comment, &r.ActiveFrom, &r.ActiveTo, &extraJSON); err != nil {
		return gateway.RawZone{}, err
	}
	if name.Valid {
		n := name.String
		r.Name = &n
	}
	if err := json.Unmarshal([]byte(tagsJSON), &r.ZoneTypes); err != nil {
		return gateway.RawZone{}, fmt.Errorf("decode zone types of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(ptsJSON), &r.Points); err != nil {
		return gateway.RawZone{}, fmt.Errorf("decode points of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(extraJSON), &r.Extra); err != nil {
		return gateway.RawZone{}, fmt.Errorf("decode extra fields of %s: %w", r.ID, err)
	}
	if len(r.Extra) == 0 {
		r.Extra = nil
	}
	return r, nil
}

// nextVersion chains the previous version into the digest of the new
// content so that reverting a change still yields a fresh version.
func nextVersion(prev string, r gateway.RawZone) string {
	r.Version = ""
	r.ZoneTypes = nonNil(r.ZoneTypes)
	body, _ := json.Marshal(r)
	return checksum.Chain(prev, body)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
