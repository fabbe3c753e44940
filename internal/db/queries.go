package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/cpetrack/internal/entry"
	"github.com/hpungsan/cpetrack/internal/errors"
)

const entryColumns = `id, entry_date, hours, category, description, source,
	source_file, created_at, updated_at, deleted_at`

// ListFilter narrows List and Count to active entries matching every set field.
type ListFilter struct {
	Year     int            // 0 = any year
	Category entry.Category // "" = any category
	Limit    int            // 0 = no limit
	Offset   int
}

// Insert stores a new entry. A duplicate ID is a CONFLICT.
func Insert(ctx context.Context, q Querier, e *entry.Entry) error {
	query := `INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		e.ID, e.Date, e.Hours, string(e.Category), e.Description, string(e.Source),
		toNullString(e.SourceFile), e.CreatedAt, e.UpdatedAt, toNullInt64(e.DeletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict(fmt.Sprintf("entry with id %q already exists", e.ID))
		}
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError reports a SQLite UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves an entry by its ULID.
// If includeDeleted is false, soft-deleted entries are excluded.
func GetByID(ctx context.Context, q Querier, id string, includeDeleted bool) (*entry.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	e, err := scanEntry(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// Exists reports whether any row (active or soft-deleted) has the given ID.
func Exists(ctx context.Context, q Querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// UpdateByID rewrites the mutable fields of an active entry and stamps updated_at.
// id, source, and created_at are never changed.
func UpdateByID(ctx context.Context, q Querier, e *entry.Entry) error {
	now := time.Now().Unix()

	query := `
		UPDATE entries
		SET entry_date = ?, hours = ?, category = ?, description = ?,
			source_file = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := q.ExecContext(ctx, query,
		e.Date, e.Hours, string(e.Category), e.Description,
		toNullString(e.SourceFile), now, e.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := requireRow(result, e.ID); err != nil {
		return err
	}

	e.UpdatedAt = now
	return nil
}

// ReplaceByID overwrites every column of an existing row, including deleted_at.
// Used by import in replace mode.
func ReplaceByID(ctx context.Context, q Querier, e *entry.Entry) error {
	query := `
		UPDATE entries
		SET entry_date = ?, hours = ?, category = ?, description = ?, source = ?,
			source_file = ?, created_at = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query,
		e.Date, e.Hours, string(e.Category), e.Description, string(e.Source),
		toNullString(e.SourceFile), e.CreatedAt, e.UpdatedAt, toNullInt64(e.DeletedAt),
		e.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(result, e.ID)
}

// SoftDelete marks an active entry as deleted.
func SoftDelete(ctx context.Context, q Querier, id string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE entries SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(result, id)
}

// SoftDeleteAll marks every active entry as deleted and returns how many changed.
func SoftDeleteAll(ctx context.Context, q Querier) (int64, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE entries SET deleted_at = ? WHERE deleted_at IS NULL`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// PurgeDeleted permanently removes soft-deleted rows.
// A zero deletedBefore removes all of them; otherwise only rows deleted
// at or before that unix timestamp.
func PurgeDeleted(ctx context.Context, q Querier, deletedBefore int64) (int64, error) {
	query := `DELETE FROM entries WHERE deleted_at IS NOT NULL`
	var args []any
	if deletedBefore > 0 {
		query += " AND deleted_at <= ?"
		args = append(args, deletedBefore)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// List returns active entries matching the filter, newest date first.
func List(ctx context.Context, q Querier, f ListFilter) ([]entry.Entry, error) {
	where, args := f.where()
	query := `SELECT ` + entryColumns + ` FROM entries` + where +
		` ORDER BY entry_date DESC, created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	return queryEntries(ctx, q, query, args...)
}

// Count returns how many active entries match the filter, ignoring Limit and Offset.
func Count(ctx context.Context, q Querier, f ListFilter) (int, error) {
	where, args := f.where()
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`+where, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// ListAll returns every entry in insertion order, optionally including soft-deleted rows.
func ListAll(ctx context.Context, q Querier, includeDeleted bool) ([]entry.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries`
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY created_at ASC, id ASC"
	return queryEntries(ctx, q, query)
}

func (f ListFilter) where() (string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any
	if f.Year > 0 {
		clauses = append(clauses, "substr(entry_date, 1, 4) = ?")
		args = append(args, fmt.Sprintf("%04d", f.Year))
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(f.Category))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func queryEntries(ctx context.Context, q Querier, query string, args ...any) ([]entry.Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	entries := []entry.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entries, nil
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a single row into an Entry.
func scanEntry(row scanner) (*entry.Entry, error) {
	var (
		e          entry.Entry
		category   string
		source     string
		sourceFile sql.NullString
		deletedAt  sql.NullInt64
	)

	err := row.Scan(
		&e.ID, &e.Date, &e.Hours, &category, &e.Description, &source,
		&sourceFile, &e.CreatedAt, &e.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Category = entry.Category(category)
	e.Source = entry.Source(source)
	e.SourceFile = fromNullString(sourceFile)
	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Int64
	}
	return &e, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
