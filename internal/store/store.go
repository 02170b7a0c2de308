// Package store implements core.Store on Postgres via pgx.
//
// Queries are built with squirrel and scanned with scany, so the column
// lists stay next to the struct tags they map to. Dates live in Postgres as
// DATE columns; selects render them back with to_char so the rest of the
// system only ever sees YYYY-MM-DD strings.
package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hourbook/hourbook/internal/core"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it in
// tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the pgx-backed persistence layer.
type Store struct {
	db DB
	sb sq.StatementBuilderType
}

// New wraps a connection pool.
func New(db DB) *Store {
	return &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const entryDateExpr = "to_char(entry_date, 'YYYY-MM-DD') AS entry_date"

// GetUser fetches one user, or core.ErrUserNotFound.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*core.User, error) {
	query, args, err := s.sb.
		Select("id", "name", "active", "created_at").
		From("users").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var u core.User
	if err := pgxscan.Get(ctx, s.db, &u, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.ErrUserNotFound
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return &u, nil
}

// UpsertUser creates or refreshes a user row. Used at boot to materialize
// the configured accounts.
func (s *Store) UpsertUser(ctx context.Context, u *core.User) error {
	query, args, err := s.sb.
		Insert("users").
		Columns("id", "name", "active", "created_at").
		Values(u.ID, u.Name, u.Active, u.CreatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active").
		ToSql()
	if err != nil {
		return fmt.Errorf("building user upsert: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// ClaimImport inserts rec if its key is absent. The insert-if-absent on the
// primary key is the whole idempotency mechanism: exactly one concurrent
// caller gets claimed=true; the rest read the prior record.
func (s *Store) ClaimImport(ctx context.Context, rec *core.ImportRecord) (*core.ImportRecord, bool, error) {
	var completed any
	if rec.Status != core.ImportPending {
		completed = time.Now().UTC()
	}

	query, args, err := s.sb.
		Insert("import_keys").
		Columns("key", "user_id", "status", "entry_count", "failure", "created_at", "completed_at").
		Values(rec.Key, rec.UserID, rec.Status, rec.EntryCount, rec.Failure, rec.CreatedAt, completed).
		Suffix("ON CONFLICT (key) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("building key claim: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("claiming import key: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil, true, nil
	}

	prior, err := s.GetImport(ctx, rec.Key)
	if err != nil {
		return nil, false, err
	}
	return prior, false, nil
}

// FinalizeImport writes the entries and flips the pending claim to
// committed in one transaction, so readers never see a committed key
// without its entries.
func (s *Store) FinalizeImport(ctx context.Context, key uuid.UUID, entries []core.TimeEntry) (*core.ImportRecord, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning finalize tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(entries) > 0 {
		insert := s.sb.
			Insert("time_entries").
			Columns("id", "user_id", "entry_date", "hours", "task", "notes", "import_key", "created_at")
		for _, e := range entries {
			insert = insert.Values(e.ID, e.UserID, e.Date, e.Hours, e.Task, e.Notes, key, e.CreatedAt)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return nil, fmt.Errorf("building entry insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("inserting entries: %w", err)
		}
	}

	completed := time.Now().UTC()
	update, args, err := s.sb.
		Update("import_keys").
		Set("status", core.ImportCommitted).
		Set("entry_count", len(entries)).
		Set("completed_at", completed).
		Where(sq.Eq{"key": key, "status": core.ImportPending}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building claim update: %w", err)
	}
	tag, err := tx.Exec(ctx, update, args...)
	if err != nil {
		return nil, fmt.Errorf("marking import committed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("import key %s has no pending claim", key)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}

	return s.GetImport(ctx, key)
}

// ReleaseImport deletes a still-pending claim after a finalize failure so
// the client can retry with the same key.
func (s *Store) ReleaseImport(ctx context.Context, key uuid.UUID) error {
	query, args, err := s.sb.
		Delete("import_keys").
		Where(sq.Eq{"key": key, "status": core.ImportPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building claim delete: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("releasing import key: %w", err)
	}
	return nil
}

// GetImport fetches one import record, or core.ErrImportNotFound.
func (s *Store) GetImport(ctx context.Context, key uuid.UUID) (*core.ImportRecord, error) {
	query, args, err := s.importSelect().Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building import query: %w", err)
	}

	var rec core.ImportRecord
	if err := pgxscan.Get(ctx, s.db, &rec, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.ErrImportNotFound
		}
		return nil, fmt.Errorf("fetching import: %w", err)
	}
	return &rec, nil
}

// EntriesForImport returns a key's entries in insertion order.
func (s *Store) EntriesForImport(ctx context.Context, key uuid.UUID) ([]core.TimeEntry, error) {
	query, args, err := s.entrySelect().
		Where(sq.Eq{"import_key": key}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building entries query: %w", err)
	}

	entries := []core.TimeEntry{}
	if err := pgxscan.Select(ctx, s.db, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("fetching import entries: %w", err)
	}
	return entries, nil
}

// ListEntries returns a user's entries between optional date bounds, newest
// date first.
func (s *Store) ListEntries(ctx context.Context, userID uuid.UUID, from, to string) ([]core.TimeEntry, error) {
	q := s.entrySelect().Where(sq.Eq{"user_id": userID})
	if from != "" {
		q = q.Where(sq.GtOrEq{"entry_date": from})
	}
	if to != "" {
		q = q.Where(sq.LtOrEq{"entry_date": to})
	}
	query, args, err := q.OrderBy("entry_date DESC", "seq DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building entry list: %w", err)
	}

	entries := []core.TimeEntry{}
	if err := pgxscan.Select(ctx, s.db, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return entries, nil
}

// ListImports returns a user's most recent import records.
func (s *Store) ListImports(ctx context.Context, userID uuid.UUID, limit int) ([]core.ImportRecord, error) {
	query, args, err := s.importSelect().
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building import list: %w", err)
	}

	recs := []core.ImportRecord{}
	if err := pgxscan.Select(ctx, s.db, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("listing imports: %w", err)
	}
	return recs, nil
}

func (s *Store) entrySelect() sq.SelectBuilder {
	return s.sb.
		Select("id", "user_id", entryDateExpr, "hours", "task", "notes", "created_at").
		From("time_entries")
}

func (s *Store) importSelect() sq.SelectBuilder {
	return s.sb.
		Select("key", "user_id", "status", "entry_count", "failure", "created_at", "completed_at").
		From("import_keys")
}
