// Package sqltrace wraps database/sql so that the last query and the last
// error are available to the dependency check.
//
// Queries run with a context carrying a devpulse request scope are recorded
// in that scope, so each request is checked against its own queries when it
// ends. Queries run outside any request are recorded on the handle and
// checked at shutdown.
package sqltrace

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

// DB is a *sql.DB that records the last query and its error. Each query
// replaces the previous record. It implements devpulse.DependencySource.
type DB struct {
	*sql.DB

	mu   sync.Mutex
	last record
}

type record struct {
	query string
	err   string
}

// scopeKey keys a handle's record inside a request scope.
type scopeKey struct {
	db *DB
}

// Open opens a database and wraps it.
func Open(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	return Wrap(db), nil
}

// Wrap wraps an existing handle.
func Wrap(db *sql.DB) *DB {
	return &DB{DB: db}
}

func (db *DB) record(ctx context.Context, query string, err error) {
	rec := record{query: query}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		rec.err = err.Error()
	}
	if scope := devpulse.ScopeFromContext(ctx); scope != nil {
		scope.Store(scopeKey{db}, rec)
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.last = rec
}

func (db *DB) load(ctx context.Context) record {
	if scope := devpulse.ScopeFromContext(ctx); scope != nil {
		rec, _ := scope.Load(scopeKey{db})
		r, _ := rec.(record)
		return r
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.last
}

// ExecContext executes query and records the outcome.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := db.DB.ExecContext(ctx, query, args...)
	db.record(ctx, query, err)
	return res, err
}

// Exec is ExecContext with context.Background.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	return db.ExecContext(context.Background(), query, args...)
}

// QueryContext runs query and records the outcome. Errors met while
// iterating are recorded by Rows.Err and Rows.Close.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*Rows, error) {
	rows, err := db.DB.QueryContext(ctx, query, args...)
	db.record(ctx, query, err)
	if err != nil {
		return nil, err
	}
	return &Rows{Rows: rows, db: db, ctx: ctx, query: query}, nil
}

// Query is QueryContext with context.Background.
func (db *DB) Query(query string, args ...any) (*Rows, error) {
	return db.QueryContext(context.Background(), query, args...)
}

// QueryRowContext runs query and records the error seen when the row is scanned.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *Row {
	return &Row{row: db.DB.QueryRowContext(ctx, query, args...), db: db, ctx: ctx, query: query}
}

// QueryRow is QueryRowContext with context.Background.
func (db *DB) QueryRow(query string, args ...any) *Row {
	return db.QueryRowContext(context.Background(), query, args...)
}

// Row defers recording until Scan, where database/sql reports row errors.
type Row struct {
	row   *sql.Row
	db    *DB
	ctx   context.Context
	query string
}

// Scan copies the row into dest and records the outcome.
func (r *Row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	r.db.record(r.ctx, r.query, err)
	return err
}

// Err returns the error, if any, that was encountered while running the query.
func (r *Row) Err() error {
	err := r.row.Err()
	if err != nil {
		r.db.record(r.ctx, r.query, err)
	}
	return err
}

// Rows is a *sql.Rows that records iteration and close errors against the
// query that produced it.
type Rows struct {
	*sql.Rows

	db    *DB
	ctx   context.Context
	query string
}

// Err returns the error met during iteration and records it.
func (r *Rows) Err() error {
	err := r.Rows.Err()
	if err != nil {
		r.db.record(r.ctx, r.query, err)
	}
	return err
}

// Close closes the rows. An iteration error not yet collected through Err,
// or a close failure, is recorded.
func (r *Rows) Close() error {
	err := r.Rows.Close()
	if iterErr := r.Rows.Err(); iterErr != nil {
		r.db.record(r.ctx, r.query, iterErr)
	} else if err != nil {
		r.db.record(r.ctx, r.query, err)
	}
	return err
}

// LastQuery returns the most recent query text run with ctx's request scope,
// or outside any request when ctx has none.
func (db *DB) LastQuery(ctx context.Context) string {
	return db.load(ctx).query
}

// LastError returns the error text of that query, or "" if it succeeded.
func (db *DB) LastError(ctx context.Context) string {
	return db.load(ctx).err
}

// ClearError forgets the last error recorded outside any request, e.g. once a
// background job has handled it.
func (db *DB) ClearError() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.last.err = ""
}
