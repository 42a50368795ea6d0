package sqltrace_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
	"github.com/strongdm/devpulse-go/pkg/devpulse/adapters/gohost"
	"github.com/strongdm/devpulse-go/pkg/devpulse/adapters/sqltrace"
)

var bg = context.Background()

func openTestDB(t *testing.T) *sqltrace.DB {
	t.Helper()
	db, err := sqltrace.Open("sqlite", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, total INTEGER NOT NULL)`)
	require.NoError(t, err)
	return db
}

func TestDB_RecordsFailure(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO missing_table (id) VALUES (1)`)
	require.Error(t, err)

	assert.Equal(t, `INSERT INTO missing_table (id) VALUES (1)`, db.LastQuery(bg))
	assert.Contains(t, db.LastError(bg), "missing_table")
}

func TestDB_SuccessResetsError(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Query(`SELECT nope FROM orders`)
	require.Error(t, err)
	require.NotEmpty(t, db.LastError(bg))

	rows, err := db.Query(`SELECT id, total FROM orders`)
	require.NoError(t, err)
	rows.Close()

	assert.Equal(t, `SELECT id, total FROM orders`, db.LastQuery(bg))
	assert.Empty(t, db.LastError(bg))
}

func TestDB_QueryRow(t *testing.T) {
	db := openTestDB(t)
	_, err := db.ExecContext(context.Background(), `INSERT INTO orders (id, total) VALUES (?, ?)`, 1, 250)
	require.NoError(t, err)

	var total int
	require.NoError(t, db.QueryRow(`SELECT total FROM orders WHERE id = ?`, 1).Scan(&total))
	assert.Equal(t, 250, total)
	assert.Empty(t, db.LastError(bg))

	err = db.QueryRow(`SELECT total FROM orders WHERE id = ?`, 2).Scan(&total)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Empty(t, db.LastError(bg), "no rows is not a database error")

	err = db.QueryRowContext(context.Background(), `SELECT total FROM nowhere`).Scan(&total)
	require.Error(t, err)
	assert.Equal(t, `SELECT total FROM nowhere`, db.LastQuery(bg))
	assert.NotEmpty(t, db.LastError(bg))
}

func TestDB_ClearError(t *testing.T) {
	db := openTestDB(t)
	_, _ = db.Exec(`DROP TABLE nowhere`)
	require.NotEmpty(t, db.LastError(bg))

	db.ClearError()

	assert.Empty(t, db.LastError(bg))
	assert.Equal(t, `DROP TABLE nowhere`, db.LastQuery(bg))
}

// overflowQuery fails on its second row: abs() of the smallest int64 overflows.
const overflowQuery = `SELECT abs(x) FROM (SELECT 1 AS x UNION ALL SELECT -9223372036854775808)`

func TestRows_ErrIsRecorded(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.QueryContext(bg, overflowQuery)
	require.NoError(t, err)
	defer rows.Close()
	require.Empty(t, db.LastError(bg))

	for rows.Next() {
	}
	require.Error(t, rows.Err())

	assert.Equal(t, overflowQuery, db.LastQuery(bg))
	assert.Contains(t, db.LastError(bg), "integer overflow")
}

func TestRows_CloseRecordsUncheckedError(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.Query(overflowQuery)
	require.NoError(t, err)
	var n int
	for rows.Next() {
		require.NoError(t, rows.Scan(&n))
	}
	_ = rows.Close()

	assert.Contains(t, db.LastError(bg), "integer overflow")
}

func TestDB_ScopedRecording(t *testing.T) {
	db := openTestDB(t)
	reqCtx := devpulse.WithScope(bg)

	_, err := db.ExecContext(reqCtx, `DELETE FROM refunds`)
	require.Error(t, err)

	assert.Equal(t, `DELETE FROM refunds`, db.LastQuery(reqCtx))
	assert.Contains(t, db.LastError(reqCtx), "refunds")
	assert.Empty(t, db.LastError(bg), "request errors stay in the request")
	assert.Empty(t, db.LastError(devpulse.WithScope(bg)), "each request has its own record")
}

type recordingPoster struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (p *recordingPoster) Post(ctx context.Context, endpoint string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *recordingPoster) Available() bool { return true }

type nopLogger struct{}

func (nopLogger) Debug(args ...any) {}
func (nopLogger) Info(args ...any)  {}
func (nopLogger) Warn(args ...any)  {}
func (nopLogger) Error(args ...any) {}

func TestDB_ReportedAtShutdown(t *testing.T) {
	db := openTestDB(t)
	p := &recordingPoster{}
	reg := devpulse.NewRegistry()
	agent := devpulse.New(
		devpulse.WithLogger(nopLogger{}),
		devpulse.WithAsync(p),
		devpulse.WithDependency(db),
	)
	require.True(t, agent.Init("https://collector.example/ingest", "test", reg))

	_, err := db.Exec(`UPDATE invoices SET paid = 1`)
	require.Error(t, err)

	reg.FireShutdown(context.Background())

	require.Len(t, p.bodies, 1)
	var event devpulse.Event
	require.NoError(t, json.Unmarshal(p.bodies[0], &event))
	assert.Equal(t, devpulse.DatabasePrefix+db.LastError(bg), event.Message)
	assert.Equal(t, `UPDATE invoices SET paid = 1`, event.Context.Extra[devpulse.KeyLastQuery])
	assert.Equal(t, db.LastError(bg), event.Context.Extra[devpulse.KeyDatabaseErr])
}

// newRequestServer serves /broken with a failing query and /ok with a
// succeeding one, behind gohost middleware wired to an agent that watches db.
func newRequestServer(t *testing.T, db *sqltrace.DB, p *recordingPoster) (*gohost.Runtime, http.Handler) {
	t.Helper()
	rt := gohost.New(gohost.WithLogger(nopLogger{}))
	agent := devpulse.New(
		devpulse.WithLogger(nopLogger{}),
		devpulse.WithAsync(p),
		devpulse.WithDependency(db),
	)
	require.True(t, agent.Init("https://collector.example/ingest", "test", rt))

	mux := http.NewServeMux()
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		if _, err := db.ExecContext(r.Context(), `UPDATE invoices SET paid = 1`); err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		var n int
		if err := db.QueryRowContext(r.Context(), `SELECT count(*) FROM orders`).Scan(&n); err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
		}
	})
	return rt, rt.Middleware(mux)
}

func TestDB_ReportedWhenRequestEnds(t *testing.T) {
	db := openTestDB(t)
	p := &recordingPoster{}
	rt, h := newRequestServer(t, db, p)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	require.Len(t, p.bodies, 1, "reported as soon as the failing request ends")
	var event devpulse.Event
	require.NoError(t, json.Unmarshal(p.bodies[0], &event))
	assert.Contains(t, event.Message, devpulse.DatabasePrefix)
	assert.Equal(t, `UPDATE invoices SET paid = 1`, event.Context.Extra[devpulse.KeyLastQuery])
	require.NotNil(t, event.Request)
	assert.Contains(t, event.Request.URL, "/broken")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, w.Code)

	rt.Shutdown(bg)

	assert.Len(t, p.bodies, 1, "a later successful request neither hides nor repeats the failure")
}

func TestDB_ConcurrentRequestsKeepTheirOwnErrors(t *testing.T) {
	db := openTestDB(t)
	p := &recordingPoster{}
	rt, h := newRequestServer(t, db, p)

	queried := make(chan struct{})
	release := make(chan struct{})
	slow := rt.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := db.ExecContext(r.Context(), `INSERT INTO ledger (id) VALUES (1)`)
		assert.Error(t, err)
		close(queried)
		<-release
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		slow.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ledger", nil))
	}()
	<-queried

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	close(release)
	<-done
	rt.Shutdown(bg)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.bodies, 1)
	var event devpulse.Event
	require.NoError(t, json.Unmarshal(p.bodies[0], &event))
	assert.Equal(t, `INSERT INTO ledger (id) VALUES (1)`, event.Context.Extra[devpulse.KeyLastQuery])
	require.NotNil(t, event.Request)
	assert.Contains(t, event.Request.URL, "/ledger")
}
