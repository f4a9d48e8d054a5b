package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
)

// fakePG is a database/sql connector that understands just enough SQL for the
// normalized store: TRUNCATE, column-listed INSERT and plain SELECT.
type fakePG struct {
	mu     sync.Mutex
	stmts  []string
	tables map[string][]map[string]any
	fail   fakeFaults
}

type fakeFaults struct {
	ping, begin, exec, commit bool
	tables                    map[string]bool
	rowsErr                   error
}

func newFakeDB() (*sql.DB, *fakePG) {
	pg := &fakePG{tables: map[string][]map[string]any{}}
	return sql.OpenDB(pg), pg
}

// fakeFrom returns the fake behind a store opened on newFakeDB.
func fakeFrom(s *Store) *fakePG {
	if s == nil || s.db == nil {
		return nil
	}
	pg, _ := s.db.Driver().(*fakePG)
	return pg
}

func (pg *fakePG) Connect(context.Context) (driver.Conn, error) { return &fakeConn{pg: pg}, nil }
func (pg *fakePG) Driver() driver.Driver                        { return pg }
func (pg *fakePG) Open(string) (driver.Conn, error)             { return &fakeConn{pg: pg}, nil }

var (
	insertRE   = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+(\w+)\s*\(([^)]*)\)`)
	selectRE   = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+(\w+)`)
	truncateRE = regexp.MustCompile(`(?is)^\s*TRUNCATE\b`)
)

func columns(list string) []string {
	cols := strings.Split(list, ",")
	for i, c := range cols {
		cols[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return cols
}

type fakeConn struct{ pg *fakePG }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("fakepg: prepared statements unsupported")
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return c.BeginTx(context.Background(), driver.TxOptions{}) }

func (c *fakeConn) Ping(context.Context) error {
	if c.pg.fail.ping {
		return errors.New("fakepg: ping refused")
	}
	return nil
}

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.pg.fail.begin {
		return nil, errors.New("fakepg: begin refused")
	}
	return c, nil
}

func (c *fakeConn) Commit() error {
	if c.pg.fail.commit {
		return errors.New("fakepg: commit refused")
	}
	return nil
}

func (c *fakeConn) Rollback() error { return nil }

func (c *fakeConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	pg := c.pg
	pg.mu.Lock()
	defer pg.mu.Unlock()
	pg.stmts = append(pg.stmts, query)
	if pg.fail.exec {
		return nil, errors.New("fakepg: exec refused")
	}
	if truncateRE.MatchString(query) {
		pg.tables = map[string][]map[string]any{}
		return driver.RowsAffected(0), nil
	}
	m := insertRE.FindStringSubmatch(query)
	if m == nil {
		return driver.RowsAffected(0), nil
	}
	table, cols := strings.ToLower(m[1]), columns(m[2])
	if pg.fail.tables[table] {
		return nil, fmt.Errorf("fakepg: insert into %s refused", table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("fakepg: %s has %d columns but %d args", table, len(cols), len(args))
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	pg.tables[table] = append(pg.tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *fakeConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	pg := c.pg
	pg.mu.Lock()
	defer pg.mu.Unlock()
	m := selectRE.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("fakepg: cannot query %q", query)
	}
	cols, table := columns(m[1]), strings.ToLower(m[2])
	if pg.fail.tables[table] {
		return nil, fmt.Errorf("fakepg: select from %s refused", table)
	}
	out := &fakeRows{cols: cols, err: pg.fail.rowsErr}
	for _, row := range pg.tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	err  error
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}
