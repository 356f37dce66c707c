package sqlite

import (
	"context"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mesh-intelligence/websql/pkg/types"
)

// connPragmas run on every pinned connection before it is handed out.
var connPragmas = []string{
	"PRAGMA temp_store = MEMORY",
	"PRAGMA page_size = 4096",
	"PRAGMA synchronous = OFF",
}

// rowStatement matches statements whose result is a row set. Everything
// else goes through Exec so that rowsAffected and insertId are known.
var rowStatement = regexp.MustCompile(`(?i)^\s*(?:select|pragma|with|values|explain)\b`)

// returningClause marks a write that also yields rows.
var returningClause = regexp.MustCompile(`(?i)\breturning\b`)

// leadingComments matches the whitespace and comments before the first
// keyword of a statement.
var leadingComments = regexp.MustCompile(`^(?:\s+|--[^\n]*(?:\n|$)|/\*(?s:.*?)\*/)*`)

// statementKind reports whether sql yields rows and whether it is a write
// whose change counters must be read back.
func statementKind(sql string) (rows, write bool) {
	body := sql[leadingComments.FindStringIndex(sql)[1]:]
	if rowStatement.MatchString(body) {
		return true, false
	}
	if returningClause.MatchString(body) {
		return true, true
	}
	return false, true
}

// conn is the types.Conn handed out by Bridge.Connect.
type conn struct {
	id   string
	name string

	mu     sync.Mutex
	c      *sqlx.Conn
	closed bool
}

func (c *conn) ID() string { return c.id }

// openConn pins one connection of db and applies connPragmas to it.
func openConn(ctx context.Context, db *sqlx.DB, name string) (*conn, error) {
	sc, err := db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range connPragmas {
		if _, err := sc.ExecContext(ctx, p); err != nil {
			_ = sc.Close()
			return nil, errors.Wrap(err, p)
		}
	}
	return &conn{id: newConnID(), name: name, c: sc}, nil
}

// newConnID returns a UUID v7 string, falling back to v4.
func newConnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func asConn(tc types.Conn) (*conn, error) {
	c, ok := tc.(*conn)
	if !ok || c == nil {
		return nil, types.Errorf(types.KindConnection, "%w: not a sqlite connection", types.ErrConnectionClosed)
	}
	return c, nil
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.c.Close()
}

// execute runs one statement. Statements on a single conn never overlap;
// the engine waits for each completion before issuing the next.
func (c *conn) execute(ctx context.Context, sql string, args []any) (*types.NativeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, types.ErrConnectionClosed
	}
	if rows, write := statementKind(sql); rows {
		return c.query(ctx, sql, args, write)
	}

	res, err := c.c.ExecContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out := &types.NativeResult{Rows: []types.NativeRow{}}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.InsertID = id
	}
	return out, nil
}

// query collects the rows of sql. For a write with a RETURNING clause the
// change counters are read back afterwards on the same connection.
func (c *conn) query(ctx context.Context, sql string, args []any, write bool) (*types.NativeResult, error) {
	rows, err := c.c.QueryxContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &types.NativeResult{Rows: []types.NativeRow{}}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		row := make(types.NativeRow, len(cols))
		for i, col := range cols {
			row[i] = types.Column{Key: col, Value: vals[i]}
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !write {
		return out, nil
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	err = c.c.QueryRowxContext(ctx, "SELECT changes(), last_insert_rowid()").Scan(&out.RowsAffected, &out.InsertID)
	if err != nil {
		return nil, errors.Wrap(err, "read change counters")
	}
	return out, nil
}
