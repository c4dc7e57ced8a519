package archive

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// sqlLogConnector opens go-sqlite3 connections that log every statement at
// debug level.
type sqlLogConnector struct {
	dsn    string
	logger *slog.Logger
}

func newSQLLogConnector(dsn string, logger *slog.Logger) driver.Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqlLogConnector{dsn: dsn, logger: logger}
}

func (c *sqlLogConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.Driver().Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &sqlLogConn{conn: conn, logger: c.logger}, nil
}

func (c *sqlLogConnector) Driver() driver.Driver {
	return &sqlite3.SQLiteDriver{}
}

type sqlLogConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

func (c *sqlLogConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *sqlLogConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = prep.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &sqlLogStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *sqlLogConn) Close() error {
	return c.conn.Close()
}

func (c *sqlLogConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *sqlLogConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 – fallback when the conn has no BeginTx
	return c.conn.Begin()
}

// ExecContext keeps go-sqlite3's multi-statement exec, which the
// prepare path would truncate to the first statement.
func (c *sqlLogConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logStatement(ctx, c.logger, "exec", query, args)
	return execer.ExecContext(ctx, query, args)
}

func (c *sqlLogConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logStatement(ctx, c.logger, "query", query, args)
	return queryer.QueryContext(ctx, query, args)
}

type sqlLogStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

func (s *sqlLogStmt) Close() error  { return s.stmt.Close() }
func (s *sqlLogStmt) NumInput() int { return s.stmt.NumInput() }

func (s *sqlLogStmt) Exec(args []driver.Value) (driver.Result, error) {
	//nolint:staticcheck // SA1019 – required by driver.Stmt
	return s.stmt.Exec(args)
}

func (s *sqlLogStmt) Query(args []driver.Value) (driver.Rows, error) {
	//nolint:staticcheck // SA1019 – required by driver.Stmt
	return s.stmt.Query(args)
}

func (s *sqlLogStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	logStatement(ctx, s.logger, "exec", s.query, args)
	if execCtx, ok := s.stmt.(driver.StmtExecContext); ok {
		return execCtx.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 – fallback when the stmt has no ExecContext
	return s.stmt.Exec(namedValues(args))
}

func (s *sqlLogStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	logStatement(ctx, s.logger, "query", s.query, args)
	if queryCtx, ok := s.stmt.(driver.StmtQueryContext); ok {
		return queryCtx.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 – fallback when the stmt has no QueryContext
	return s.stmt.Query(namedValues(args))
}

func logStatement(ctx context.Context, logger *slog.Logger, op, query string, args []driver.NamedValue) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	formatted := make([]string, len(args))
	for i, a := range args {
		v := formatArg(a.Value)
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		formatted[i] = v
	}
	logger.DebugContext(ctx, "sql", "op", op, "sql", query, "args", formatted)
}

func namedValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v driver.Value) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
