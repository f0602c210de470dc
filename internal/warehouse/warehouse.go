// Package warehouse is the relational boundary of the assistant: column
// introspection and capped, read-only query execution over MySQL, PostgreSQL
// or SQLite.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	errx "github.com/chative/sqlagent/internal/core/error"
	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// ErrTableNotFound is returned by ListColumns when the catalog knows no such table.
var ErrTableNotFound = errors.New("table not found")

// Limits bounds a single query execution.
type Limits struct {
	RowCap      int
	MaxScanRows int
	Timeout     time.Duration
}

// Result is a capped tabular result.
type Result struct {
	Columns   []string
	Rows      []model.Row
	RowCount  int
	Truncated bool
}

// Warehouse wraps a pooled *sql.DB shared by every pipeline run.
type Warehouse struct {
	db     *sql.DB
	engine Engine
	limits Limits
}

// New wraps an already opened database.
func New(db *sql.DB, engine Engine, limits Limits) *Warehouse {
	if limits.RowCap <= 0 {
		limits.RowCap = 100
	}
	if limits.MaxScanRows < limits.RowCap {
		limits.MaxScanRows = limits.RowCap
	}
	return &Warehouse{db: db, engine: engine, limits: limits}
}

// Open connects to the configured database and pings it with exponential backoff.
func Open(ctx context.Context, cfg model.DatabaseConfig, limits Limits) (*Warehouse, error) {
	engine, err := ParseEngine(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(engine.DriverName(), cfg.DSN)
	if err != nil {
		return nil, errx.WrapDB(fmt.Errorf("open %s: %w", engine, err))
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	ping := func() error { return db.PingContext(ctx) }
	notify := func(err error, wait time.Duration) {
		logx.Warn().Err(err).Str("engine", string(engine)).Dur("retry_in", wait).Msg("database ping failed")
	}
	if err := backoff.RetryNotify(ping, retryPolicy, notify); err != nil {
		_ = db.Close()
		return nil, errx.WrapDB(fmt.Errorf("ping %s: %w", engine, err))
	}

	logx.Info().Str("engine", string(engine)).Msg("database connected")
	return New(db, engine, limits), nil
}

// Engine reports the underlying engine.
func (w *Warehouse) Engine() Engine { return w.engine }

// Limits reports the execution limits.
func (w *Warehouse) Limits() Limits { return w.limits }

// Close releases the pool.
func (w *Warehouse) Close() error { return w.db.Close() }

// Ping checks connectivity.
func (w *Warehouse) Ping(ctx context.Context) error { return w.db.PingContext(ctx) }

// ListColumns introspects column name, type and comment for a table.
func (w *Warehouse) ListColumns(ctx context.Context, table string) ([]model.Column, error) {
	rows, err := w.db.QueryContext(ctx, w.engine.ListColumnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []model.Column
	for rows.Next() {
		var c model.Column
		var comment sql.NullString
		if err := rows.Scan(&c.Name, &c.Type, &comment); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		c.Comment = comment.String
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return cols, nil
}

// TableComment returns the catalog comment of a table, "" when unsupported or absent.
func (w *Warehouse) TableComment(ctx context.Context, table string) (string, error) {
	q := w.engine.TableCommentQuery()
	if q == "" {
		return "", nil
	}
	var comment sql.NullString
	err := w.db.QueryRowContext(ctx, q, table).Scan(&comment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("table comment of %s: %w", table, err)
	}
	return comment.String, nil
}

// Execute runs one read-only statement. At most RowCap rows are returned;
// RowCount keeps counting up to MaxScanRows and Truncated is set whenever
// rows were left out. Failures are returned as *ExecError.
func (w *Warehouse) Execute(ctx context.Context, query string) (*Result, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, &ExecError{Kind: model.ErrorKindRejected, Err: err}
	}
	if w.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.limits.Timeout)
		defer cancel()
	}

	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(ctx, err)
	}
	kinds := columnKinds(rows, len(columns))

	res := &Result{Columns: columns, Rows: []model.Row{}}
	for rows.Next() {
		if res.RowCount >= w.limits.MaxScanRows {
			res.Truncated = true
			break
		}
		res.RowCount++
		if len(res.Rows) >= w.limits.RowCap {
			res.Truncated = true
			continue
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(ctx, err)
		}
		row := make(model.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i], kinds[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err)
	}
	return res, nil
}
