package warehouse

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"

	"github.com/chative/sqlagent/internal/agent/model"
)

// ExecError is a classified execution failure.
type ExecError struct {
	Kind model.ErrorKind
	Err  error
}

func (e *ExecError) Error() string { return e.Err.Error() }
func (e *ExecError) Unwrap() error { return e.Err }

// KindOf returns the classification of an Execute error.
func KindOf(err error) model.ErrorKind {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return model.ErrorKindSQL
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = errors.Join(ctx.Err(), err)
	}
	return &ExecError{Kind: kindFor(err), Err: err}
}

func kindFor(err error) model.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.ErrorKindTimeout
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return model.ErrorKindConnection
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1142, 1143, 1227, 1370:
			return model.ErrorKindPermission
		case 1317, 3024:
			return model.ErrorKindTimeout
		case 1040, 1053, 1203, 2002, 2003, 2006, 2013:
			return model.ErrorKindConnection
		}
		return model.ErrorKindSQL
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501" || strings.HasPrefix(pgErr.Code, "28"):
			return model.ErrorKindPermission
		case pgErr.Code == "57014":
			return model.ErrorKindTimeout
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57P"), strings.HasPrefix(pgErr.Code, "XX"):
			return model.ErrorKindConnection
		}
		return model.ErrorKindSQL
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return model.ErrorKindConnection
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case 3, 23: // SQLITE_PERM, SQLITE_AUTH
			return model.ErrorKindPermission
		case 9: // SQLITE_INTERRUPT
			return model.ErrorKindTimeout
		case 5, 6, 10, 11, 14, 26: // BUSY, LOCKED, IOERR, CORRUPT, CANTOPEN, NOTADB
			return model.ErrorKindConnection
		}
		return model.ErrorKindSQL
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return model.ErrorKindTimeout
		}
		return model.ErrorKindConnection
	}
	return model.ErrorKindSQL
}
