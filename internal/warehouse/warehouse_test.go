package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative/sqlagent/internal/agent/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE employees (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		dept TEXT,
		salary REAL,
		active BOOLEAN
	)`)
	require.NoError(t, err)
	for i := 1; i <= 150; i++ {
		var dept any = "R&D"
		if i%10 == 0 {
			dept = nil
		}
		_, err := db.Exec(`INSERT INTO employees (id, name, dept, salary, active) VALUES (?, ?, ?, ?, ?)`,
			i, fmt.Sprintf("emp-%03d", i), dept, 1000.5+float64(i), i%2 == 0)
		require.NoError(t, err)
	}
	return db
}

func TestParseEngine(t *testing.T) {
	for in, want := range map[string]Engine{
		"mysql":      EngineMySQL,
		"PostgreSQL": EnginePostgres,
		"pgx":        EnginePostgres,
		" sqlite3 ":  EngineSQLite,
	} {
		got, err := ParseEngine(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseEngine("oracle")
	assert.Error(t, err)

	assert.Equal(t, "pgx", EnginePostgres.DriverName())
	assert.Equal(t, "sqlite", EngineSQLite.DriverName())
	assert.Equal(t, "mysql", EngineMySQL.DriverName())
	assert.Equal(t, "PostgreSQL", EnginePostgres.DialectName())
	assert.Equal(t, "SQLite", EngineSQLite.DialectName())
}

func TestListColumns(t *testing.T) {
	w := New(openTestDB(t), EngineSQLite, Limits{})

	cols, err := w.ListColumns(context.Background(), "employees")
	require.NoError(t, err)
	require.Len(t, cols, 5)
	assert.Equal(t, model.Column{Name: "id", Type: "INTEGER"}, cols[0])
	assert.Equal(t, "salary", cols[3].Name)
	assert.Equal(t, "REAL", cols[3].Type)

	_, err = w.ListColumns(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTableNotFound)

	comment, err := w.TableComment(context.Background(), "employees")
	require.NoError(t, err)
	assert.Empty(t, comment)
}

func TestExecuteTruncatesAtRowCap(t *testing.T) {
	w := New(openTestDB(t), EngineSQLite, Limits{RowCap: 100, MaxScanRows: 10000})

	res, err := w.Execute(context.Background(), "SELECT id, name FROM employees ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	assert.Len(t, res.Rows, 100)
	assert.Equal(t, 150, res.RowCount)
	assert.True(t, res.Truncated)
	assert.Equal(t, json.Number("1"), res.Rows[0]["id"])
	assert.Equal(t, "emp-100", res.Rows[99]["name"])
}

func TestExecuteStopsScanningAtMaxScanRows(t *testing.T) {
	w := New(openTestDB(t), EngineSQLite, Limits{RowCap: 10, MaxScanRows: 40})

	res, err := w.Execute(context.Background(), "SELECT id FROM employees")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 10)
	assert.Equal(t, 40, res.RowCount)
	assert.True(t, res.Truncated)
}

func TestExecuteUnderCap(t *testing.T) {
	w := New(openTestDB(t), EngineSQLite, Limits{RowCap: 100})

	res, err := w.Execute(context.Background(),
		"SELECT id, dept, salary FROM employees WHERE id IN (1, 10) ORDER BY id;")
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Equal(t, 2, res.RowCount)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, model.Row{"id": json.Number("1"), "dept": "R&D", "salary": json.Number("1001.5")}, res.Rows[0])
	assert.Nil(t, res.Rows[1]["dept"])

	res, err = w.Execute(context.Background(), "SELECT id FROM employees WHERE id < 0")
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
	assert.Zero(t, res.RowCount)
}

func TestExecuteClassifiesSQLErrors(t *testing.T) {
	w := New(openTestDB(t), EngineSQLite, Limits{})

	_, err := w.Execute(context.Background(), "SELECT department FROM employees")
	require.Error(t, err)
	assert.Equal(t, model.ErrorKindSQL, KindOf(err))
	assert.Contains(t, err.Error(), "department")
}

func TestExecuteRejectsWrites(t *testing.T) {
	db := openTestDB(t)
	w := New(db, EngineSQLite, Limits{})

	_, err := w.Execute(context.Background(), "DELETE FROM employees")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReadOnly)
	assert.Equal(t, model.ErrorKindRejected, KindOf(err))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM employees").Scan(&n))
	assert.Equal(t, 150, n)
}

func TestExecuteTimeoutIsSystemic(t *testing.T) {
	w := New(openTestDB(t), EngineSQLite, Limits{Timeout: 50 * time.Millisecond})

	_, err := w.Execute(context.Background(),
		"WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c) SELECT COUNT(x) FROM c")
	require.Error(t, err)
	assert.Equal(t, model.ErrorKindTimeout, KindOf(err))
	assert.True(t, KindOf(err).Systemic())
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, model.ErrorKindTimeout, kindFor(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, model.ErrorKindSQL, kindFor(errors.New("syntax error")))
	assert.Equal(t, model.ErrorKindSQL, KindOf(errors.New("plain")))
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
	}{
		{"SELECT 1", true},
		{"  select id from t;  ", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"-- comment\nSELECT 1", true},
		{"/* hint */ SELECT 1", true},
		{"SELECT 1; DROP TABLE t", false},
		{"UPDATE t SET a = 1", false},
		{"", false},
		{"-- only a comment", false},
		{"SELECTED", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNotReadOnly)
			}
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Nil(t, normalizeValue(nil, kindOther))
	assert.Equal(t, true, normalizeValue(true, kindOther))
	assert.Equal(t, json.Number("7"), normalizeValue(int64(7), kindOther))
	assert.Equal(t, json.Number("0.25"), normalizeValue(0.25, kindOther))
	assert.Equal(t, "abc", normalizeValue([]byte("abc"), kindOther))
	assert.Equal(t, json.Number("12.50"), normalizeValue([]byte("12.50"), kindNumeric))
	assert.Equal(t, "0012", normalizeValue([]byte("0012"), kindNumeric))
	assert.Equal(t, "12", normalizeValue([]byte("12"), kindOther))
	assert.Equal(t, "2025-03-01T10:00:00Z", normalizeValue(now, kindOther))
}
