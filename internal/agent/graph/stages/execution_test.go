package stages

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative/sqlagent/internal/agent/llm/llmtest"
	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/warehouse"
)

func openOrders(t *testing.T, n int) *warehouse.Warehouse {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer TEXT, amount REAL)`)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		_, err := db.Exec(`INSERT INTO orders (id, customer, amount) VALUES (?, ?, ?)`, i, fmt.Sprintf("c%03d", i), float64(i)*1.25)
		require.NoError(t, err)
	}
	return warehouse.New(db, warehouse.EngineSQLite, warehouse.Limits{RowCap: 100, MaxScanRows: 10000, Timeout: 5 * time.Second})
}

func feasible(s *model.PipelineState, query string) *model.PipelineState {
	s.GeneratedSQL = &model.GeneratedSQL{IsFeasible: true, SQLQuery: query}
	return s
}

func TestSQLExecutorAgainstSQLite(t *testing.T) {
	f := newFixture(t)
	st := f.build(t, model.DefaultPipelineConfig(), openOrders(t, 150))
	ctx := context.Background()

	t.Run("truncates at the row cap", func(t *testing.T) {
		d, err := st.SQLExecutor(ctx, feasible(newState("all orders"), "SELECT id, amount FROM orders ORDER BY id"))
		require.NoError(t, err)
		er := d.ExecutionResult
		assert.True(t, d.ExecutionAttempted)
		assert.True(t, er.Success)
		assert.True(t, er.Truncated)
		assert.Len(t, er.Rows, 100)
		assert.Equal(t, 150, er.RowCount)
		assert.Equal(t, []string{"id", "amount"}, er.Columns)
		assert.Equal(t, json.Number("1"), er.Rows[0]["id"])
		assert.Equal(t, 1, er.RetryNumber)
	})

	t.Run("small result is not truncated", func(t *testing.T) {
		d, err := st.SQLExecutor(ctx, feasible(newState("top"), "SELECT customer FROM orders ORDER BY amount DESC LIMIT 3"))
		require.NoError(t, err)
		assert.False(t, d.ExecutionResult.Truncated)
		assert.Equal(t, 3, d.ExecutionResult.RowCount)
		assert.Equal(t, "c150", d.ExecutionResult.Rows[0]["customer"])
	})

	t.Run("sql error", func(t *testing.T) {
		d, err := st.SQLExecutor(ctx, feasible(newState("x"), "SELECT region FROM orders"))
		require.NoError(t, err)
		er := d.ExecutionResult
		assert.False(t, er.Success)
		assert.Equal(t, model.ErrorKindSQL, er.ErrorKind)
		assert.Contains(t, er.Error, "region")
		assert.Equal(t, "SELECT region FROM orders", er.ExecutedSQL)
		assert.NotNil(t, er.Rows)
		assert.True(t, d.ExecutionAttempted)
	})

	t.Run("write is rejected", func(t *testing.T) {
		d, err := st.SQLExecutor(ctx, feasible(newState("x"), "DELETE FROM orders"))
		require.NoError(t, err)
		assert.Equal(t, model.ErrorKindRejected, d.ExecutionResult.ErrorKind)
	})
}

func TestSQLExecutorPrefersFix(t *testing.T) {
	f := newFixture(t)
	s := feasible(newState("x"), "SELECT bad FROM orders")
	s.RetryCount = 1
	s.ErrorAnalysisResult = &model.ErrorAnalysis{IsSQLFixable: true, Analysis: "wrong column", FixedSQL: "SELECT amount FROM orders"}

	d, err := f.stages.SQLExecutor(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT amount FROM orders"}, f.runner.Calls())
	assert.Equal(t, "SELECT amount FROM orders", d.ExecutionResult.ExecutedSQL)
	assert.Equal(t, 2, d.ExecutionResult.RetryNumber)
}

func TestSQLExecutorRefusesWhenBudgetExhausted(t *testing.T) {
	f := newFixture(t)
	s := feasible(newState("x"), "SELECT 1")
	s.RetryCount = 2

	d, err := f.stages.SQLExecutor(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, f.runner.Calls())
	assert.False(t, d.ExecutionAttempted)
	assert.False(t, d.ExecutionResult.Success)
	assert.Equal(t, model.ErrorKindExhausted, d.ExecutionResult.ErrorKind)
}

func TestSQLExecutorClassifiesRunnerErrors(t *testing.T) {
	f := newFixture(t)
	f.runner.fn = func(string) (*warehouse.Result, error) {
		return nil, &warehouse.ExecError{Kind: model.ErrorKindConnection, Err: errors.New("dial tcp: refused")}
	}

	d, err := f.stages.SQLExecutor(context.Background(), feasible(newState("x"), "SELECT 1"))
	require.NoError(t, err)
	assert.Equal(t, model.ErrorKindConnection, d.ExecutionResult.ErrorKind)
}

func TestSQLExecutorReturnsCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.runner.fn = func(string) (*warehouse.Result, error) {
		cancel()
		return nil, context.Canceled
	}

	_, err := f.stages.SQLExecutor(ctx, feasible(newState("x"), "SELECT 1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func failedState(kind model.ErrorKind) *model.PipelineState {
	s := withTables(feasible(newState("total orders"), "SELECT SUM(amout) FROM orders"))
	s.RetryCount = 1
	s.ExecutionResult = &model.ExecutionResult{
		Success:     false,
		Rows:        []model.Row{},
		Columns:     []string{},
		Error:       "no such column: amout",
		ErrorKind:   kind,
		ExecutedSQL: "SELECT SUM(amout) FROM orders",
		RetryNumber: 1,
	}
	return s
}

func TestErrorAnalyzer(t *testing.T) {
	ctx := context.Background()

	t.Run("fixable", func(t *testing.T) {
		f := newFixture(t)
		f.chat.On(analyzePrompt, llmtest.JSON(map[string]any{
			"is_sql_fixable": true,
			"analysis":       "Column name is misspelled.",
			"fixed_sql":      "SELECT SUM(amount) FROM orders;",
		}))

		d, err := f.stages.ErrorAnalyzer(ctx, failedState(model.ErrorKindSQL))
		require.NoError(t, err)
		a := d.ErrorAnalysisResult
		assert.True(t, a.IsSQLFixable)
		assert.Equal(t, "SELECT SUM(amount) FROM orders", a.FixedSQL)

		user := f.chat.Calls()[0].Messages[1].Content
		assert.Contains(t, user, "no such column: amout")
		assert.Contains(t, user, "SELECT SUM(amout) FROM orders")
	})

	t.Run("identical fix is not a fix", func(t *testing.T) {
		f := newFixture(t)
		f.chat.On(analyzePrompt, llmtest.JSON(map[string]any{
			"is_sql_fixable": true,
			"analysis":       "Retry.",
			"fixed_sql":      "SELECT  SUM(amout)\nFROM orders",
		}))

		d, err := f.stages.ErrorAnalyzer(ctx, failedState(model.ErrorKindSQL))
		require.NoError(t, err)
		assert.False(t, d.ErrorAnalysisResult.IsSQLFixable)
		assert.Empty(t, d.ErrorAnalysisResult.FixedSQL)
	})

	t.Run("not fixable", func(t *testing.T) {
		f := newFixture(t)
		f.chat.On(analyzePrompt, llmtest.JSON(map[string]any{
			"is_sql_fixable": false,
			"analysis":       "The data does not exist.",
		}))

		d, err := f.stages.ErrorAnalyzer(ctx, failedState(model.ErrorKindSQL))
		require.NoError(t, err)
		assert.False(t, d.ErrorAnalysisResult.IsSQLFixable)
		assert.Equal(t, "The data does not exist.", d.ErrorAnalysisResult.Analysis)
	})

	for _, kind := range []model.ErrorKind{model.ErrorKindTimeout, model.ErrorKindConnection, model.ErrorKindPermission} {
		t.Run("systemic "+string(kind), func(t *testing.T) {
			f := newFixture(t)
			d, err := f.stages.ErrorAnalyzer(ctx, failedState(kind))
			require.NoError(t, err)
			assert.False(t, d.ErrorAnalysisResult.IsSQLFixable)
			assert.Contains(t, d.ErrorAnalysisResult.Analysis, string(kind))
			assert.Empty(t, f.chat.Calls())
		})
	}

	t.Run("requires a failure", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.stages.ErrorAnalyzer(ctx, newState("x"))
		assert.Error(t, err)
	})
}

func succeeded(rows []model.Row, rowCount int, truncated bool) *model.PipelineState {
	s := withTables(feasible(newState("top customers"), "SELECT customer, amount FROM orders"))
	s.ExecutionResult = &model.ExecutionResult{
		Success:   true,
		Columns:   []string{"customer", "amount"},
		Rows:      rows,
		RowCount:  rowCount,
		Truncated: truncated,
	}
	return s
}

func TestResultNarrator(t *testing.T) {
	ctx := context.Background()
	rows := []model.Row{
		{"customer": "Acme", "amount": json.Number("1200.456")},
		{"customer": "Globex", "amount": nil},
	}

	t.Run("complete result", func(t *testing.T) {
		f := newFixture(t)
		f.chat.On(narratePrompt, llmtest.JSON(map[string]any{"narration": "Acme leads with 1,200.46."}))

		d, err := f.stages.ResultNarrator(ctx, succeeded(rows, 2, false))
		require.NoError(t, err)
		assert.Equal(t, "Acme leads with 1,200.46.", *d.Narration)

		user := f.chat.Calls()[0].Messages[1].Content
		assert.Contains(t, user, "customer | amount")
		assert.Contains(t, user, "Acme | 1200.46")
		assert.Contains(t, user, "Globex | NULL")
	})

	t.Run("truncated result carries a caveat", func(t *testing.T) {
		f := newFixture(t)
		f.chat.On(narratePrompt, llmtest.JSON(map[string]any{"narration": "Acme leads."}))

		capped := make([]model.Row, 100)
		for i := range capped {
			capped[i] = model.Row{"customer": fmt.Sprint("c", i), "amount": json.Number(fmt.Sprint(i))}
		}
		d, err := f.stages.ResultNarrator(ctx, succeeded(capped, 150, true))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(*d.Narration, "Acme leads. "))
		assert.Contains(t, *d.Narration, "only the first 100 rows")
		assert.NotContains(t, *d.Narration, "150")
		assert.Contains(t, f.chat.Calls()[0].Messages[1].Content, "150 rows matched, 100 returned (truncated)")
	})

	t.Run("empty result", func(t *testing.T) {
		f := newFixture(t)
		f.chat.On(narratePrompt, llmtest.JSON(map[string]any{"narration": "No matching records were found."}))

		_, err := f.stages.ResultNarrator(ctx, succeeded([]model.Row{}, 0, false))
		require.NoError(t, err)
		assert.Contains(t, f.chat.Calls()[0].Messages[1].Content, "No rows.")
	})
}

func TestPreviewRows(t *testing.T) {
	rows := make([]model.Row, 30)
	for i := range rows {
		rows[i] = model.Row{"n": json.Number(fmt.Sprint(i)), "note": strings.Repeat("x", 150)}
	}
	out := previewRows(&model.ExecutionResult{Columns: []string{"n", "note"}, Rows: rows, RowCount: 30}, 20, 0)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 22)
	assert.Equal(t, "Rows returned: 30, showing first 20", lines[0])
	assert.Equal(t, "n | note", lines[1])
	assert.Equal(t, "0 | "+strings.Repeat("x", 100)+"...", lines[2])

	truncated := &model.ExecutionResult{Columns: []string{"n", "note"}, Rows: rows, RowCount: 75, Truncated: true}
	assert.Equal(t, "75 rows matched, 30 returned (truncated), showing first 20",
		strings.Split(previewRows(truncated, 20, 1000), "\n")[0])

	truncated.RowCount = 1000
	assert.Equal(t, "At least 1000 rows matched, 30 returned (truncated)",
		strings.Split(previewRows(truncated, 0, 1000), "\n")[0])
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "42", formatCell(json.Number("42")))
	assert.Equal(t, "3.14", formatCell(json.Number("3.14159")))
	assert.Equal(t, "true", formatCell(true))
	assert.Equal(t, "2.50", formatCell(2.5))
}
