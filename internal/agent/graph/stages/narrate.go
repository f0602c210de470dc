package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chative/sqlagent/internal/agent/graph/prompts"
	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

const maxCellChars = 100

// ResultNarrator turns a successful execution into prose. Truncated results
// always carry a caveat naming how many rows were returned.
func (p *Stages) ResultNarrator(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	er := s.ExecutionResult
	if er == nil || !er.Success {
		return nil, fmt.Errorf("result narrator: no successful execution to narrate")
	}

	payload := section("question", normalizedQuery(s)) +
		section("result", previewRows(er, p.deps.Config.PreviewRows, p.deps.Config.MaxScanRows))
	msgs, err := prompts.Render(ctx, prompts.ResultNarrator, nil, payload)
	if err != nil {
		return nil, err
	}
	var out narrationOutput
	usage, err := p.deps.LLM.Generate(ctx, string(model.StageResultNarrator), msgs, &out)
	if err != nil {
		return nil, err
	}

	narration := strings.TrimSpace(out.Narration)
	if er.Truncated {
		narration += " " + truncationCaveat(len(er.Rows))
	}

	logStage(logx.Info(), s, model.StageResultNarrator).Int("row_count", er.RowCount).Bool("truncated", er.Truncated).Msg("result narrated")
	return &model.Delta{Stage: model.StageResultNarrator, Narration: &narration, Usage: &usage}, nil
}

func truncationCaveat(rows int) string {
	return fmt.Sprintf("(Note: only the first %d rows were returned, so this answer may be incomplete.)", rows)
}

// previewRows renders the leading rows as a pipe-separated table. A scan
// that stopped at maxScan reports its match count as a lower bound.
func previewRows(er *model.ExecutionResult, limit, maxScan int) string {
	if er.RowCount == 0 || len(er.Rows) == 0 {
		return "No rows."
	}
	if limit <= 0 || limit > len(er.Rows) {
		limit = len(er.Rows)
	}
	var b strings.Builder
	switch {
	case !er.Truncated:
		fmt.Fprintf(&b, "Rows returned: %d", len(er.Rows))
	case maxScan > 0 && er.RowCount >= maxScan:
		fmt.Fprintf(&b, "At least %d rows matched, %d returned (truncated)", er.RowCount, len(er.Rows))
	default:
		fmt.Fprintf(&b, "%d rows matched, %d returned (truncated)", er.RowCount, len(er.Rows))
	}
	if limit < len(er.Rows) {
		fmt.Fprintf(&b, ", showing first %d", limit)
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(er.Columns, " | "))
	b.WriteString("\n")
	for _, row := range er.Rows[:limit] {
		cells := make([]string, len(er.Columns))
		for i, col := range er.Columns {
			cells[i] = formatCell(row[col])
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = "NULL"
	case json.Number:
		s = formatNumber(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', 2, 64)
	case time.Time:
		s = x.Format(time.RFC3339)
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	if r := []rune(s); len(r) > maxCellChars {
		s = string(r[:maxCellChars]) + "..."
	}
	return s
}

func formatNumber(n json.Number) string {
	if _, err := n.Int64(); err == nil {
		return n.String()
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
