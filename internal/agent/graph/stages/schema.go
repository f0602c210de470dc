package stages

import (
	"context"

	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// SchemaLoader introspects each candidate table. A table that fails to load is
// recorded in failed_tables and the rest still load.
func (p *Stages) SchemaLoader(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	delta := &model.Delta{
		Stage:           model.StageSchemaLoader,
		TableStructures: []model.TableStructure{},
		FailedTables:    []model.FailedTable{},
	}
	for _, t := range s.MatchedTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols, err := p.deps.Schema.ListColumns(ctx, t.TableName)
		if err != nil {
			logStage(logx.Warn(), s, model.StageSchemaLoader).Err(err).Str("table", t.TableName).Msg("schema load failed")
			delta.FailedTables = append(delta.FailedTables, model.FailedTable{TableName: t.TableName, Error: err.Error()})
			continue
		}
		delta.TableStructures = append(delta.TableStructures, model.TableStructure{
			TableName:   t.TableName,
			Columns:     cols,
			Description: t.Description,
		})
	}

	logStage(logx.Info(), s, model.StageSchemaLoader).
		Int("loaded", len(delta.TableStructures)).Int("failed", len(delta.FailedTables)).Msg("schemas loaded")
	return delta, nil
}
