package stages

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chative/sqlagent/internal/agent/model"
)

type intentOutput struct {
	IsIntentClear         bool   `json:"is_intent_clear" jsonschema_description:"true when the conversation names a concrete subject answerable from the company database"`
	ClarificationQuestion string `json:"clarification_question,omitempty" jsonschema_description:"question or explanation for the user, required when is_intent_clear is false"`
}

func (o *intentOutput) Validate() error {
	if !o.IsIntentClear && strings.TrimSpace(o.ClarificationQuestion) == "" {
		return errors.New("clarification_question is required when intent is unclear")
	}
	return nil
}

type keywordsOutput struct {
	Keywords []string `json:"keywords" jsonschema_description:"entity strings that need exact matching, in order of first appearance"`
}

func (o *keywordsOutput) Validate() error {
	if o.Keywords == nil {
		return errors.New("keywords must be a list")
	}
	return nil
}

type normalizedOutput struct {
	NormalizedQuery string `json:"normalized_query" jsonschema_description:"one declarative sentence describing the requested data"`
}

func (o *normalizedOutput) Validate() error {
	if strings.TrimSpace(o.NormalizedQuery) == "" {
		return errors.New("normalized_query is empty")
	}
	return nil
}

type sqlOutput struct {
	IsFeasible       bool   `json:"is_feasible" jsonschema_description:"true only when every required field exists with the same business meaning"`
	InfeasibleKind   string `json:"infeasible_kind,omitempty" jsonschema_description:"no_related_table or missing_fields, only when is_feasible is false"`
	InfeasibleReason string `json:"infeasible_reason,omitempty" jsonschema_description:"user-facing explanation, only when is_feasible is false"`
	SQLQuery         string `json:"sql_query,omitempty" jsonschema_description:"a single SELECT statement, only when is_feasible is true"`
}

func (o *sqlOutput) Validate() error {
	if o.IsFeasible {
		if strings.TrimSpace(o.SQLQuery) == "" {
			return errors.New("sql_query is required when feasible")
		}
		if o.InfeasibleKind != "" {
			return errors.New("infeasible_kind must be empty when feasible")
		}
		return nil
	}
	if strings.TrimSpace(o.SQLQuery) != "" {
		return errors.New("sql_query must be empty when infeasible")
	}
	switch model.InfeasibleKind(o.InfeasibleKind) {
	case model.InfeasibleNoRelatedTable, model.InfeasibleMissingFields:
	default:
		return fmt.Errorf("invalid infeasible_kind %q", o.InfeasibleKind)
	}
	if strings.TrimSpace(o.InfeasibleReason) == "" {
		return errors.New("infeasible_reason is required when infeasible")
	}
	return nil
}

type analysisOutput struct {
	IsSQLFixable bool   `json:"is_sql_fixable" jsonschema_description:"true when rewriting the statement can fix the failure"`
	Analysis     string `json:"analysis" jsonschema_description:"plain-language cause of the failure"`
	FixedSQL     string `json:"fixed_sql,omitempty" jsonschema_description:"corrected statement with the same intent, only when fixable"`
}

func (o *analysisOutput) Validate() error {
	if strings.TrimSpace(o.Analysis) == "" {
		return errors.New("analysis is empty")
	}
	if o.IsSQLFixable && strings.TrimSpace(o.FixedSQL) == "" {
		return errors.New("fixed_sql is required when fixable")
	}
	return nil
}

type narrationOutput struct {
	Narration string `json:"narration" jsonschema_description:"prose summary of the result"`
}

func (o *narrationOutput) Validate() error {
	if strings.TrimSpace(o.Narration) == "" {
		return errors.New("narration is empty")
	}
	return nil
}
