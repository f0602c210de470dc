package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/chative/sqlagent/internal/agent/graph/observers"
	"github.com/chative/sqlagent/internal/agent/graph/stages"
	"github.com/chative/sqlagent/internal/agent/model"
	errx "github.com/chative/sqlagent/internal/core/error"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// Runner executes one user turn.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.Reply, error)
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *model.Reply]
	locks    *sessionLocks
}

// New builds the stages and the compiled graph, and returns a Runner.
func New(ctx context.Context, deps stages.Deps) (Runner, error) {
	st, err := stages.New(deps)
	if err != nil {
		return nil, err
	}
	runnable, err := BuildGraph(ctx, st)
	if err != nil {
		return nil, err
	}
	logx.Debug().Msg("Pipeline graph built successfully")
	return &graphRunner{runnable: runnable, locks: newSessionLocks()}, nil
}

// Invoke runs one turn. A missing session id starts a new session. Turns of
// the same session run one at a time.
func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.Reply, error) {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return nil, errx.BadRequest(errors.New("text is required"))
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}

	unlock, err := r.locks.Lock(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()...))
	if err != nil {
		logx.Error().Err(err).Str("session_id", in.SessionID).Msg("turn failed")
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("pipeline returned no reply")
	}
	return out, nil
}
