package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/chative/sqlagent/internal/agent/graph/nodes"
	"github.com/chative/sqlagent/internal/agent/graph/stages"
	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// GraphBuilder handles the construction of the pipeline graph.
type GraphBuilder struct {
	stages *stages.Stages
	route  nodes.RouteConfig
	graph  *compose.Graph[model.QueryInput, *model.Reply]
}

// BuildGraph constructs and returns the compiled pipeline graph. The graph
// state is the turn's PipelineState; every node reports a delta that a post
// handler merges into it, and every branch is decided by nodes.Next.
func BuildGraph(ctx context.Context, st *stages.Stages) (compose.Runnable[model.QueryInput, *model.Reply], error) {
	if st == nil {
		return nil, fmt.Errorf("stages are nil")
	}

	builder := &GraphBuilder{
		stages: st,
		route:  nodes.RouteConfig{MaxRetries: st.Config().MaxRetries},
		graph: compose.NewGraph[model.QueryInput, *model.Reply](
			compose.WithGenLocalState(func(ctx context.Context) *model.PipelineState {
				return model.NewPipelineState("")
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// addNodes adds the session loader, every stage and the finalizer.
func (b *GraphBuilder) addNodes() error {
	apply := compose.WithStatePostHandler(nodes.NewApplyDeltaPostHandler())

	err := b.graph.AddLambdaNode(nodes.Key(model.StageLoadSession),
		nodes.NewLoadSessionNode(b.stages),
		apply,
		compose.WithNodeName(string(model.StageLoadSession)),
	)
	if err != nil {
		return fmt.Errorf("add node %s: %w", model.StageLoadSession, err)
	}

	handlers := nodes.Handlers(b.stages)
	for _, stage := range model.Stages {
		fn, ok := handlers[stage]
		if !ok {
			continue
		}
		err := b.graph.AddLambdaNode(nodes.Key(stage),
			nodes.NewStageNode(stage, fn),
			apply,
			compose.WithNodeName(string(stage)),
		)
		if err != nil {
			return fmt.Errorf("add node %s: %w", stage, err)
		}
	}

	err = b.graph.AddLambdaNode(nodes.Key(model.StageFinalize),
		nodes.NewFinalizeNode(b.stages),
		compose.WithNodeName(string(model.StageFinalize)),
	)
	if err != nil {
		return fmt.Errorf("add node %s: %w", model.StageFinalize, err)
	}
	return nil
}

// addEdges wires fixed transitions as edges and the rest as branches.
func (b *GraphBuilder) addEdges() error {
	if err := b.graph.AddEdge(compose.START, nodes.Key(model.StageLoadSession)); err != nil {
		return fmt.Errorf("add start edge: %w", err)
	}
	if err := b.graph.AddEdge(nodes.Key(model.StageFinalize), compose.END); err != nil {
		return fmt.Errorf("add end edge: %w", err)
	}

	for _, stage := range model.Stages {
		next := nodes.Successors(stage)
		switch len(next) {
		case 0:
			continue
		case 1:
			if err := b.graph.AddEdge(nodes.Key(stage), nodes.Key(next[0])); err != nil {
				return fmt.Errorf("add edge %s -> %s: %w", stage, next[0], err)
			}
		default:
			ends := make(map[string]bool, len(next))
			for _, n := range next {
				ends[nodes.Key(n)] = true
			}
			branch := compose.NewGraphBranch(nodes.NewRouteCondition(stage, b.route), ends)
			if err := b.graph.AddBranch(nodes.Key(stage), branch); err != nil {
				logx.Error().Err(err).Str("stage", string(stage)).Msg("Error adding branch")
				return fmt.Errorf("error adding branch after %s: %w", stage, err)
			}
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.Reply], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("sql_pipeline"),
		compose.WithMaxRunSteps(nodes.MaxSteps(b.route)),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
