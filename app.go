package main

import (
	"context"
	"fmt"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"github.com/chative/sqlagent/internal/agent/graph"
	"github.com/chative/sqlagent/internal/agent/graph/nodes"
	"github.com/chative/sqlagent/internal/agent/graph/stages"
	"github.com/chative/sqlagent/internal/agent/llm"
	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/agent/repo"
	"github.com/chative/sqlagent/internal/catalog"
	"github.com/chative/sqlagent/internal/embedding"
	"github.com/chative/sqlagent/internal/vectorstore"
	"github.com/chative/sqlagent/internal/warehouse"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// app owns the process-wide clients. Each is created on first use so that
// commands only connect to what they need.
type app struct {
	cfg AppConfig

	rdb      *goredis.Client
	genai    map[string]*genai.Client
	embedder einoembedding.Embedder
	index    vectorstore.Store
	closers  []func() error
}

func newApp(cfg AppConfig) *app {
	return &app{cfg: cfg, genai: make(map[string]*genai.Client)}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}

func (a *app) redis() (*goredis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := a.cfg.Redis.New()
	if err != nil {
		return nil, fmt.Errorf("initialise redis client: %w", err)
	}
	a.rdb = rdb
	a.closers = append(a.closers, rdb.Close)
	logx.Info().Msg("connected to redis")
	return rdb, nil
}

func (a *app) genaiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if client, ok := a.genai[apiKey]; ok {
		return client, nil
	}
	client, err := nodes.NewGenAIClient(ctx, apiKey, a.cfg.LLM.BaseURL)
	if err != nil {
		return nil, err
	}
	a.genai[apiKey] = client
	return client, nil
}

func (a *app) embedderFor(ctx context.Context) (einoembedding.Embedder, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}
	ec := a.cfg.Embedding
	var base einoembedding.Embedder
	switch ec.Provider {
	case embeddingHash:
		base = embedding.NewHashEmbedder(ec.Dimensions)
	default:
		client, err := a.genaiClient(ctx, ec.APIKey)
		if err != nil {
			return nil, err
		}
		base = embedding.NewGenAI(client, ec.Model, ec.Dimensions, "")
	}
	a.embedder = embedding.NewCached(base, ec.CacheTTL, ec.CacheSize)
	return a.embedder, nil
}

// vectorIndex opens the similarity index. An in-memory index is filled from
// CATALOG_PATH, since nothing else can populate it.
func (a *app) vectorIndex(ctx context.Context) (vectorstore.Store, error) {
	if a.index != nil {
		return a.index, nil
	}
	vc := a.cfg.Vector
	switch vc.Backend {
	case backendRedis:
		rdb, err := a.redis()
		if err != nil {
			return nil, err
		}
		store := vectorstore.NewRedis(rdb, a.cfg.Embedding.Dimensions, map[string]vectorstore.RedisIndex{
			vectorstore.CollectionTerms:  {Name: vc.TermIndex, Prefix: vc.TermPrefix},
			vectorstore.CollectionTables: {Name: vc.TableIndex, Prefix: vc.TablePrefix},
		})
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		a.index = store
	default:
		a.index = vectorstore.NewMemory()
		if a.cfg.CatalogPath == "" {
			logx.Warn().Msg("in-memory vector index without CATALOG_PATH: no terms or tables will match")
			break
		}
		if _, err := a.indexCatalog(ctx, a.cfg.CatalogPath); err != nil {
			return nil, err
		}
	}
	return a.index, nil
}

func (a *app) indexCatalog(ctx context.Context, path string) (catalog.Stats, error) {
	c, err := catalog.Load(path)
	if err != nil {
		return catalog.Stats{}, err
	}
	embedder, err := a.embedderFor(ctx)
	if err != nil {
		return catalog.Stats{}, err
	}
	if a.index == nil {
		if _, err := a.vectorIndex(ctx); err != nil {
			return catalog.Stats{}, err
		}
	}
	ix := &catalog.Indexer{Embedder: embedder, Store: a.index}
	return ix.Index(ctx, c)
}

func (a *app) checkpoints() (model.CheckpointRepository, error) {
	sc := a.cfg.Session
	if sc.Store == backendRedis {
		rdb, err := a.redis()
		if err != nil {
			return nil, err
		}
		return repo.NewRedisCheckpointRepository(rdb, sc.TTL), nil
	}
	return repo.NewMemoryCheckpointRepository(sc.TTL, 0), nil
}

// runner wires every dependency of the pipeline graph.
func (a *app) runner(ctx context.Context) (graph.Runner, error) {
	pc := a.cfg.Pipeline
	wh, err := warehouse.Open(ctx, a.cfg.Database, warehouse.Limits{
		RowCap:      pc.RowCap,
		MaxScanRows: pc.MaxScanRows,
		Timeout:     pc.QueryTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, wh.Close)

	var client *genai.Client
	if a.cfg.LLM.Provider == nodes.ProviderGemini {
		if client, err = a.genaiClient(ctx, a.cfg.LLM.APIKey); err != nil {
			return nil, err
		}
	}
	chat, err := nodes.NewChatModel(ctx, a.cfg.LLM, client)
	if err != nil {
		return nil, err
	}
	embedder, err := a.embedderFor(ctx)
	if err != nil {
		return nil, err
	}
	index, err := a.vectorIndex(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.checkpoints()
	if err != nil {
		return nil, err
	}

	return graph.New(ctx, stages.Deps{
		LLM:         llm.New(chat, a.cfg.LLM.Model, llm.WithMaxAttempts(a.cfg.LLM.MaxAttempts)),
		Embedder:    embedder,
		Index:       index,
		Schema:      wh,
		Runner:      wh,
		Checkpoints: store,
		Config:      pc,
		Dialect:     wh.Engine().DialectName(),
	})
}
