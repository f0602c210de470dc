package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative/sqlagent/internal/agent/model"
)

func sampleState(sessionID string) *model.PipelineState {
	s := model.NewPipelineState(sessionID)
	s.BeginTurn("top 3 customers by revenue")
	q := "List the 3 customers with the highest revenue."
	s.Apply(&model.Delta{
		Stage:           model.StageSQLExecutor,
		QueryIntent:     &model.QueryIntent{IsClear: true},
		NormalizedQuery: &q,
		GeneratedSQL:    &model.GeneratedSQL{IsFeasible: true, SQLQuery: "SELECT name, revenue FROM customers ORDER BY revenue DESC LIMIT 3"},
		ExecutionResult: &model.ExecutionResult{
			Success:     true,
			Columns:     []string{"name", "revenue"},
			Rows:        []model.Row{{"name": "Acme", "revenue": json.Number("1200.50")}},
			RowCount:    1,
			ExecutedSQL: "SELECT name, revenue FROM customers ORDER BY revenue DESC LIMIT 3",
			RetryNumber: 1,
		},
		ExecutionAttempted: true,
	})
	return s
}

func newRedisRepo(t *testing.T) (*RedisCheckpointRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCheckpointRepository(rdb, time.Hour), mr
}

func TestCheckpointRepositories(t *testing.T) {
	redisRepo, _ := newRedisRepo(t)
	repos := map[string]model.CheckpointRepository{
		"redis":  redisRepo,
		"memory": NewMemoryCheckpointRepository(time.Hour, 100),
	}
	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.Load(ctx, "s1")
			assert.ErrorIs(t, err, model.ErrCheckpointNotFound)

			want := sampleState("s1")
			require.NoError(t, repo.Save(ctx, want))

			got, err := repo.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			got.Turns[0].Text = "mutated"
			again, err := repo.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "top 3 customers by revenue", again.Turns[0].Text)

			require.NoError(t, repo.Delete(ctx, "s1"))
			_, err = repo.Load(ctx, "s1")
			assert.ErrorIs(t, err, model.ErrCheckpointNotFound)
		})
	}
}

func TestSaveRequiresSessionID(t *testing.T) {
	repo, _ := newRedisRepo(t)
	assert.Error(t, repo.Save(context.Background(), model.NewPipelineState("")))
	assert.Error(t, NewMemoryCheckpointRepository(0, 0).Save(context.Background(), nil))
}

func TestRedisSaveSetsTTL(t *testing.T) {
	repo, mr := newRedisRepo(t)
	require.NoError(t, repo.Save(context.Background(), sampleState("ttl")))
	assert.Equal(t, time.Hour, mr.TTL("session:ttl:state"))
}

func TestRedisLoadCorrupt(t *testing.T) {
	repo, mr := newRedisRepo(t)
	require.NoError(t, mr.Set("session:bad:state", "{not json"))
	_, err := repo.Load(context.Background(), "bad")
	assert.ErrorIs(t, err, model.ErrCheckpointCorrupt)

	require.NoError(t, mr.Set("session:old:state", `{"schema_version":99,"session_id":"old"}`))
	_, err = repo.Load(context.Background(), "old")
	assert.ErrorIs(t, err, model.ErrCheckpointCorrupt)
}

func TestRedisUnavailable(t *testing.T) {
	repo, mr := newRedisRepo(t)
	mr.Close()
	_, err := repo.Load(context.Background(), "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrCheckpointNotFound)
}

func TestMemoryLen(t *testing.T) {
	repo := NewMemoryCheckpointRepository(time.Hour, 0)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleState("a")))
	require.NoError(t, repo.Save(ctx, sampleState("b")))
	require.NoError(t, repo.Save(ctx, sampleState("a")))
	assert.Equal(t, 2, repo.Len())
}
