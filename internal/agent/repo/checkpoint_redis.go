package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chative/sqlagent/internal/agent/model"
	errx "github.com/chative/sqlagent/internal/core/error"
	logx "github.com/chative/sqlagent/pkg/logger"
)

type RedisCheckpointRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCheckpointRepository(rdb redis.Cmdable, ttl time.Duration) *RedisCheckpointRepository {
	return &RedisCheckpointRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisCheckpointRepository) checkpointKey(sessionID string) string {
	return fmt.Sprintf("session:%s:state", sessionID)
}

// Save replaces the checkpoint and refreshes its TTL.
func (r *RedisCheckpointRepository) Save(ctx context.Context, state *model.PipelineState) error {
	if state == nil || state.SessionID == "" {
		return errors.New("checkpoint: state without session id")
	}
	b, err := model.MarshalState(state)
	if err != nil {
		logx.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to marshal state")
		return fmt.Errorf("marshal state: %w", err)
	}
	key := r.checkpointKey(state.SessionID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save checkpoint to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCheckpointRepository) Load(ctx context.Context, sessionID string) (*model.PipelineState, error) {
	key := r.checkpointKey(sessionID)
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrCheckpointNotFound
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load checkpoint from redis")
		return nil, errx.WrapRedis(err)
	}
	state, err := model.UnmarshalState(b)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to unmarshal state")
		return nil, fmt.Errorf("%w: %v", model.ErrCheckpointCorrupt, err)
	}
	return state, nil
}

func (r *RedisCheckpointRepository) Delete(ctx context.Context, sessionID string) error {
	key := r.checkpointKey(sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete checkpoint from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.CheckpointRepository = (*RedisCheckpointRepository)(nil)
