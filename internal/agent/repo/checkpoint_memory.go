// Package repo persists pipeline checkpoints between turns.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/chative/sqlagent/internal/agent/model"
)

// MemoryCheckpointRepository keeps encoded checkpoints in process. States are
// stored serialized so a loaded state never aliases a saved one.
type MemoryCheckpointRepository struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryCheckpointRepository returns an in-process store. A zero ttl keeps
// entries until evicted by capacity; a zero capacity is unbounded.
func NewMemoryCheckpointRepository(ttl time.Duration, capacity uint64) *MemoryCheckpointRepository {
	opts := []ttlcache.Option[string, []byte]{ttlcache.WithTTL[string, []byte](ttl)}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}
	return &MemoryCheckpointRepository{cache: ttlcache.New(opts...)}
}

func (r *MemoryCheckpointRepository) Save(_ context.Context, state *model.PipelineState) error {
	if state == nil || state.SessionID == "" {
		return errors.New("checkpoint: state without session id")
	}
	b, err := model.MarshalState(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	r.cache.Set(state.SessionID, b, ttlcache.DefaultTTL)
	return nil
}

func (r *MemoryCheckpointRepository) Load(_ context.Context, sessionID string) (*model.PipelineState, error) {
	item := r.cache.Get(sessionID)
	if item == nil {
		return nil, model.ErrCheckpointNotFound
	}
	state, err := model.UnmarshalState(item.Value())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCheckpointCorrupt, err)
	}
	return state, nil
}

func (r *MemoryCheckpointRepository) Delete(_ context.Context, sessionID string) error {
	r.cache.Delete(sessionID)
	return nil
}

// Len reports how many sessions are stored.
func (r *MemoryCheckpointRepository) Len() int { return r.cache.Len() }

var _ model.CheckpointRepository = (*MemoryCheckpointRepository)(nil)
