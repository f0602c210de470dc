package model

import (
	"context"
	"errors"
)

// ErrCheckpointNotFound is returned when no state is stored for a session.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrCheckpointCorrupt is returned when a stored state cannot be decoded.
var ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

// CheckpointRepository persists PipelineState between turns, keyed by session id.
type CheckpointRepository interface {
	// Save stores the state for its session, replacing any previous checkpoint.
	Save(ctx context.Context, state *PipelineState) error

	// Load returns the stored state or ErrCheckpointNotFound.
	Load(ctx context.Context, sessionID string) (*PipelineState, error)

	// Delete removes the checkpoint for a session.
	Delete(ctx context.Context, sessionID string) error
}
