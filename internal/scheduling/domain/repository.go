package domain

import (
	"context"

	"github.com/google/uuid"
)

// CaptureRepository persists captures.
type CaptureRepository interface {
	Save(ctx context.Context, capture *Capture) error
	FindByID(ctx context.Context, id uuid.UUID) (*Capture, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Capture, error)
}

// PlanRepository persists scheduling plans with their actions.
type PlanRepository interface {
	Save(ctx context.Context, plan *Plan) error
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
}

// ChunkRepository persists realized calendar intervals per capture.
type ChunkRepository interface {
	ReplaceForCapture(ctx context.Context, captureID uuid.UUID, chunks []Chunk) error
	ListByCapture(ctx context.Context, captureID uuid.UUID) ([]Chunk, error)
	DeleteForCapture(ctx context.Context, captureID uuid.UUID) error
}
