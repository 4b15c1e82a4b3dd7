package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// PostgresChunkRepository persists realized calendar intervals in postgres.
type PostgresChunkRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresChunkRepository creates the repository.
func NewPostgresChunkRepository(pool *pgxpool.Pool) *PostgresChunkRepository {
	return &PostgresChunkRepository{pool: pool}
}

// ReplaceForCapture swaps the capture's chunks atomically.
func (r *PostgresChunkRepository) ReplaceForCapture(ctx context.Context, captureID uuid.UUID, chunks []domain.Chunk) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM capture_chunks WHERE capture_id = $1`, captureID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for _, chunk := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO capture_chunks (capture_id, start_at, end_at, late, overlapped, prime)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			chunk.CaptureID, chunk.Start, chunk.End, chunk.Late, chunk.Overlapped, chunk.Prime)
		if err != nil {
			return fmt.Errorf("save chunk: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ListByCapture returns the capture's chunks ordered by start.
func (r *PostgresChunkRepository) ListByCapture(ctx context.Context, captureID uuid.UUID) ([]domain.Chunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT capture_id, start_at, end_at, late, overlapped, prime
		FROM capture_chunks WHERE capture_id = $1 ORDER BY start_at`, captureID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		if err := rows.Scan(&chunk.CaptureID, &chunk.Start, &chunk.End, &chunk.Late, &chunk.Overlapped, &chunk.Prime); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// DeleteForCapture removes every chunk of the capture.
func (r *PostgresChunkRepository) DeleteForCapture(ctx context.Context, captureID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM capture_chunks WHERE capture_id = $1`, captureID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
