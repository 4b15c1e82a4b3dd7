package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// SqliteChunkRepository persists realized calendar intervals in the embedded
// store.
type SqliteChunkRepository struct {
	db *sql.DB
}

// NewSqliteChunkRepository creates the repository.
func NewSqliteChunkRepository(db *sql.DB) *SqliteChunkRepository {
	return &SqliteChunkRepository{db: db}
}

// ReplaceForCapture swaps the capture's chunks atomically.
func (r *SqliteChunkRepository) ReplaceForCapture(ctx context.Context, captureID uuid.UUID, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM capture_chunks WHERE capture_id = ?`, captureID.String()); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for _, chunk := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO capture_chunks (capture_id, start_at, end_at, late, overlapped, prime)
			VALUES (?, ?, ?, ?, ?, ?)`,
			chunk.CaptureID.String(), sqlTime(chunk.Start), sqlTime(chunk.End),
			chunk.Late, chunk.Overlapped, chunk.Prime)
		if err != nil {
			return fmt.Errorf("save chunk: %w", err)
		}
	}
	return tx.Commit()
}

// ListByCapture returns the capture's chunks ordered by start.
func (r *SqliteChunkRepository) ListByCapture(ctx context.Context, captureID uuid.UUID) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT capture_id, start_at, end_at, late, overlapped, prime
		FROM capture_chunks WHERE capture_id = ? ORDER BY start_at`, captureID.String())
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			chunk            domain.Chunk
			idStr, start, end string
		)
		if err := rows.Scan(&idStr, &start, &end, &chunk.Late, &chunk.Overlapped, &chunk.Prime); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if chunk.CaptureID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("capture id: %w", err)
		}
		if chunk.Start, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("start_at: %w", err)
		}
		if chunk.End, err = parseTime(end); err != nil {
			return nil, fmt.Errorf("end_at: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// DeleteForCapture removes every chunk of the capture.
func (r *SqliteChunkRepository) DeleteForCapture(ctx context.Context, captureID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM capture_chunks WHERE capture_id = ?`, captureID.String()); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
