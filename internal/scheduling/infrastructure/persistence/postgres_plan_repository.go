package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// PostgresPlanRepository persists plans and their actions in postgres.
type PostgresPlanRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPlanRepository creates the repository.
func NewPostgresPlanRepository(pool *pgxpool.Pool) *PostgresPlanRepository {
	return &PostgresPlanRepository{pool: pool}
}

// Save upserts the plan and replaces its actions in one transaction.
func (r *PostgresPlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO plan_runs (id, owner_id, summary, undone_at, undo_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			summary = EXCLUDED.summary,
			undone_at = EXCLUDED.undone_at,
			undo_user_id = EXCLUDED.undo_user_id,
			updated_at = EXCLUDED.updated_at`,
		plan.ID(), plan.OwnerID, plan.Summary, plan.UndoneAt, plan.UndoUserID,
		plan.CreatedAt(), plan.UpdatedAt())
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM plan_actions WHERE plan_id = $1`, plan.ID()); err != nil {
		return fmt.Errorf("clear plan actions: %w", err)
	}
	for _, action := range plan.Actions {
		prev, err := json.Marshal(action.Prev)
		if err != nil {
			return fmt.Errorf("marshal prev state: %w", err)
		}
		next, err := json.Marshal(action.Next)
		if err != nil {
			return fmt.Errorf("marshal next state: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO plan_actions (id, plan_id, capture_id, capture_content, action_type, prev_state, next_state, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			action.ID, action.PlanID, action.CaptureID, action.CaptureContent,
			string(action.ActionType), prev, next, action.CreatedAt)
		if err != nil {
			return fmt.Errorf("save plan action: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// FindByID loads a plan with its actions in insertion order, nil when absent.
func (r *PostgresPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	var (
		ownerID              uuid.UUID
		summary              string
		undoneAt             *time.Time
		undoUserID           *uuid.UUID
		createdAt, updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT owner_id, summary, undone_at, undo_user_id, created_at, updated_at
		FROM plan_runs WHERE id = $1`, id).
		Scan(&ownerID, &summary, &undoneAt, &undoUserID, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, plan_id, capture_id, capture_content, action_type, prev_state, next_state, created_at
		FROM plan_actions WHERE plan_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("find plan actions: %w", err)
	}
	defer rows.Close()

	var actions []*domain.PlanAction
	for rows.Next() {
		action, err := scanPlanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return domain.RehydratePlan(id, ownerID, summary, undoneAt, undoUserID, actions, createdAt, updatedAt), nil
}

func scanPlanAction(row rowScanner) (*domain.PlanAction, error) {
	var (
		action     domain.PlanAction
		actionType string
		prev, next []byte
	)
	err := row.Scan(&action.ID, &action.PlanID, &action.CaptureID, &action.CaptureContent,
		&actionType, &prev, &next, &action.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan plan action: %w", err)
	}
	action.ActionType = domain.ActionType(actionType)
	if err := json.Unmarshal(prev, &action.Prev); err != nil {
		return nil, fmt.Errorf("decode prev state: %w", err)
	}
	if err := json.Unmarshal(next, &action.Next); err != nil {
		return nil, fmt.Errorf("decode next state: %w", err)
	}
	return &action, nil
}
