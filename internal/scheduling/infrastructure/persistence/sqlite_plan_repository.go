package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/diaguru/diaguru/internal/scheduling/domain"
)

// SqlitePlanRepository persists plans and their actions in the embedded store.
type SqlitePlanRepository struct {
	db *sql.DB
}

// NewSqlitePlanRepository creates the repository.
func NewSqlitePlanRepository(db *sql.DB) *SqlitePlanRepository {
	return &SqlitePlanRepository{db: db}
}

// Save upserts the plan and replaces its actions in one transaction.
func (r *SqlitePlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO plan_runs (id, owner_id, summary, undone_at, undo_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID().String(), plan.OwnerID.String(), plan.Summary,
		sqlTimePtr(plan.UndoneAt), sqlUUIDPtr(plan.UndoUserID),
		sqlTime(plan.CreatedAt()), sqlTime(plan.UpdatedAt()))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_actions WHERE plan_id = ?`, plan.ID().String()); err != nil {
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO plan_actions (id, plan_id, capture_id, capture_content, action_type, prev_state, next_state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			action.ID.String(), action.PlanID.String(), action.CaptureID.String(), action.CaptureContent,
			string(action.ActionType), string(prev), string(next), sqlTime(action.CreatedAt))
		if err != nil {
			return fmt.Errorf("save plan action: %w", err)
		}
	}

	return tx.Commit()
}

// FindByID loads a plan with its actions in insertion order, nil when absent.
func (r *SqlitePlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	var (
		ownerStr, summary          string
		undoneAt, undoUserStr      sql.NullString
		createdAtStr, updatedAtStr string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id, summary, undone_at, undo_user_id, created_at, updated_at
		FROM plan_runs WHERE id = ?`, id.String()).
		Scan(&ownerStr, &summary, &undoneAt, &undoUserStr, &createdAtStr, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}

	ownerID, err := uuid.Parse(ownerStr)
	if err != nil {
		return nil, fmt.Errorf("owner id: %w", err)
	}
	undone, err := timeFromNull(undoneAt)
	if err != nil {
		return nil, fmt.Errorf("undone_at: %w", err)
	}
	undoUser, err := uuidFromNull(undoUserStr)
	if err != nil {
		return nil, fmt.Errorf("undo user id: %w", err)
	}
	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, capture_id, capture_content, action_type, prev_state, next_state, created_at
		FROM plan_actions WHERE plan_id = ? ORDER BY created_at, id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("find plan actions: %w", err)
	}
	defer rows.Close()

	var actions []*domain.PlanAction
	for rows.Next() {
		action, err := scanSqlitePlanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return domain.RehydratePlan(id, ownerID, summary, undone, undoUser, actions, createdAt, updatedAt), nil
}

func scanSqlitePlanAction(row rowScanner) (*domain.PlanAction, error) {
	var (
		idStr, planStr, captureStr  string
		content, actionType         string
		prev, next, createdAtStr    string
	)
	err := row.Scan(&idStr, &planStr, &captureStr, &content, &actionType, &prev, &next, &createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("scan plan action: %w", err)
	}

	action := &domain.PlanAction{
		CaptureContent: content,
		ActionType:     domain.ActionType(actionType),
	}
	if action.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("action id: %w", err)
	}
	if action.PlanID, err = uuid.Parse(planStr); err != nil {
		return nil, fmt.Errorf("plan id: %w", err)
	}
	if action.CaptureID, err = uuid.Parse(captureStr); err != nil {
		return nil, fmt.Errorf("capture id: %w", err)
	}
	if action.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(prev), &action.Prev); err != nil {
		return nil, fmt.Errorf("decode prev state: %w", err)
	}
	if err := json.Unmarshal([]byte(next), &action.Next); err != nil {
		return nil, fmt.Errorf("decode next state: %w", err)
	}
	return action, nil
}
