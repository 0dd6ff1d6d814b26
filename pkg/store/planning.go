package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
)

// UpsertBudget inserts budget or, when the user already budgets the same
// category and month, replaces its limit. budget is refreshed from the
// stored row so callers see the surviving id.
func (s *SQLStore) UpsertBudget(ctx context.Context, budget *models.Budget) error {
	_, err := s.exec(ctx,
		`INSERT INTO budgets (id, user_id, category_id, month, limit_amount, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, category_id, month) DO UPDATE SET limit_amount = excluded.limit_amount`,
		budget.ID.String(), budget.UserID, budget.CategoryID.String(), budget.Month, budget.Limit, formatTime(budget.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert budget: %w", err)
	}

	row := s.queryRow(ctx,
		`SELECT id, user_id, category_id, month, limit_amount, created_at FROM budgets WHERE user_id = ? AND category_id = ? AND month = ?`,
		budget.UserID, budget.CategoryID.String(), budget.Month,
	)
	stored, err := scanBudget(row)
	if err != nil {
		return fmt.Errorf("failed to read back budget: %w", err)
	}
	*budget = *stored
	return nil
}

// ListBudgets retrieves a user's budgets for month (YYYY-MM).
func (s *SQLStore) ListBudgets(ctx context.Context, userID, month string) ([]*models.Budget, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, category_id, month, limit_amount, created_at FROM budgets WHERE user_id = ? AND month = ? ORDER BY created_at, id`,
		userID, month,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []*models.Budget
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget row: %w", err)
		}
		budgets = append(budgets, budget)
	}
	return budgets, rows.Err()
}

// DeleteBudget removes a budget.
func (s *SQLStore) DeleteBudget(ctx context.Context, userID string, id uuid.UUID) error {
	return s.execOne(ctx, "delete budget", `DELETE FROM budgets WHERE user_id = ? AND id = ?`, userID, id.String())
}

func scanBudget(row rowScanner) (*models.Budget, error) {
	var budget models.Budget
	var created string
	if err := row.Scan(&budget.ID, &budget.UserID, &budget.CategoryID, &budget.Month, &budget.Limit, &created); err != nil {
		return nil, err
	}
	var err error
	if budget.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &budget, nil
}

const goalColumns = `id, user_id, name, target, saved, deadline, created_at, updated_at`

// CreateGoal inserts a new savings goal.
func (s *SQLStore) CreateGoal(ctx context.Context, goal *models.Goal) error {
	_, err := s.exec(ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID.String(), goal.UserID, goal.Name, goal.Target, goal.Saved, goal.Deadline, formatTime(goal.CreatedAt), formatTime(goal.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// GetGoal retrieves a savings goal by its ID.
func (s *SQLStore) GetGoal(ctx context.Context, userID string, id uuid.UUID) (*models.Goal, error) {
	row := s.queryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND id = ?`, userID, id.String())
	goal, err := scanGoal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	return goal, nil
}

// UpdateGoal updates an existing savings goal.
func (s *SQLStore) UpdateGoal(ctx context.Context, goal *models.Goal) error {
	return s.execOne(ctx, "update goal",
		`UPDATE goals SET name = ?, target = ?, saved = ?, deadline = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		goal.Name, goal.Target, goal.Saved, goal.Deadline, formatTime(goal.UpdatedAt), goal.UserID, goal.ID.String(),
	)
}

// ListGoals retrieves all savings goals of a user.
func (s *SQLStore) ListGoals(ctx context.Context, userID string) ([]*models.Goal, error) {
	rows, err := s.query(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal row: %w", err)
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

// DeleteGoal removes a savings goal.
func (s *SQLStore) DeleteGoal(ctx context.Context, userID string, id uuid.UUID) error {
	return s.execOne(ctx, "delete goal", `DELETE FROM goals WHERE user_id = ? AND id = ?`, userID, id.String())
}

func scanGoal(row rowScanner) (*models.Goal, error) {
	var goal models.Goal
	var deadline sql.NullString
	var created, updated string
	if err := row.Scan(&goal.ID, &goal.UserID, &goal.Name, &goal.Target, &goal.Saved, &deadline, &created, &updated); err != nil {
		return nil, err
	}
	goal.Deadline = nullableString(deadline)
	var err error
	if goal.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if goal.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &goal, nil
}
