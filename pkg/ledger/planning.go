package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/schedule"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/shopspring/decimal"
)

const monthLayout = "2006-01"

func parseMonth(month string) (int, int, error) {
	t, err := time.Parse(monthLayout, month)
	if err != nil {
		return 0, 0, invalid("month", "must be a YYYY-MM month")
	}
	return t.Year(), int(t.Month()), nil
}

// SetBudget sets the spending limit of a category for a month, replacing
// any limit already set for that pair.
func (l *Ledger) SetBudget(ctx context.Context, userID string, categoryID uuid.UUID, month string, limit decimal.Decimal) (*models.Budget, error) {
	if categoryID == uuid.Nil {
		return nil, invalid("category_id", "is required")
	}
	if _, _, err := parseMonth(month); err != nil {
		return nil, err
	}
	if limit.IsNegative() {
		return nil, invalid("limit", "must not be negative")
	}
	if _, err := l.storage.GetCategory(ctx, userID, categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("category_id", "does not name one of your categories")
		}
		return nil, err
	}

	budget := &models.Budget{ID: uuid.New(), UserID: userID, CategoryID: categoryID, Month: month, Limit: limit, CreatedAt: l.clock()}
	if err := l.storage.UpsertBudget(ctx, budget); err != nil {
		return nil, fmt.Errorf("failed to store budget: %w", err)
	}
	return budget, nil
}

// ListBudgets regenerates the ledger, then reports each budget of month with
// the expenses booked against its category that month.
func (l *Ledger) ListBudgets(ctx context.Context, userID, month string) ([]*models.BudgetStatus, error) {
	year, m, err := parseMonth(month)
	if err != nil {
		return nil, err
	}
	from, to, err := monthRange(year, m)
	if err != nil {
		return nil, err
	}
	if err := l.Regenerate(ctx, userID); err != nil {
		return nil, err
	}

	budgets, err := l.storage.ListBudgets(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	expenses, err := l.storage.ListTransactions(ctx, store.TransactionFilter{
		UserID: userID, DateFrom: from, DateTo: to, Type: models.TransactionTypeExpense,
	})
	if err != nil {
		return nil, err
	}
	names, err := l.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	spent := make(map[uuid.UUID]decimal.Decimal)
	for _, tx := range expenses {
		if tx.CategoryID != nil {
			spent[*tx.CategoryID] = spent[*tx.CategoryID].Add(tx.Amount)
		}
	}

	out := make([]*models.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		s := spent[b.CategoryID]
		out = append(out, &models.BudgetStatus{
			Budget:       *b,
			CategoryName: names[b.CategoryID],
			Spent:        s,
			Remaining:    b.Limit.Sub(s),
		})
	}
	return out, nil
}

func (l *Ledger) DeleteBudget(ctx context.Context, userID string, id uuid.UUID) error {
	return lookupErr("budget", l.storage.DeleteBudget(ctx, userID, id))
}

// CreateGoal starts a savings goal with nothing saved.
func (l *Ledger) CreateGoal(ctx context.Context, userID, name string, target decimal.Decimal, deadline *string) (*models.Goal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if !target.IsPositive() {
		return nil, invalid("target", "must be positive")
	}
	if deadline != nil {
		if strings.TrimSpace(*deadline) == "" {
			deadline = nil
		} else if _, err := schedule.ParseDate(*deadline); err != nil {
			return nil, invalid("deadline", "must be a YYYY-MM-DD date")
		}
	}

	now := l.clock()
	goal := &models.Goal{ID: uuid.New(), UserID: userID, Name: name, Target: target, Saved: decimal.Zero, Deadline: deadline, CreatedAt: now, UpdatedAt: now}
	if err := l.storage.CreateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to store goal: %w", err)
	}
	return goal, nil
}

func (l *Ledger) ListGoals(ctx context.Context, userID string) ([]*models.Goal, error) {
	goals, err := l.storage.ListGoals(ctx, userID)
	if goals == nil && err == nil {
		goals = []*models.Goal{}
	}
	return goals, err
}

// Contribute adds amount to a goal's saved total.
func (l *Ledger) Contribute(ctx context.Context, userID string, id uuid.UUID, amount decimal.Decimal) (*models.Goal, error) {
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be positive")
	}
	goal, err := l.storage.GetGoal(ctx, userID, id)
	if err != nil {
		return nil, lookupErr("goal", err)
	}
	goal.Saved = goal.Saved.Add(amount)
	goal.UpdatedAt = l.clock()
	if err := l.storage.UpdateGoal(ctx, goal); err != nil {
		return nil, lookupErr("goal", err)
	}
	return goal, nil
}

func (l *Ledger) DeleteGoal(ctx context.Context, userID string, id uuid.UUID) error {
	return lookupErr("goal", l.storage.DeleteGoal(ctx, userID, id))
}

func (l *Ledger) categoryNames(ctx context.Context, userID string) (map[uuid.UUID]string, error) {
	categories, err := l.storage.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}
