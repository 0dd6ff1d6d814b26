package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
)

// CreateAccount adds an account loans and transactions can debit.
func (l *Ledger) CreateAccount(ctx context.Context, userID, name, kind string) (*models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "checking"
	}
	account := &models.Account{ID: uuid.New(), UserID: userID, Name: name, Kind: kind, CreatedAt: l.clock()}
	if err := l.storage.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to store account: %w", err)
	}
	return account, nil
}

func (l *Ledger) GetAccount(ctx context.Context, userID string, id uuid.UUID) (*models.Account, error) {
	account, err := l.storage.GetAccount(ctx, userID, id)
	if err != nil {
		return nil, lookupErr("account", err)
	}
	return account, nil
}

func (l *Ledger) ListAccounts(ctx context.Context, userID string) ([]*models.Account, error) {
	accounts, err := l.storage.ListAccounts(ctx, userID)
	if accounts == nil && err == nil {
		accounts = []*models.Account{}
	}
	return accounts, err
}

func (l *Ledger) DeleteAccount(ctx context.Context, userID string, id uuid.UUID) error {
	return lookupErr("account", l.storage.DeleteAccount(ctx, userID, id))
}

// CreateCategory adds an income or expense category.
func (l *Ledger) CreateCategory(ctx context.Context, userID, name string, kind models.TransactionType) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	switch kind {
	case models.TransactionTypeIncome, models.TransactionTypeExpense:
	case "":
		kind = models.TransactionTypeExpense
	default:
		return nil, invalid("kind", "must be income or expense")
	}
	category := &models.Category{ID: uuid.New(), UserID: userID, Name: name, Kind: kind, CreatedAt: l.clock()}
	if err := l.storage.CreateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to store category: %w", err)
	}
	return category, nil
}

func (l *Ledger) GetCategory(ctx context.Context, userID string, id uuid.UUID) (*models.Category, error) {
	category, err := l.storage.GetCategory(ctx, userID, id)
	if err != nil {
		return nil, lookupErr("category", err)
	}
	return category, nil
}

func (l *Ledger) ListCategories(ctx context.Context, userID string) ([]*models.Category, error) {
	categories, err := l.storage.ListCategories(ctx, userID)
	if categories == nil && err == nil {
		categories = []*models.Category{}
	}
	return categories, err
}

func (l *Ledger) DeleteCategory(ctx context.Context, userID string, id uuid.UUID) error {
	return lookupErr("category", l.storage.DeleteCategory(ctx, userID, id))
}
