package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
)

// ErrNotFound is returned when a single-row read, update or delete matches
// nothing owned by the user.
var ErrNotFound = errors.New("record not found")

// TransactionFilter narrows ListTransactions and DeleteTransactions. Zero
// fields do not filter. Date bounds are inclusive YYYY-MM-DD strings.
type TransactionFilter struct {
	UserID     string
	DateFrom   string
	DateTo     string
	MemoPrefix string
	AccountID  *uuid.UUID
	CategoryID *uuid.UUID
	Type       models.TransactionType
}

// Storage defines the interface for database operations. Every operation is
// scoped to the owning user.
type Storage interface {
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, userID string, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	// UpdateLoanState writes only the engine-owned fields of loan: remaining
	// principal, paid months, next due date, monthly payment and updated_at.
	UpdateLoanState(ctx context.Context, loan *models.Loan) error
	DeleteLoan(ctx context.Context, userID string, id uuid.UUID) error
	ListLoans(ctx context.Context, userID string) ([]*models.Loan, error)

	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, userID string, id uuid.UUID) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
	DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error)
	DeleteTransactions(ctx context.Context, filter TransactionFilter) (int64, error)

	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, userID string, id uuid.UUID) (*models.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]*models.Account, error)
	DeleteAccount(ctx context.Context, userID string, id uuid.UUID) error

	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategory(ctx context.Context, userID string, id uuid.UUID) (*models.Category, error)
	ListCategories(ctx context.Context, userID string) ([]*models.Category, error)
	DeleteCategory(ctx context.Context, userID string, id uuid.UUID) error

	// UpsertBudget replaces the limit of an existing user/category/month
	// budget, keeping its id, or inserts budget as new.
	UpsertBudget(ctx context.Context, budget *models.Budget) error
	ListBudgets(ctx context.Context, userID, month string) ([]*models.Budget, error)
	DeleteBudget(ctx context.Context, userID string, id uuid.UUID) error

	CreateGoal(ctx context.Context, goal *models.Goal) error
	GetGoal(ctx context.Context, userID string, id uuid.UUID) (*models.Goal, error)
	UpdateGoal(ctx context.Context, goal *models.Goal) error
	ListGoals(ctx context.Context, userID string) ([]*models.Goal, error)
	DeleteGoal(ctx context.Context, userID string, id uuid.UUID) error

	// RunInTx runs fn against a Storage bound to one database transaction,
	// committing when fn returns nil and rolling back otherwise.
	RunInTx(ctx context.Context, fn func(tx Storage) error) error

	Close() error
}
