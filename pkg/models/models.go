package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepaymentType mirrors schedule.RepaymentType on the wire.
type RepaymentType string

const (
	RepaymentAmortized      RepaymentType = "amortized"
	RepaymentInterestOnly   RepaymentType = "interest_only"
	RepaymentPrincipalEqual RepaymentType = "principal_equal"
)

type Loan struct {
	ID         uuid.UUID  `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	AccountID  uuid.UUID  `json:"account_id"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`

	// Contract terms, edited only by the user.
	Principal     decimal.Decimal `json:"principal"`
	InterestRate  decimal.Decimal `json:"interest_rate"` // annual percent
	TermMonths    int             `json:"term_months"`
	StartDate     string          `json:"start_date"`
	DueDay        int             `json:"due_day"` // 1-28
	RepaymentType RepaymentType   `json:"repayment_type"`

	// Engine-owned state.
	RemainingPrincipal decimal.Decimal `json:"remaining_principal"`
	PaidMonths         int             `json:"paid_months"`
	NextDueDate        *string         `json:"next_due_date,omitempty"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
	SettledAt          *string         `json:"settled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Display-only, filled from the account/category directory on reads.
	AccountName  string `json:"account_name,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
}

type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

type Transaction struct {
	ID         uuid.UUID       `json:"id"`
	UserID     string          `json:"user_id"`
	AccountID  uuid.UUID       `json:"account_id"`
	CategoryID *uuid.UUID      `json:"category_id,omitempty"`
	Type       TransactionType `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"`
	Memo       string          `json:"memo"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Account struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // e.g. "checking", "card", "cash"
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Kind      TransactionType `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

type Budget struct {
	ID         uuid.UUID       `json:"id"`
	UserID     string          `json:"user_id"`
	CategoryID uuid.UUID       `json:"category_id"`
	Month      string          `json:"month"` // YYYY-MM
	Limit      decimal.Decimal `json:"limit"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BudgetStatus is a budget with the month's spending against it.
type BudgetStatus struct {
	Budget
	CategoryName string          `json:"category_name"`
	Spent        decimal.Decimal `json:"spent"`
	Remaining    decimal.Decimal `json:"remaining"`
}

type Goal struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Target    decimal.Decimal `json:"target"`
	Saved     decimal.Decimal `json:"saved"`
	Deadline  *string         `json:"deadline,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CategoryTotal struct {
	CategoryID   *uuid.UUID      `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name"`
	Amount       decimal.Decimal `json:"amount"`
}

type MonthlySummary struct {
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	Net        decimal.Decimal `json:"net"`
	ByCategory []CategoryTotal `json:"by_category"`
}

type MonthTotal struct {
	Month   int             `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

type YearlySummary struct {
	Year    int             `json:"year"`
	Months  []MonthTotal    `json:"months"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}
