package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/schedule"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TransactionInput is the user-editable part of a transaction.
type TransactionInput struct {
	AccountID  uuid.UUID              `json:"account_id"`
	CategoryID *uuid.UUID             `json:"category_id,omitempty"`
	Type       models.TransactionType `json:"type"`
	Amount     decimal.Decimal        `json:"amount"`
	Date       string                 `json:"date"`
	Memo       string                 `json:"memo"`
}

// TransactionQuery narrows ListTransactions. Month needs Year.
type TransactionQuery struct {
	Year       int
	Month      int
	AccountID  *uuid.UUID
	CategoryID *uuid.UUID
}

func (in *TransactionInput) validate() error {
	if in.AccountID == uuid.Nil {
		return invalid("account_id", "is required")
	}
	switch in.Type {
	case models.TransactionTypeIncome, models.TransactionTypeExpense:
	case "":
		in.Type = models.TransactionTypeExpense
	default:
		return invalid("type", "must be income or expense")
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if _, err := schedule.ParseDate(in.Date); err != nil {
		return invalid("date", "must be a YYYY-MM-DD date")
	}
	in.Memo = strings.TrimSpace(in.Memo)
	return nil
}

// CreateTransaction records a hand-entered transaction.
func (l *Ledger) CreateTransaction(ctx context.Context, userID string, in TransactionInput) (*models.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := l.checkReferences(ctx, userID, in.AccountID, in.CategoryID); err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:         uuid.New(),
		UserID:     userID,
		AccountID:  in.AccountID,
		CategoryID: in.CategoryID,
		Type:       in.Type,
		Amount:     in.Amount,
		Date:       in.Date,
		Memo:       in.Memo,
		CreatedAt:  l.clock(),
	}
	if err := l.storage.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}
	log.Debug().Str("user_id", userID).Str("transaction_id", tx.ID.String()).Msg("transaction created")
	return tx, nil
}

// GetTransaction returns one transaction.
func (l *Ledger) GetTransaction(ctx context.Context, userID string, id uuid.UUID) (*models.Transaction, error) {
	tx, err := l.storage.GetTransaction(ctx, userID, id)
	if err != nil {
		return nil, lookupErr("transaction", err)
	}
	return tx, nil
}

// UpdateTransaction replaces a transaction's editable fields.
func (l *Ledger) UpdateTransaction(ctx context.Context, userID string, id uuid.UUID, in TransactionInput) (*models.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	tx, err := l.GetTransaction(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := l.checkReferences(ctx, userID, in.AccountID, in.CategoryID); err != nil {
		return nil, err
	}

	tx.AccountID = in.AccountID
	tx.CategoryID = in.CategoryID
	tx.Type = in.Type
	tx.Amount = in.Amount
	tx.Date = in.Date
	tx.Memo = in.Memo
	if err := l.storage.UpdateTransaction(ctx, tx); err != nil {
		return nil, lookupErr("transaction", err)
	}
	return tx, nil
}

// DeleteTransaction removes one transaction.
func (l *Ledger) DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) error {
	if err := l.storage.DeleteTransaction(ctx, userID, id); err != nil {
		return lookupErr("transaction", err)
	}
	return nil
}

// ListTransactions regenerates the derived entries, then returns the user's
// transactions in date order.
func (l *Ledger) ListTransactions(ctx context.Context, userID string, q TransactionQuery) ([]*models.Transaction, error) {
	filter := store.TransactionFilter{UserID: userID, AccountID: q.AccountID, CategoryID: q.CategoryID}
	switch {
	case q.Month != 0:
		from, to, err := monthRange(q.Year, q.Month)
		if err != nil {
			return nil, err
		}
		filter.DateFrom, filter.DateTo = from, to
	case q.Year != 0:
		from, to, err := yearRange(q.Year)
		if err != nil {
			return nil, err
		}
		filter.DateFrom, filter.DateTo = from, to
	}

	if err := l.Regenerate(ctx, userID); err != nil {
		return nil, err
	}
	txs, err := l.storage.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	return txs, nil
}

func yearRange(year int) (string, string, error) {
	if year < 1 || year > 9999 {
		return "", "", invalid("year", "must be between 1 and 9999")
	}
	return fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year), nil
}

func monthRange(year, month int) (string, string, error) {
	if year < 1 || year > 9999 {
		return "", "", invalid("year", "must be between 1 and 9999")
	}
	if month < 1 || month > 12 {
		return "", "", invalid("month", "must be between 1 and 12")
	}
	last := schedule.DaysInMonth(year, time.Month(month))
	return fmt.Sprintf("%04d-%02d-01", year, month), fmt.Sprintf("%04d-%02d-%02d", year, month, last), nil
}
