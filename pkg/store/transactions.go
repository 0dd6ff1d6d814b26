package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
)

const transactionColumns = `id, user_id, account_id, category_id, type, amount, date, memo, created_at`

// CreateTransaction inserts a new transaction into the database.
func (s *SQLStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := s.exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID.String(), tx.UserID, tx.AccountID.String(), tx.CategoryID, string(tx.Type), tx.Amount, tx.Date, tx.Memo, formatTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by its ID.
func (s *SQLStore) GetTransaction(ctx context.Context, userID string, id uuid.UUID) (*models.Transaction, error) {
	row := s.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? AND id = ?`, userID, id.String())
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransaction replaces the editable fields of a transaction.
func (s *SQLStore) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.execOne(ctx, "update transaction",
		`UPDATE transactions SET account_id = ?, category_id = ?, type = ?, amount = ?, date = ?, memo = ? WHERE user_id = ? AND id = ?`,
		tx.AccountID.String(), tx.CategoryID, string(tx.Type), tx.Amount, tx.Date, tx.Memo, tx.UserID, tx.ID.String(),
	)
}

// DeleteTransaction removes a single transaction.
func (s *SQLStore) DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) error {
	return s.execOne(ctx, "delete transaction", `DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id.String())
}

// ListTransactions retrieves the transactions matching filter ordered by
// date, then insertion time.
func (s *SQLStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error) {
	where, args := filter.where()
	rows, err := s.query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE `+where+` ORDER BY date ASC, created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for transactions: %w", err)
	}
	return transactions, nil
}

// DeleteTransactions removes every transaction matching filter and reports
// how many were removed.
func (s *SQLStore) DeleteTransactions(ctx context.Context, filter TransactionFilter) (int64, error) {
	where, args := filter.where()
	result, err := s.exec(ctx, `DELETE FROM transactions WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

func (f TransactionFilter) where() (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{f.UserID}

	if f.DateFrom != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "date <= ?")
		args = append(args, f.DateTo)
	}
	if f.MemoPrefix != "" {
		// substr compares case-sensitively on both SQLite and PostgreSQL,
		// unlike SQLite's LIKE.
		clauses = append(clauses, "substr(memo, 1, ?) = ?")
		args = append(args, utf8.RuneCountInString(f.MemoPrefix), f.MemoPrefix)
	}
	if f.AccountID != nil {
		clauses = append(clauses, "account_id = ?")
		args = append(args, f.AccountID.String())
	}
	if f.CategoryID != nil {
		clauses = append(clauses, "category_id = ?")
		args = append(args, f.CategoryID.String())
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	return strings.Join(clauses, " AND "), args
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var txType, created string
	var category uuid.NullUUID

	if err := row.Scan(&tx.ID, &tx.UserID, &tx.AccountID, &category, &txType, &tx.Amount, &tx.Date, &tx.Memo, &created); err != nil {
		return nil, err
	}
	if category.Valid {
		id := category.UUID
		tx.CategoryID = &id
	}
	tx.Type = models.TransactionType(txType)
	var err error
	if tx.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &tx, nil
}
