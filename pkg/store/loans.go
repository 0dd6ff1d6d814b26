package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
)

const loanColumns = `l.id, l.user_id, l.name, l.account_id, l.category_id, l.principal, l.interest_rate, l.term_months, l.start_date, l.due_day, l.repayment_type, l.remaining_principal, l.paid_months, l.next_due_date, l.monthly_payment, l.settled_at, l.created_at, l.updated_at, COALESCE(a.name, ''), COALESCE(c.name, '')`

const loanFrom = ` FROM loans l
	LEFT JOIN accounts a ON a.id = l.account_id
	LEFT JOIN categories c ON c.id = l.category_id`

// CreateLoan inserts a new loan into the database.
func (s *SQLStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.exec(ctx,
		`INSERT INTO loans (id, user_id, name, account_id, category_id, principal, interest_rate, term_months, start_date, due_day, repayment_type, remaining_principal, paid_months, next_due_date, monthly_payment, settled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.UserID, loan.Name, loan.AccountID.String(), loan.CategoryID, loan.Principal, loan.InterestRate, loan.TermMonths, loan.StartDate, loan.DueDay, string(loan.RepaymentType), loan.RemainingPrincipal, loan.PaidMonths, loan.NextDueDate, loan.MonthlyPayment, loan.SettledAt, formatTime(loan.CreatedAt), formatTime(loan.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID, joined with its account and category names.
func (s *SQLStore) GetLoan(ctx context.Context, userID string, id uuid.UUID) (*models.Loan, error) {
	row := s.queryRow(ctx, `SELECT `+loanColumns+loanFrom+` WHERE l.user_id = ? AND l.id = ?`, userID, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	return s.execOne(ctx, "update loan",
		`UPDATE loans SET name = ?, account_id = ?, category_id = ?, principal = ?, interest_rate = ?, term_months = ?, start_date = ?, due_day = ?, repayment_type = ?, remaining_principal = ?, paid_months = ?, next_due_date = ?, monthly_payment = ?, settled_at = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		loan.Name, loan.AccountID.String(), loan.CategoryID, loan.Principal, loan.InterestRate, loan.TermMonths, loan.StartDate, loan.DueDay, string(loan.RepaymentType), loan.RemainingPrincipal, loan.PaidMonths, loan.NextDueDate, loan.MonthlyPayment, loan.SettledAt, formatTime(loan.UpdatedAt), loan.UserID, loan.ID.String(),
	)
}

// UpdateLoanState updates the schedule-derived columns, leaving contract terms
// and settlement untouched.
func (s *SQLStore) UpdateLoanState(ctx context.Context, loan *models.Loan) error {
	return s.execOne(ctx, "update loan state",
		`UPDATE loans SET remaining_principal = ?, paid_months = ?, next_due_date = ?, monthly_payment = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		loan.RemainingPrincipal, loan.PaidMonths, loan.NextDueDate, loan.MonthlyPayment, formatTime(loan.UpdatedAt), loan.UserID, loan.ID.String(),
	)
}

// DeleteLoan removes a loan. Its derived ledger entries are left in place.
func (s *SQLStore) DeleteLoan(ctx context.Context, userID string, id uuid.UUID) error {
	return s.execOne(ctx, "delete loan", `DELETE FROM loans WHERE user_id = ? AND id = ?`, userID, id.String())
}

// ListLoans retrieves all loans of a user in creation order.
func (s *SQLStore) ListLoans(ctx context.Context, userID string) ([]*models.Loan, error) {
	rows, err := s.query(ctx, `SELECT `+loanColumns+loanFrom+` WHERE l.user_id = ? ORDER BY l.created_at, l.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var repayment, created, updated string
	var category uuid.NullUUID
	var nextDue, settled sql.NullString

	err := row.Scan(&loan.ID, &loan.UserID, &loan.Name, &loan.AccountID, &category, &loan.Principal, &loan.InterestRate, &loan.TermMonths, &loan.StartDate, &loan.DueDay, &repayment, &loan.RemainingPrincipal, &loan.PaidMonths, &nextDue, &loan.MonthlyPayment, &settled, &created, &updated, &loan.AccountName, &loan.CategoryName)
	if err != nil {
		return nil, err
	}
	if category.Valid {
		id := category.UUID
		loan.CategoryID = &id
	}
	loan.RepaymentType = models.RepaymentType(repayment)
	loan.NextDueDate = nullableString(nextDue)
	loan.SettledAt = nullableString(settled)
	if loan.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if loan.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &loan, nil
}
