package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
)

// CreateAccount inserts a new account.
func (s *SQLStore) CreateAccount(ctx context.Context, account *models.Account) error {
	_, err := s.exec(ctx,
		`INSERT INTO accounts (id, user_id, name, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		account.ID.String(), account.UserID, account.Name, account.Kind, formatTime(account.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by its ID.
func (s *SQLStore) GetAccount(ctx context.Context, userID string, id uuid.UUID) (*models.Account, error) {
	row := s.queryRow(ctx, `SELECT id, user_id, name, kind, created_at FROM accounts WHERE user_id = ? AND id = ?`, userID, id.String())
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListAccounts retrieves all accounts of a user ordered by name.
func (s *SQLStore) ListAccounts(ctx context.Context, userID string) ([]*models.Account, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, name, kind, created_at FROM accounts WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account.
func (s *SQLStore) DeleteAccount(ctx context.Context, userID string, id uuid.UUID) error {
	return s.execOne(ctx, "delete account", `DELETE FROM accounts WHERE user_id = ? AND id = ?`, userID, id.String())
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var created string
	if err := row.Scan(&account.ID, &account.UserID, &account.Name, &account.Kind, &created); err != nil {
		return nil, err
	}
	var err error
	if account.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateCategory inserts a new category.
func (s *SQLStore) CreateCategory(ctx context.Context, category *models.Category) error {
	_, err := s.exec(ctx,
		`INSERT INTO categories (id, user_id, name, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		category.ID.String(), category.UserID, category.Name, string(category.Kind), formatTime(category.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by its ID.
func (s *SQLStore) GetCategory(ctx context.Context, userID string, id uuid.UUID) (*models.Category, error) {
	row := s.queryRow(ctx, `SELECT id, user_id, name, kind, created_at FROM categories WHERE user_id = ? AND id = ?`, userID, id.String())
	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return category, nil
}

// ListCategories retrieves all categories of a user ordered by name.
func (s *SQLStore) ListCategories(ctx context.Context, userID string) ([]*models.Category, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, name, kind, created_at FROM categories WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category.
func (s *SQLStore) DeleteCategory(ctx context.Context, userID string, id uuid.UUID) error {
	return s.execOne(ctx, "delete category", `DELETE FROM categories WHERE user_id = ? AND id = ?`, userID, id.String())
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var category models.Category
	var kind, created string
	if err := row.Scan(&category.ID, &category.UserID, &category.Name, &kind, &created); err != nil {
		return nil, err
	}
	category.Kind = models.TransactionType(kind)
	var err error
	if category.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &category, nil
}
