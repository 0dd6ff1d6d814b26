package ledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/schedule"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/shopspring/decimal"
)

const uncategorized = "Uncategorized"

// MonthlySummary regenerates the ledger and totals one month, with expenses
// broken down by category, largest first.
func (l *Ledger) MonthlySummary(ctx context.Context, userID string, year, month int) (*models.MonthlySummary, error) {
	from, to, err := monthRange(year, month)
	if err != nil {
		return nil, err
	}
	if err := l.Regenerate(ctx, userID); err != nil {
		return nil, err
	}
	txs, err := l.storage.ListTransactions(ctx, store.TransactionFilter{UserID: userID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}
	names, err := l.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &models.MonthlySummary{
		Year:       year,
		Month:      month,
		Income:     decimal.Zero,
		Expense:    decimal.Zero,
		ByCategory: []models.CategoryTotal{},
	}
	byCategory := make(map[uuid.UUID]decimal.Decimal)
	var untagged decimal.Decimal
	hasUntagged := false
	for _, tx := range txs {
		if tx.Type == models.TransactionTypeIncome {
			summary.Income = summary.Income.Add(tx.Amount)
			continue
		}
		summary.Expense = summary.Expense.Add(tx.Amount)
		if tx.CategoryID == nil {
			untagged = untagged.Add(tx.Amount)
			hasUntagged = true
			continue
		}
		byCategory[*tx.CategoryID] = byCategory[*tx.CategoryID].Add(tx.Amount)
	}
	summary.Net = summary.Income.Sub(summary.Expense)

	for id, amount := range byCategory {
		name, ok := names[id]
		if !ok {
			name = uncategorized
		}
		summary.ByCategory = append(summary.ByCategory, models.CategoryTotal{CategoryID: &id, CategoryName: name, Amount: amount})
	}
	if hasUntagged {
		summary.ByCategory = append(summary.ByCategory, models.CategoryTotal{CategoryName: uncategorized, Amount: untagged})
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		a, b := summary.ByCategory[i], summary.ByCategory[j]
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		return a.CategoryName < b.CategoryName
	})
	return summary, nil
}

// YearlySummary regenerates the ledger and totals each month of year.
func (l *Ledger) YearlySummary(ctx context.Context, userID string, year int) (*models.YearlySummary, error) {
	from, to, err := yearRange(year)
	if err != nil {
		return nil, err
	}
	if err := l.Regenerate(ctx, userID); err != nil {
		return nil, err
	}
	txs, err := l.storage.ListTransactions(ctx, store.TransactionFilter{UserID: userID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}

	summary := &models.YearlySummary{Year: year, Months: make([]models.MonthTotal, 12)}
	for i := range summary.Months {
		summary.Months[i] = models.MonthTotal{Month: i + 1, Income: decimal.Zero, Expense: decimal.Zero}
	}
	for _, tx := range txs {
		date, err := schedule.ParseDate(tx.Date)
		if err != nil {
			continue
		}
		m := &summary.Months[date.Month()-1]
		if tx.Type == models.TransactionTypeIncome {
			m.Income = m.Income.Add(tx.Amount)
		} else {
			m.Expense = m.Expense.Add(tx.Amount)
		}
	}
	summary.Income, summary.Expense = decimal.Zero, decimal.Zero
	for _, m := range summary.Months {
		summary.Income = summary.Income.Add(m.Income)
		summary.Expense = summary.Expense.Add(m.Expense)
	}
	summary.Net = summary.Income.Sub(summary.Expense)
	return summary, nil
}
