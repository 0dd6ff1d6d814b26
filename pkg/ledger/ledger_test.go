package ledger

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/lock"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/shopspring/decimal"
)

// MockStore is a simple in-memory implementation of the Storage interface for testing.
type MockStore struct {
	loans        map[uuid.UUID]models.Loan
	transactions map[uuid.UUID]models.Transaction
	accounts     map[uuid.UUID]models.Account
	categories   map[uuid.UUID]models.Category
	budgets      map[uuid.UUID]models.Budget
	goals        map[uuid.UUID]models.Goal

	loanUpdates int
}

func NewMockStore() *MockStore {
	return &MockStore{
		loans:        make(map[uuid.UUID]models.Loan),
		transactions: make(map[uuid.UUID]models.Transaction),
		accounts:     make(map[uuid.UUID]models.Account),
		categories:   make(map[uuid.UUID]models.Category),
		budgets:      make(map[uuid.UUID]models.Budget),
		goals:        make(map[uuid.UUID]models.Goal),
	}
}

func (m *MockStore) joined(loan models.Loan) *models.Loan {
	loan.AccountName = m.accounts[loan.AccountID].Name
	loan.CategoryName = ""
	if loan.CategoryID != nil {
		loan.CategoryName = m.categories[*loan.CategoryID].Name
	}
	return &loan
}

func (m *MockStore) CreateLoan(_ context.Context, loan *models.Loan) error {
	m.loans[loan.ID] = *loan
	return nil
}

func (m *MockStore) GetLoan(_ context.Context, userID string, id uuid.UUID) (*models.Loan, error) {
	loan, ok := m.loans[id]
	if !ok || loan.UserID != userID {
		return nil, store.ErrNotFound
	}
	return m.joined(loan), nil
}

func (m *MockStore) UpdateLoan(_ context.Context, loan *models.Loan) error {
	old, ok := m.loans[loan.ID]
	if !ok || old.UserID != loan.UserID {
		return store.ErrNotFound
	}
	m.loans[loan.ID] = *loan
	m.loanUpdates++
	return nil
}

func (m *MockStore) UpdateLoanState(_ context.Context, loan *models.Loan) error {
	stored, ok := m.loans[loan.ID]
	if !ok || stored.UserID != loan.UserID {
		return store.ErrNotFound
	}
	stored.RemainingPrincipal = loan.RemainingPrincipal
	stored.PaidMonths = loan.PaidMonths
	stored.NextDueDate = loan.NextDueDate
	stored.MonthlyPayment = loan.MonthlyPayment
	stored.UpdatedAt = loan.UpdatedAt
	m.loans[loan.ID] = stored
	m.loanUpdates++
	return nil
}

func (m *MockStore) DeleteLoan(_ context.Context, userID string, id uuid.UUID) error {
	loan, ok := m.loans[id]
	if !ok || loan.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.loans, id)
	return nil
}

func (m *MockStore) ListLoans(_ context.Context, userID string) ([]*models.Loan, error) {
	loans := []*models.Loan{}
	for _, l := range m.loans {
		if l.UserID == userID {
			loans = append(loans, m.joined(l))
		}
	}
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].CreatedAt.Before(loans[j].CreatedAt)
		}
		return loans[i].ID.String() < loans[j].ID.String()
	})
	return loans, nil
}

func (m *MockStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	m.transactions[tx.ID] = *tx
	return nil
}

func (m *MockStore) GetTransaction(_ context.Context, userID string, id uuid.UUID) (*models.Transaction, error) {
	tx, ok := m.transactions[id]
	if !ok || tx.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &tx, nil
}

func (m *MockStore) UpdateTransaction(_ context.Context, tx *models.Transaction) error {
	old, ok := m.transactions[tx.ID]
	if !ok || old.UserID != tx.UserID {
		return store.ErrNotFound
	}
	m.transactions[tx.ID] = *tx
	return nil
}

func (m *MockStore) DeleteTransaction(_ context.Context, userID string, id uuid.UUID) error {
	tx, ok := m.transactions[id]
	if !ok || tx.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.transactions, id)
	return nil
}

func matches(f store.TransactionFilter, tx models.Transaction) bool {
	switch {
	case tx.UserID != f.UserID:
		return false
	case f.DateFrom != "" && tx.Date < f.DateFrom:
		return false
	case f.DateTo != "" && tx.Date > f.DateTo:
		return false
	case f.MemoPrefix != "" && !strings.HasPrefix(tx.Memo, f.MemoPrefix):
		return false
	case f.AccountID != nil && tx.AccountID != *f.AccountID:
		return false
	case f.CategoryID != nil && (tx.CategoryID == nil || *tx.CategoryID != *f.CategoryID):
		return false
	case f.Type != "" && tx.Type != f.Type:
		return false
	}
	return true
}

func (m *MockStore) ListTransactions(_ context.Context, f store.TransactionFilter) ([]*models.Transaction, error) {
	txs := []*models.Transaction{}
	for _, tx := range m.transactions {
		if matches(f, tx) {
			tx := tx
			txs = append(txs, &tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date < txs[j].Date
		}
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.Before(txs[j].CreatedAt)
		}
		return txs[i].ID.String() < txs[j].ID.String()
	})
	return txs, nil
}

func (m *MockStore) DeleteTransactions(_ context.Context, f store.TransactionFilter) (int64, error) {
	var n int64
	for id, tx := range m.transactions {
		if matches(f, tx) {
			delete(m.transactions, id)
			n++
		}
	}
	return n, nil
}

func (m *MockStore) CreateAccount(_ context.Context, a *models.Account) error {
	m.accounts[a.ID] = *a
	return nil
}

func (m *MockStore) GetAccount(_ context.Context, userID string, id uuid.UUID) (*models.Account, error) {
	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (m *MockStore) ListAccounts(_ context.Context, userID string) ([]*models.Account, error) {
	out := []*models.Account{}
	for _, a := range m.accounts {
		if a.UserID == userID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStore) DeleteAccount(_ context.Context, userID string, id uuid.UUID) error {
	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *MockStore) CreateCategory(_ context.Context, c *models.Category) error {
	m.categories[c.ID] = *c
	return nil
}

func (m *MockStore) GetCategory(_ context.Context, userID string, id uuid.UUID) (*models.Category, error) {
	c, ok := m.categories[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *MockStore) ListCategories(_ context.Context, userID string) ([]*models.Category, error) {
	out := []*models.Category{}
	for _, c := range m.categories {
		if c.UserID == userID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStore) DeleteCategory(_ context.Context, userID string, id uuid.UUID) error {
	c, ok := m.categories[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *MockStore) UpsertBudget(_ context.Context, b *models.Budget) error {
	for id, old := range m.budgets {
		if old.UserID == b.UserID && old.CategoryID == b.CategoryID && old.Month == b.Month {
			b.ID = id
			b.CreatedAt = old.CreatedAt
		}
	}
	m.budgets[b.ID] = *b
	return nil
}

func (m *MockStore) ListBudgets(_ context.Context, userID, month string) ([]*models.Budget, error) {
	out := []*models.Budget{}
	for _, b := range m.budgets {
		if b.UserID == userID && b.Month == month {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *MockStore) DeleteBudget(_ context.Context, userID string, id uuid.UUID) error {
	b, ok := m.budgets[id]
	if !ok || b.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.budgets, id)
	return nil
}

func (m *MockStore) CreateGoal(_ context.Context, g *models.Goal) error {
	m.goals[g.ID] = *g
	return nil
}

func (m *MockStore) GetGoal(_ context.Context, userID string, id uuid.UUID) (*models.Goal, error) {
	g, ok := m.goals[id]
	if !ok || g.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &g, nil
}

func (m *MockStore) UpdateGoal(_ context.Context, g *models.Goal) error {
	old, ok := m.goals[g.ID]
	if !ok || old.UserID != g.UserID {
		return store.ErrNotFound
	}
	m.goals[g.ID] = *g
	return nil
}

func (m *MockStore) ListGoals(_ context.Context, userID string) ([]*models.Goal, error) {
	out := []*models.Goal{}
	for _, g := range m.goals {
		if g.UserID == userID {
			g := g
			out = append(out, &g)
		}
	}
	return out, nil
}

func (m *MockStore) DeleteGoal(_ context.Context, userID string, id uuid.UUID) error {
	g, ok := m.goals[id]
	if !ok || g.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.goals, id)
	return nil
}

// RunInTx restores every table when fn fails.
func (m *MockStore) RunInTx(_ context.Context, fn func(tx store.Storage) error) error {
	loans, txs := maps.Clone(m.loans), maps.Clone(m.transactions)
	accounts, categories := maps.Clone(m.accounts), maps.Clone(m.categories)
	budgets, goals := maps.Clone(m.budgets), maps.Clone(m.goals)
	if err := fn(m); err != nil {
		m.loans, m.transactions = loans, txs
		m.accounts, m.categories = accounts, categories
		m.budgets, m.goals = budgets, goals
		return err
	}
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) derived(userID string) []models.Transaction {
	out := []models.Transaction{}
	for _, tx := range m.transactions {
		if tx.UserID == userID && strings.HasPrefix(tx.Memo, DerivedMemoMarker) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

const testUser = "alice"

var ctx = context.Background()

// fixedClock pins "now" to midday of the given date.
func fixedClock(date string) func() time.Time {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	now := day.Add(12 * time.Hour)
	return func() time.Time { return now }
}

type fixture struct {
	ledger   *Ledger
	store    *MockStore
	account  *models.Account
	category *models.Category
}

func newFixture(t *testing.T, today string, opts ...Option) *fixture {
	t.Helper()
	s := NewMockStore()
	l := NewLedger(s, append([]Option{WithClock(fixedClock(today))}, opts...)...)

	account, err := l.CreateAccount(ctx, testUser, "Checking", "")
	if err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	category, err := l.CreateCategory(ctx, testUser, "Loans", "")
	if err != nil {
		t.Fatalf("Failed to create category: %v", err)
	}
	return &fixture{ledger: l, store: s, account: account, category: category}
}

// flatTerms is a zero-interest loan paying exactly 100 a month for a year.
func (f *fixture) flatTerms(start string) LoanTerms {
	return LoanTerms{
		Name:         "Car",
		AccountID:    f.account.ID,
		CategoryID:   &f.category.ID,
		Principal:    decimal.NewFromInt(1200),
		InterestRate: decimal.Zero,
		TermMonths:   12,
		StartDate:    start,
	}
}

func (f *fixture) createLoan(t *testing.T, terms LoanTerms) *models.Loan {
	t.Helper()
	loan, err := f.ledger.CreateLoan(ctx, testUser, terms)
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	return loan
}

func TestCreateLoan(t *testing.T) {
	f := newFixture(t, "2024-01-01")

	loan := f.createLoan(t, LoanTerms{
		Name:         "Mortgage",
		AccountID:    f.account.ID,
		Principal:    decimal.NewFromInt(1000000),
		InterestRate: decimal.NewFromInt(12),
		TermMonths:   12,
		StartDate:    "2024-01-20",
		DueDay:       5,
	})

	if loan.RepaymentType != models.RepaymentAmortized {
		t.Errorf("Expected repayment type amortized, got %s", loan.RepaymentType)
	}
	if !loan.MonthlyPayment.Equal(decimal.NewFromInt(88849)) {
		t.Errorf("Expected monthly payment 88849, got %s", loan.MonthlyPayment)
	}
	if !loan.RemainingPrincipal.Equal(loan.Principal) {
		t.Errorf("Expected remaining principal %s, got %s", loan.Principal, loan.RemainingPrincipal)
	}
	if loan.NextDueDate == nil || *loan.NextDueDate != "2024-02-05" {
		t.Errorf("Expected next due date 2024-02-05, got %v", loan.NextDueDate)
	}
	if loan.PaidMonths != 0 {
		t.Errorf("Expected 0 paid months, got %d", loan.PaidMonths)
	}
	if loan.AccountName != "Checking" {
		t.Errorf("Expected account name Checking, got %q", loan.AccountName)
	}
	if len(f.store.transactions) != 0 {
		t.Errorf("Expected no transactions on creation, got %d", len(f.store.transactions))
	}
}

func TestCreateLoanDefaultsDueDayToStartDay(t *testing.T) {
	f := newFixture(t, "2024-01-01")

	loan := f.createLoan(t, f.flatTerms("2024-01-10"))
	if loan.DueDay != 10 {
		t.Errorf("Expected due day 10, got %d", loan.DueDay)
	}
	if *loan.NextDueDate != "2024-01-10" {
		t.Errorf("Expected next due date 2024-01-10, got %s", *loan.NextDueDate)
	}

	terms := f.flatTerms("2024-01-31")
	loan = f.createLoan(t, terms)
	if loan.DueDay != 28 {
		t.Errorf("Expected due day clamped to 28, got %d", loan.DueDay)
	}
	if *loan.NextDueDate != "2024-02-28" {
		t.Errorf("Expected next due date 2024-02-28, got %s", *loan.NextDueDate)
	}
}

func TestCreateLoanValidation(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	missing := uuid.New()

	cases := map[string]func(*LoanTerms){
		"missing name":      func(lt *LoanTerms) { lt.Name = "  " },
		"zero principal":    func(lt *LoanTerms) { lt.Principal = decimal.Zero },
		"negative rate":     func(lt *LoanTerms) { lt.InterestRate = decimal.NewFromInt(-1) },
		"zero term":         func(lt *LoanTerms) { lt.TermMonths = 0 },
		"bad start date":    func(lt *LoanTerms) { lt.StartDate = "2024-13-01" },
		"unknown repayment": func(lt *LoanTerms) { lt.RepaymentType = "balloon" },
		"unknown account":   func(lt *LoanTerms) { lt.AccountID = uuid.New() },
		"unknown category":  func(lt *LoanTerms) { lt.CategoryID = &missing },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			terms := f.flatTerms("2024-01-10")
			mutate(&terms)
			_, err := f.ledger.CreateLoan(ctx, testUser, terms)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
	if len(f.store.loans) != 0 {
		t.Errorf("Expected no loans stored, got %d", len(f.store.loans))
	}
}

func TestGetLoanNotFound(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	loan := f.createLoan(t, f.flatTerms("2024-01-10"))

	if _, err := f.ledger.GetLoan(ctx, testUser, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := f.ledger.GetLoan(ctx, "bob", loan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected another user's loan to be not found, got %v", err)
	}
	if err := f.ledger.DeleteLoan(ctx, testUser, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found on delete, got %v", err)
	}
}

func TestRegenerateMaterializesElapsedPeriods(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	created := f.createLoan(t, f.flatTerms("2024-01-10"))

	loan, err := f.ledger.GetLoan(ctx, testUser, created.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}

	entries := f.store.derived(testUser)
	if len(entries) != 6 {
		t.Fatalf("Expected 6 derived entries, got %d", len(entries))
	}
	for i, tx := range entries {
		if !tx.Amount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("Expected entry %d amount 100, got %s", i, tx.Amount)
		}
		if tx.Type != models.TransactionTypeExpense {
			t.Errorf("Expected entry %d to be an expense, got %s", i, tx.Type)
		}
		if tx.AccountID != f.account.ID || tx.CategoryID == nil || *tx.CategoryID != f.category.ID {
			t.Errorf("Expected entry %d to carry the loan's account and category", i)
		}
	}
	if entries[0].Date != "2024-01-10" || entries[5].Date != "2024-06-10" {
		t.Errorf("Expected entries from 2024-01-10 to 2024-06-10, got %s to %s", entries[0].Date, entries[5].Date)
	}
	if entries[0].Memo != "[loan] Car 1/12" {
		t.Errorf("Expected memo %q, got %q", "[loan] Car 1/12", entries[0].Memo)
	}

	if loan.PaidMonths != 6 {
		t.Errorf("Expected 6 paid months, got %d", loan.PaidMonths)
	}
	if !loan.RemainingPrincipal.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected remaining 600, got %s", loan.RemainingPrincipal)
	}
	if loan.NextDueDate == nil || *loan.NextDueDate != "2024-07-10" {
		t.Errorf("Expected next due date 2024-07-10, got %v", loan.NextDueDate)
	}
}

func TestRegenerateIsIdempotent(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	f.createLoan(t, f.flatTerms("2024-01-10"))

	if err := f.ledger.Regenerate(ctx, testUser); err != nil {
		t.Fatalf("Failed to regenerate: %v", err)
	}
	first := f.store.derived(testUser)
	updates := f.store.loanUpdates

	for i := 0; i < 3; i++ {
		if err := f.ledger.Regenerate(ctx, testUser); err != nil {
			t.Fatalf("Failed to regenerate: %v", err)
		}
	}
	again := f.store.derived(testUser)
	if len(again) != len(first) {
		t.Fatalf("Expected %d derived entries after rerun, got %d", len(first), len(again))
	}
	for i := range first {
		if first[i].Date != again[i].Date || !first[i].Amount.Equal(again[i].Amount) || first[i].Memo != again[i].Memo {
			t.Errorf("Entry %d changed between runs: %+v vs %+v", i, first[i], again[i])
		}
	}
	if f.store.loanUpdates != updates {
		t.Errorf("Expected no loan writes when nothing changed, got %d more", f.store.loanUpdates-updates)
	}
}

func TestRegenerateKeepsManualEntries(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	f.createLoan(t, f.flatTerms("2024-01-10"))

	manual, err := f.ledger.CreateTransaction(ctx, testUser, TransactionInput{
		AccountID: f.account.ID,
		Amount:    decimal.NewFromInt(42),
		Date:      "2024-03-10",
		Memo:      "loan shark lunch",
	})
	if err != nil {
		t.Fatalf("Failed to create transaction: %v", err)
	}

	txs, err := f.ledger.ListTransactions(ctx, testUser, TransactionQuery{})
	if err != nil {
		t.Fatalf("Failed to list transactions: %v", err)
	}
	if len(txs) != 7 {
		t.Errorf("Expected 6 derived plus 1 manual transactions, got %d", len(txs))
	}
	if _, ok := f.store.transactions[manual.ID]; !ok {
		t.Error("Manual transaction was purged")
	}
}

func TestRegenerateBeforeFirstDueDate(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	created := f.createLoan(t, f.flatTerms("2024-06-20"))

	loan, err := f.ledger.GetLoan(ctx, testUser, created.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if n := len(f.store.derived(testUser)); n != 0 {
		t.Errorf("Expected no derived entries, got %d", n)
	}
	if loan.PaidMonths != 0 || *loan.NextDueDate != "2024-06-20" {
		t.Errorf("Expected untouched loan, got paid %d next %v", loan.PaidMonths, loan.NextDueDate)
	}
}

func TestRegenerateOnDueDate(t *testing.T) {
	f := newFixture(t, "2024-01-10")
	f.createLoan(t, f.flatTerms("2024-01-10"))

	if err := f.ledger.Regenerate(ctx, testUser); err != nil {
		t.Fatalf("Failed to regenerate: %v", err)
	}
	if n := len(f.store.derived(testUser)); n != 1 {
		t.Errorf("Expected the period due today to be written, got %d entries", n)
	}
}

func TestRegenerateAfterTermCompletes(t *testing.T) {
	f := newFixture(t, "2026-01-01", WithPurgeScope(config.PurgeAll))
	created := f.createLoan(t, f.flatTerms("2024-01-10"))

	loan, err := f.ledger.GetLoan(ctx, testUser, created.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if n := len(f.store.derived(testUser)); n != 12 {
		t.Errorf("Expected 12 derived entries, got %d", n)
	}
	if loan.PaidMonths != 12 || !loan.RemainingPrincipal.IsZero() || loan.NextDueDate != nil {
		t.Errorf("Expected fully paid loan, got paid %d remaining %s next %v", loan.PaidMonths, loan.RemainingPrincipal, loan.NextDueDate)
	}
	if !loan.MonthlyPayment.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected monthly payment to keep the last installment, got %s", loan.MonthlyPayment)
	}
}

func TestInterestOnlyLoanKeepsBalance(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	terms := f.flatTerms("2024-01-10")
	terms.Principal = decimal.NewFromInt(1200000)
	terms.InterestRate = decimal.NewFromInt(12)
	terms.RepaymentType = models.RepaymentInterestOnly
	created := f.createLoan(t, terms)

	loan, err := f.ledger.GetLoan(ctx, testUser, created.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	for _, tx := range f.store.derived(testUser) {
		if !tx.Amount.Equal(decimal.NewFromInt(12000)) {
			t.Errorf("Expected interest-only payment 12000, got %s", tx.Amount)
		}
	}
	if !loan.RemainingPrincipal.Equal(terms.Principal) {
		t.Errorf("Expected balance to stay %s, got %s", terms.Principal, loan.RemainingPrincipal)
	}
	if loan.PaidMonths != 6 {
		t.Errorf("Expected 6 paid months, got %d", loan.PaidMonths)
	}
}

func TestSettleLoan(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	created := f.createLoan(t, f.flatTerms("2024-01-10"))

	if _, err := f.ledger.SettleLoan(ctx, testUser, created.ID, ""); !errors.Is(err, ErrConsistency) {
		t.Errorf("Expected consistency error without a date, got %v", err)
	}
	if _, err := f.ledger.SettleLoan(ctx, testUser, created.ID, "March"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for a bad date, got %v", err)
	}

	settled, err := f.ledger.SettleLoan(ctx, testUser, created.ID, "2024-03-01")
	if err != nil {
		t.Fatalf("Failed to settle loan: %v", err)
	}
	if settled.PaidMonths != 12 || !settled.RemainingPrincipal.IsZero() || settled.NextDueDate != nil {
		t.Errorf("Expected settled loan to be fully paid, got paid %d remaining %s", settled.PaidMonths, settled.RemainingPrincipal)
	}

	loan, err := f.ledger.GetLoan(ctx, testUser, created.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	entries := f.store.derived(testUser)
	if len(entries) != 2 {
		t.Fatalf("Expected entries only up to the settlement date, got %d", len(entries))
	}
	if entries[1].Date != "2024-02-10" {
		t.Errorf("Expected last entry 2024-02-10, got %s", entries[1].Date)
	}
	if loan.PaidMonths != 12 || !loan.RemainingPrincipal.IsZero() || loan.NextDueDate != nil {
		t.Errorf("Expected settlement to survive regeneration, got paid %d remaining %s", loan.PaidMonths, loan.RemainingPrincipal)
	}
}

func TestUpdateLoanRebasesBalance(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	created := f.createLoan(t, f.flatTerms("2024-01-10"))
	if err := f.ledger.Regenerate(ctx, testUser); err != nil {
		t.Fatalf("Failed to regenerate: %v", err)
	}

	principal := decimal.NewFromInt(2400)
	loan, err := f.ledger.UpdateLoan(ctx, testUser, created.ID, LoanPatch{Principal: &principal})
	if err != nil {
		t.Fatalf("Failed to update loan: %v", err)
	}
	if !loan.RemainingPrincipal.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("Expected rebased remaining 1200, got %s", loan.RemainingPrincipal)
	}
	if loan.PaidMonths != 6 {
		t.Errorf("Expected paid months kept at 6, got %d", loan.PaidMonths)
	}
	if *loan.NextDueDate != "2024-07-10" {
		t.Errorf("Expected next due date 2024-07-10, got %s", *loan.NextDueDate)
	}
	if !loan.MonthlyPayment.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected monthly payment 200, got %s", loan.MonthlyPayment)
	}

	name := "Truck"
	loan, err = f.ledger.UpdateLoan(ctx, testUser, created.ID, LoanPatch{Name: &name})
	if err != nil {
		t.Fatalf("Failed to rename loan: %v", err)
	}
	if !loan.RemainingPrincipal.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("Expected a rename to keep the balance, got %s", loan.RemainingPrincipal)
	}

	bad := 0
	if _, err := f.ledger.UpdateLoan(ctx, testUser, created.ID, LoanPatch{TermMonths: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestDeleteLoanPurgesOnNextRun(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	created := f.createLoan(t, f.flatTerms("2024-01-10"))
	if err := f.ledger.Regenerate(ctx, testUser); err != nil {
		t.Fatalf("Failed to regenerate: %v", err)
	}

	if err := f.ledger.DeleteLoan(ctx, testUser, created.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if n := len(f.store.derived(testUser)); n != 6 {
		t.Errorf("Expected entries to remain until the next run, got %d", n)
	}
	loans, err := f.ledger.ListLoans(ctx, testUser)
	if err != nil {
		t.Fatalf("Failed to list loans: %v", err)
	}
	if len(loans) != 0 {
		t.Errorf("Expected no loans, got %d", len(loans))
	}
	if n := len(f.store.derived(testUser)); n != 0 {
		t.Errorf("Expected entries purged, got %d", n)
	}
}

func TestDefaultPurgeScopeKeepsPriorYears(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	f.createLoan(t, f.flatTerms("2023-11-10"))

	old := models.Transaction{
		ID:        uuid.New(),
		UserID:    testUser,
		AccountID: f.account.ID,
		Type:      models.TransactionTypeExpense,
		Amount:    decimal.NewFromInt(100),
		Date:      "2023-11-10",
		Memo:      DerivedMemo("Car", 1, 12),
	}
	f.store.transactions[old.ID] = old

	for i := 0; i < 2; i++ {
		if err := f.ledger.Regenerate(ctx, testUser); err != nil {
			t.Fatalf("Failed to regenerate: %v", err)
		}
	}

	entries := f.store.derived(testUser)
	if len(entries) != 7 {
		t.Fatalf("Expected 1 kept entry from 2023 plus 6 from 2024, got %d", len(entries))
	}
	if entries[0].ID != old.ID {
		t.Error("Expected the entry outside the current year to be kept")
	}
	for _, tx := range entries[1:] {
		if !strings.HasPrefix(tx.Date, "2024-") {
			t.Errorf("Expected only 2024 entries to be written, got %s", tx.Date)
		}
	}
}

func TestRegenerateIsolatesUsers(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	f.createLoan(t, f.flatTerms("2024-01-10"))

	loans, err := f.ledger.ListLoans(ctx, "bob")
	if err != nil {
		t.Fatalf("Failed to list loans: %v", err)
	}
	if loans == nil || len(loans) != 0 {
		t.Errorf("Expected an empty list for another user, got %v", loans)
	}
	if n := len(f.store.derived(testUser)); n != 0 {
		t.Errorf("Expected no entries written for alice by bob's read, got %d", n)
	}
}

func TestProjectSchedule(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	created := f.createLoan(t, f.flatTerms("2024-01-10"))

	periods, err := f.ledger.ProjectSchedule(ctx, testUser, created.ID)
	if err != nil {
		t.Fatalf("Failed to project schedule: %v", err)
	}
	if len(periods) != 12 {
		t.Fatalf("Expected 12 periods, got %d", len(periods))
	}
	if periods[11].DueDate != "2024-12-10" || !periods[11].Remaining.IsZero() {
		t.Errorf("Expected last period 2024-12-10 with nothing left, got %s %s", periods[11].DueDate, periods[11].Remaining)
	}
	if len(f.store.transactions) != 0 {
		t.Error("Expected projection to write nothing")
	}
}

func TestTransactionValidation(t *testing.T) {
	f := newFixture(t, "2024-06-15")

	_, err := f.ledger.CreateTransaction(ctx, testUser, TransactionInput{AccountID: f.account.ID, Amount: decimal.Zero, Date: "2024-06-01"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for zero amount, got %v", err)
	}
	_, err = f.ledger.CreateTransaction(ctx, testUser, TransactionInput{AccountID: f.account.ID, Amount: decimal.NewFromInt(1), Date: "yesterday"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for bad date, got %v", err)
	}
	_, err = f.ledger.ListTransactions(ctx, testUser, TransactionQuery{Year: 2024, Month: 13})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for month 13, got %v", err)
	}
	if _, err := f.ledger.GetTransaction(ctx, testUser, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestMonthlySummaryAndBudgets(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	f.createLoan(t, f.flatTerms("2024-01-10"))

	inputs := []TransactionInput{
		{AccountID: f.account.ID, Type: models.TransactionTypeIncome, Amount: decimal.NewFromInt(5000), Date: "2024-06-01", Memo: "salary"},
		{AccountID: f.account.ID, Amount: decimal.NewFromInt(50), Date: "2024-06-03", Memo: "coffee"},
		{AccountID: f.account.ID, Amount: decimal.NewFromInt(70), Date: "2024-05-03", Memo: "books"},
	}
	for _, in := range inputs {
		if _, err := f.ledger.CreateTransaction(ctx, testUser, in); err != nil {
			t.Fatalf("Failed to create transaction: %v", err)
		}
	}

	summary, err := f.ledger.MonthlySummary(ctx, testUser, 2024, 6)
	if err != nil {
		t.Fatalf("Failed to summarize month: %v", err)
	}
	if !summary.Income.Equal(decimal.NewFromInt(5000)) || !summary.Expense.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected income 5000 and expense 150, got %s and %s", summary.Income, summary.Expense)
	}
	if !summary.Net.Equal(decimal.NewFromInt(4850)) {
		t.Errorf("Expected net 4850, got %s", summary.Net)
	}
	if len(summary.ByCategory) != 2 || summary.ByCategory[0].CategoryName != "Loans" || summary.ByCategory[1].CategoryName != uncategorized {
		t.Errorf("Expected Loans then Uncategorized, got %+v", summary.ByCategory)
	}

	if _, err := f.ledger.SetBudget(ctx, testUser, f.category.ID, "2024-06", decimal.NewFromInt(250)); err != nil {
		t.Fatalf("Failed to set budget: %v", err)
	}
	if _, err := f.ledger.SetBudget(ctx, testUser, f.category.ID, "2024-06", decimal.NewFromInt(300)); err != nil {
		t.Fatalf("Failed to replace budget: %v", err)
	}
	budgets, err := f.ledger.ListBudgets(ctx, testUser, "2024-06")
	if err != nil {
		t.Fatalf("Failed to list budgets: %v", err)
	}
	if len(budgets) != 1 {
		t.Fatalf("Expected 1 budget, got %d", len(budgets))
	}
	b := budgets[0]
	if !b.Limit.Equal(decimal.NewFromInt(300)) || !b.Spent.Equal(decimal.NewFromInt(100)) || !b.Remaining.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected limit 300 spent 100 remaining 200, got %s %s %s", b.Limit, b.Spent, b.Remaining)
	}
	if b.CategoryName != "Loans" {
		t.Errorf("Expected category name Loans, got %q", b.CategoryName)
	}

	if _, err := f.ledger.SetBudget(ctx, testUser, f.category.ID, "June", decimal.NewFromInt(1)); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for bad month, got %v", err)
	}
	if _, err := f.ledger.SetBudget(ctx, testUser, uuid.New(), "2024-06", decimal.NewFromInt(1)); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for unknown category, got %v", err)
	}
}

func TestYearlySummary(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	f.createLoan(t, f.flatTerms("2024-01-10"))

	summary, err := f.ledger.YearlySummary(ctx, testUser, 2024)
	if err != nil {
		t.Fatalf("Failed to summarize year: %v", err)
	}
	if len(summary.Months) != 12 {
		t.Fatalf("Expected 12 months, got %d", len(summary.Months))
	}
	if !summary.Months[0].Expense.Equal(decimal.NewFromInt(100)) || !summary.Months[6].Expense.IsZero() {
		t.Errorf("Expected January 100 and July 0, got %s and %s", summary.Months[0].Expense, summary.Months[6].Expense)
	}
	if !summary.Expense.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected yearly expense 600, got %s", summary.Expense)
	}
	if !summary.Net.Equal(decimal.NewFromInt(-600)) {
		t.Errorf("Expected net -600, got %s", summary.Net)
	}
}

func TestGoals(t *testing.T) {
	f := newFixture(t, "2024-06-15")

	goal, err := f.ledger.CreateGoal(ctx, testUser, "Holiday", decimal.NewFromInt(2000), nil)
	if err != nil {
		t.Fatalf("Failed to create goal: %v", err)
	}
	goal, err = f.ledger.Contribute(ctx, testUser, goal.ID, decimal.NewFromInt(250))
	if err != nil {
		t.Fatalf("Failed to contribute: %v", err)
	}
	if !goal.Saved.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected saved 250, got %s", goal.Saved)
	}
	if _, err := f.ledger.Contribute(ctx, testUser, goal.ID, decimal.NewFromInt(-5)); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if _, err := f.ledger.Contribute(ctx, testUser, uuid.New(), decimal.NewFromInt(5)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	bad := "soon"
	if _, err := f.ledger.CreateGoal(ctx, testUser, "Car", decimal.NewFromInt(10), &bad); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for bad deadline, got %v", err)
	}
}

// hookStore runs afterList once, right after the first ListLoans call.
type hookStore struct {
	*MockStore
	afterList func()
}

func (h *hookStore) ListLoans(ctx context.Context, userID string) ([]*models.Loan, error) {
	loans, err := h.MockStore.ListLoans(ctx, userID)
	if h.afterList != nil {
		fn := h.afterList
		h.afterList = nil
		fn()
	}
	return loans, err
}

func (h *hookStore) RunInTx(ctx context.Context, fn func(tx store.Storage) error) error {
	return h.MockStore.RunInTx(ctx, func(store.Storage) error { return fn(h) })
}

// failingStore rejects derived entries whose memo contains failOn.
type failingStore struct {
	*MockStore
	failOn string
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if f.failOn != "" && strings.Contains(tx.Memo, f.failOn) {
		return errDiskFull
	}
	return f.MockStore.CreateTransaction(ctx, tx)
}

func (f *failingStore) RunInTx(ctx context.Context, fn func(tx store.Storage) error) error {
	return f.MockStore.RunInTx(ctx, func(store.Storage) error { return fn(f) })
}

func TestRegenerateKeepsConcurrentContractEdits(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	created := f.createLoan(t, f.flatTerms("2024-01-10"))

	settled := "2024-06-10"
	hooked := &hookStore{MockStore: f.store}
	hooked.afterList = func() {
		// Another writer commits a settlement and rename after the snapshot is read.
		loan := f.store.loans[created.ID]
		loan.SettledAt = &settled
		loan.Name = "Paid off car"
		f.store.loans[created.ID] = loan
	}
	f.ledger = NewLedger(hooked, WithClock(fixedClock("2024-06-15")))

	if err := f.ledger.Regenerate(ctx, testUser); err != nil {
		t.Fatalf("Failed to regenerate: %v", err)
	}
	stored := f.store.loans[created.ID]
	if stored.SettledAt == nil || *stored.SettledAt != settled {
		t.Fatalf("Expected settlement to survive regeneration, got %v", stored.SettledAt)
	}
	if stored.Name != "Paid off car" {
		t.Errorf("Expected name edit to survive regeneration, got %q", stored.Name)
	}

	loan, err := f.ledger.GetLoan(ctx, testUser, created.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if loan.PaidMonths != 12 || !loan.RemainingPrincipal.IsZero() || loan.NextDueDate != nil {
		t.Errorf("Expected the next run to apply the settlement, got paid %d remaining %s", loan.PaidMonths, loan.RemainingPrincipal)
	}
}

func TestContractEditsWaitForRegenerationLock(t *testing.T) {
	locker := lock.NewLocalLocker()
	f := newFixture(t, "2024-06-15", WithLocker(locker))
	created := f.createLoan(t, f.flatTerms("2024-01-10"))

	release, err := locker.Lock(ctx, "regenerate:"+testUser)
	if err != nil {
		t.Fatalf("Failed to take lock: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := f.ledger.SettleLoan(short, testUser, created.ID, "2024-03-01"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected settlement to wait for the lock, got %v", err)
	}
	name := "Truck"
	if _, err := f.ledger.UpdateLoan(short, testUser, created.ID, LoanPatch{Name: &name}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected edit to wait for the lock, got %v", err)
	}
	if loan := f.store.loans[created.ID]; loan.SettledAt != nil || loan.Name != "Car" {
		t.Errorf("Expected loan untouched while locked, got settled %v name %q", loan.SettledAt, loan.Name)
	}

	release()
	if _, err := f.ledger.SettleLoan(ctx, testUser, created.ID, "2024-03-01"); err != nil {
		t.Errorf("Failed to settle after release: %v", err)
	}
}

func TestRegenerateRollsBackOnStorageFailure(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	car := f.createLoan(t, f.flatTerms("2024-01-10"))
	boatTerms := f.flatTerms("2024-01-20")
	boatTerms.Name = "Boat"
	f.createLoan(t, boatTerms)

	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	failing := &failingStore{MockStore: f.store}
	f.ledger = NewLedger(failing, WithClock(func() time.Time { return now }))

	if err := f.ledger.Regenerate(ctx, testUser); err != nil {
		t.Fatalf("Failed to regenerate: %v", err)
	}
	before := f.store.derived(testUser)
	carBefore := f.store.loans[car.ID]

	now = now.AddDate(0, 2, 0)
	failing.failOn = "Boat"
	if err := f.ledger.Regenerate(ctx, testUser); !errors.Is(err, errDiskFull) {
		t.Fatalf("Expected the storage error to propagate, got %v", err)
	}

	after := f.store.derived(testUser)
	if len(after) != len(before) {
		t.Fatalf("Expected %d derived entries after rollback, got %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Errorf("Entry %d replaced despite rollback: %s vs %s", i, before[i].ID, after[i].ID)
		}
	}
	carAfter := f.store.loans[car.ID]
	if carAfter.PaidMonths != carBefore.PaidMonths || !carAfter.RemainingPrincipal.Equal(carBefore.RemainingPrincipal) {
		t.Errorf("Expected Car state unchanged, got paid %d remaining %s", carAfter.PaidMonths, carAfter.RemainingPrincipal)
	}
}

func TestRegenerateSkipsLoanWithBadDates(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	f.createLoan(t, f.flatTerms("2024-01-10"))
	brokenTerms := f.flatTerms("2024-01-10")
	brokenTerms.Name = "Broken"
	broken := f.createLoan(t, brokenTerms)

	stored := f.store.loans[broken.ID]
	stored.StartDate = "10/01/2024"
	f.store.loans[broken.ID] = stored

	loans, err := f.ledger.ListLoans(ctx, testUser)
	if err != nil {
		t.Fatalf("Expected the unreadable loan to be skipped, got %v", err)
	}
	if len(loans) != 2 {
		t.Errorf("Expected both loans listed, got %d", len(loans))
	}
	entries := f.store.derived(testUser)
	if len(entries) != 6 {
		t.Fatalf("Expected 6 entries for the readable loan, got %d", len(entries))
	}
	for _, tx := range entries {
		if strings.Contains(tx.Memo, "Broken") {
			t.Errorf("Expected no entries for the unreadable loan, got %q", tx.Memo)
		}
	}
}

func TestUpdateLoanClearsCategory(t *testing.T) {
	f := newFixture(t, "2024-06-15")
	created := f.createLoan(t, f.flatTerms("2024-01-10"))

	if _, err := f.ledger.UpdateLoan(ctx, testUser, created.ID, LoanPatch{CategoryID: &f.category.ID, ClearCategory: true}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for conflicting category fields, got %v", err)
	}

	loan, err := f.ledger.UpdateLoan(ctx, testUser, created.ID, LoanPatch{ClearCategory: true})
	if err != nil {
		t.Fatalf("Failed to clear category: %v", err)
	}
	if loan.CategoryID != nil || loan.CategoryName != "" {
		t.Errorf("Expected no category, got %v %q", loan.CategoryID, loan.CategoryName)
	}

	if err := f.ledger.Regenerate(ctx, testUser); err != nil {
		t.Fatalf("Failed to regenerate: %v", err)
	}
	for _, tx := range f.store.derived(testUser) {
		if tx.CategoryID != nil {
			t.Errorf("Expected derived entries without a category, got %s", *tx.CategoryID)
		}
	}
}
