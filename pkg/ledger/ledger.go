package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/lock"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/schedule"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Ledger handles the business logic for loans and the ledger they feed.
type Ledger struct {
	storage    store.Storage
	locker     lock.Locker
	location   *time.Location
	purgeScope config.PurgeScope
	clock      func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithLocker serializes regeneration through locker instead of an
// in-process lock.
func WithLocker(locker lock.Locker) Option {
	return func(l *Ledger) { l.locker = locker }
}

// WithLocation sets the time zone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.location = loc }
}

// WithPurgeScope sets which derived entries a regeneration replaces.
func WithPurgeScope(scope config.PurgeScope) Option {
	return func(l *Ledger) { l.purgeScope = scope }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage:    s,
		locker:     lock.NewLocalLocker(),
		location:   time.UTC,
		purgeScope: config.PurgeYear,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) today() time.Time {
	return schedule.Today(l.clock(), l.location)
}

// lockUser serializes regeneration and contract edits of one user's loans.
func (l *Ledger) lockUser(ctx context.Context, userID string) (func(), error) {
	release, err := l.locker.Lock(ctx, "regenerate:"+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock loans of user %s: %w", userID, err)
	}
	return release, nil
}

// LoanTerms are the user-supplied fields of a new loan.
type LoanTerms struct {
	Name          string               `json:"name"`
	AccountID     uuid.UUID            `json:"account_id"`
	CategoryID    *uuid.UUID           `json:"category_id,omitempty"`
	Principal     decimal.Decimal      `json:"principal"`
	InterestRate  decimal.Decimal      `json:"interest_rate"`
	TermMonths    int                  `json:"term_months"`
	StartDate     string               `json:"start_date"`
	DueDay        int                  `json:"due_day"`
	RepaymentType models.RepaymentType `json:"repayment_type"`
}

// LoanPatch carries the contract fields an edit changes. Nil fields are kept;
// ClearCategory removes the category.
type LoanPatch struct {
	Name          *string               `json:"name,omitempty"`
	AccountID     *uuid.UUID            `json:"account_id,omitempty"`
	CategoryID    *uuid.UUID            `json:"category_id,omitempty"`
	ClearCategory bool                  `json:"clear_category,omitempty"`
	Principal     *decimal.Decimal      `json:"principal,omitempty"`
	InterestRate  *decimal.Decimal      `json:"interest_rate,omitempty"`
	TermMonths    *int                  `json:"term_months,omitempty"`
	StartDate     *string               `json:"start_date,omitempty"`
	DueDay        *int                  `json:"due_day,omitempty"`
	RepaymentType *models.RepaymentType `json:"repayment_type,omitempty"`
}

// normalize fills defaults and checks the terms, returning the parsed start.
// A zero due day falls back to the start date's day.
func (t *LoanTerms) normalize() (time.Time, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return time.Time{}, invalid("name", "is required")
	}
	if t.AccountID == uuid.Nil {
		return time.Time{}, invalid("account_id", "is required")
	}
	if !t.Principal.IsPositive() {
		return time.Time{}, invalid("principal", "must be positive")
	}
	if t.InterestRate.IsNegative() {
		return time.Time{}, invalid("interest_rate", "must not be negative")
	}
	if t.TermMonths < 1 {
		return time.Time{}, invalid("term_months", "must be at least 1")
	}
	start, err := schedule.ParseDate(t.StartDate)
	if err != nil {
		return time.Time{}, invalid("start_date", "must be a YYYY-MM-DD date")
	}
	if t.RepaymentType == "" {
		t.RepaymentType = models.RepaymentAmortized
	}
	if !schedule.RepaymentType(t.RepaymentType).Valid() {
		return time.Time{}, invalid("repayment_type", "must be amortized, interest_only or principal_equal")
	}
	if t.DueDay == 0 {
		t.DueDay = start.Day()
	}
	t.DueDay = schedule.ClampDueDay(t.DueDay)
	return start, nil
}

func (t LoanTerms) scheduleTerms() schedule.Terms {
	return schedule.Terms{
		Type:       schedule.RepaymentType(t.RepaymentType),
		Principal:  t.Principal,
		AnnualRate: t.InterestRate,
		TermMonths: t.TermMonths,
	}
}

func termsOf(loan *models.Loan) LoanTerms {
	return LoanTerms{
		Name:          loan.Name,
		AccountID:     loan.AccountID,
		CategoryID:    loan.CategoryID,
		Principal:     loan.Principal,
		InterestRate:  loan.InterestRate,
		TermMonths:    loan.TermMonths,
		StartDate:     loan.StartDate,
		DueDay:        loan.DueDay,
		RepaymentType: loan.RepaymentType,
	}
}

func (l *Ledger) checkReferences(ctx context.Context, userID string, accountID uuid.UUID, categoryID *uuid.UUID) error {
	if _, err := l.storage.GetAccount(ctx, userID, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid("account_id", "does not name one of your accounts")
		}
		return err
	}
	if categoryID == nil {
		return nil
	}
	if _, err := l.storage.GetCategory(ctx, userID, *categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid("category_id", "does not name one of your categories")
		}
		return err
	}
	return nil
}

// CreateLoan validates terms and stores a new loan with its first due date
// and initial installment.
func (l *Ledger) CreateLoan(ctx context.Context, userID string, terms LoanTerms) (*models.Loan, error) {
	start, err := terms.normalize()
	if err != nil {
		return nil, err
	}
	if err := l.checkReferences(ctx, userID, terms.AccountID, terms.CategoryID); err != nil {
		return nil, err
	}

	next := schedule.FormatDate(schedule.FirstDueDate(start, terms.DueDay))
	now := l.clock()
	loan := &models.Loan{
		ID:                 uuid.New(),
		UserID:             userID,
		Name:               terms.Name,
		AccountID:          terms.AccountID,
		CategoryID:         terms.CategoryID,
		Principal:          terms.Principal,
		InterestRate:       terms.InterestRate,
		TermMonths:         terms.TermMonths,
		StartDate:          terms.StartDate,
		DueDay:             terms.DueDay,
		RepaymentType:      terms.RepaymentType,
		RemainingPrincipal: terms.Principal,
		PaidMonths:         0,
		NextDueDate:        &next,
		MonthlyPayment:     schedule.InitialInstallment(terms.scheduleTerms()),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := l.storage.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	log.Info().Str("user_id", userID).Str("loan_id", loan.ID.String()).Str("type", string(loan.RepaymentType)).Msg("loan created")
	return l.reload(ctx, userID, loan.ID)
}

func (l *Ledger) reload(ctx context.Context, userID string, id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(ctx, userID, id)
	if err != nil {
		return nil, lookupErr("loan", err)
	}
	return loan, nil
}

// GetLoan regenerates the user's ledger and returns one loan.
func (l *Ledger) GetLoan(ctx context.Context, userID string, id uuid.UUID) (*models.Loan, error) {
	if err := l.Regenerate(ctx, userID); err != nil {
		return nil, err
	}
	return l.reload(ctx, userID, id)
}

// ListLoans regenerates the user's ledger and returns every loan with its
// account and category names.
func (l *Ledger) ListLoans(ctx context.Context, userID string) ([]*models.Loan, error) {
	if err := l.Regenerate(ctx, userID); err != nil {
		return nil, err
	}
	loans, err := l.storage.ListLoans(ctx, userID)
	if err != nil {
		return nil, err
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	return loans, nil
}

// UpdateLoan applies a contract edit. The next due date is replayed from the
// start date and the remaining balance rebased, without recomputing history.
func (l *Ledger) UpdateLoan(ctx context.Context, userID string, id uuid.UUID, patch LoanPatch) (*models.Loan, error) {
	if patch.ClearCategory && patch.CategoryID != nil {
		return nil, invalid("category_id", "cannot be set together with clear_category")
	}
	release, err := l.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	loan, err := l.reload(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	terms := termsOf(loan)
	if patch.Name != nil {
		terms.Name = *patch.Name
	}
	if patch.AccountID != nil {
		terms.AccountID = *patch.AccountID
	}
	if patch.CategoryID != nil {
		terms.CategoryID = patch.CategoryID
	}
	if patch.ClearCategory {
		terms.CategoryID = nil
	}
	if patch.Principal != nil {
		terms.Principal = *patch.Principal
	}
	if patch.InterestRate != nil {
		terms.InterestRate = *patch.InterestRate
	}
	if patch.TermMonths != nil {
		terms.TermMonths = *patch.TermMonths
	}
	if patch.StartDate != nil {
		terms.StartDate = *patch.StartDate
	}
	if patch.DueDay != nil {
		terms.DueDay = *patch.DueDay
	}
	if patch.RepaymentType != nil {
		terms.RepaymentType = *patch.RepaymentType
	}

	start, err := terms.normalize()
	if err != nil {
		return nil, err
	}
	if err := l.checkReferences(ctx, userID, terms.AccountID, terms.CategoryID); err != nil {
		return nil, err
	}

	st := terms.scheduleTerms()
	paid := loan.PaidMonths
	if paid > terms.TermMonths {
		paid = terms.TermMonths
	}
	remaining := schedule.RebaseRemaining(st, loan.Principal, loan.RemainingPrincipal, paid)

	loan.Name = terms.Name
	loan.AccountID = terms.AccountID
	loan.CategoryID = terms.CategoryID
	loan.Principal = terms.Principal
	loan.InterestRate = terms.InterestRate
	loan.TermMonths = terms.TermMonths
	loan.StartDate = terms.StartDate
	loan.DueDay = terms.DueDay
	loan.RepaymentType = terms.RepaymentType
	loan.PaidMonths = paid
	loan.RemainingPrincipal = remaining
	loan.NextDueDate = formatOptional(schedule.ReplayNextDue(start, terms.DueDay, paid, terms.TermMonths))
	if paid < terms.TermMonths {
		loan.MonthlyPayment = schedule.SplitPeriod(st, remaining, paid+1).Payment
	}
	if l.settlementEffective(loan) {
		applySettlement(loan)
	}
	loan.UpdatedAt = l.clock()

	if err := l.storage.UpdateLoan(ctx, loan); err != nil {
		return nil, lookupErr("loan", err)
	}
	log.Info().Str("user_id", userID).Str("loan_id", id.String()).Msg("loan updated")
	return l.reload(ctx, userID, id)
}

// SettleLoan marks the loan paid off as of settledAt. From that date on the
// loan is fully paid regardless of its schedule.
func (l *Ledger) SettleLoan(ctx context.Context, userID string, id uuid.UUID, settledAt string) (*models.Loan, error) {
	settledAt = strings.TrimSpace(settledAt)
	if settledAt == "" {
		return nil, fmt.Errorf("settled_at is required to settle a loan: %w", ErrConsistency)
	}
	if _, err := schedule.ParseDate(settledAt); err != nil {
		return nil, invalid("settled_at", "must be a YYYY-MM-DD date")
	}
	release, err := l.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	loan, err := l.reload(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	loan.SettledAt = &settledAt
	if l.settlementEffective(loan) {
		applySettlement(loan)
	}
	loan.UpdatedAt = l.clock()

	if err := l.storage.UpdateLoan(ctx, loan); err != nil {
		return nil, lookupErr("loan", err)
	}
	log.Info().Str("user_id", userID).Str("loan_id", id.String()).Str("settled_at", settledAt).Msg("loan settled")
	return l.reload(ctx, userID, id)
}

// DeleteLoan deletes a loan. Derived entries it already produced stay until
// the next regeneration purges them.
func (l *Ledger) DeleteLoan(ctx context.Context, userID string, id uuid.UUID) error {
	if err := l.storage.DeleteLoan(ctx, userID, id); err != nil {
		return lookupErr("loan", err)
	}
	log.Info().Str("user_id", userID).Str("loan_id", id.String()).Msg("loan deleted")
	return nil
}

// ProjectSchedule returns every period of the loan's contract, past and
// future, computed from its terms alone.
func (l *Ledger) ProjectSchedule(ctx context.Context, userID string, id uuid.UUID) ([]schedule.Period, error) {
	loan, err := l.reload(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	in, err := scheduleInput(loan)
	if err != nil {
		return nil, err
	}
	return schedule.Project(in), nil
}

func (l *Ledger) settlementEffective(loan *models.Loan) bool {
	if loan.SettledAt == nil {
		return false
	}
	settled, err := schedule.ParseDate(*loan.SettledAt)
	if err != nil {
		return false
	}
	return !l.today().Before(settled)
}

func applySettlement(loan *models.Loan) {
	loan.RemainingPrincipal = decimal.Zero
	loan.PaidMonths = loan.TermMonths
	loan.NextDueDate = nil
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := schedule.FormatDate(*t)
	return &s
}

func scheduleInput(loan *models.Loan) (schedule.Input, error) {
	start, err := schedule.ParseDate(loan.StartDate)
	if err != nil {
		return schedule.Input{}, fmt.Errorf("loan %s: %w", loan.ID, err)
	}
	in := schedule.Input{
		Terms:     termsOf(loan).scheduleTerms(),
		StartDate: start,
		DueDay:    loan.DueDay,
	}
	if loan.SettledAt != nil {
		settled, err := schedule.ParseDate(*loan.SettledAt)
		if err != nil {
			return schedule.Input{}, fmt.Errorf("loan %s: %w", loan.ID, err)
		}
		in.SettledAt = &settled
	}
	return in, nil
}
