package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// Input is everything the schedule needs from a loan contract.
type Input struct {
	Terms
	StartDate time.Time
	DueDay    int
	SettledAt *time.Time
}

// Period is one elapsed or projected installment.
type Period struct {
	Index     int             `json:"index"`
	DueDate   string          `json:"due_date"`
	Split                     // interest, principal and payment
	Remaining decimal.Decimal `json:"remaining"`
}

// Result is the loan state after walking the schedule.
type Result struct {
	Periods     []Period
	Remaining   decimal.Decimal
	PaidMonths  int
	NextDue     *time.Time
	Installment decimal.Decimal
	Settled     bool
}

// Run walks every period due on or before the stop date: the settlement date
// when there is one, otherwise today. A settlement that has taken effect by
// today overrides whatever the walk produced.
func Run(in Input, today time.Time) Result {
	stop := today
	if in.SettledAt != nil {
		stop = *in.SettledAt
	}

	res := walk(in, func(due time.Time) bool { return !due.After(stop) })

	if in.SettledAt != nil && !today.Before(*in.SettledAt) {
		res.Remaining = decimal.Zero
		res.PaidMonths = in.Months()
		res.NextDue = nil
		res.Settled = true
	}
	res.Installment = installment(in, res)
	return res
}

// Project returns the full term-length schedule regardless of the date.
func Project(in Input) []Period {
	return walk(in, func(time.Time) bool { return true }).Periods
}

func walk(in Input, due func(time.Time) bool) Result {
	dueDay := ClampDueDay(in.DueDay)
	term := in.Months()

	next := FirstDueDate(in.StartDate, dueDay)
	res := Result{Remaining: in.Principal, NextDue: &next}

	for res.NextDue != nil && res.PaidMonths < term && due(*res.NextDue) {
		period := res.PaidMonths + 1
		split := SplitPeriod(in.Terms, res.Remaining, period)
		res.Remaining = ApplySplit(in.Terms, res.Remaining, split)
		res.Periods = append(res.Periods, Period{
			Index:     period,
			DueDate:   FormatDate(*res.NextDue),
			Split:     split,
			Remaining: res.Remaining,
		})
		res.PaidMonths = period

		if res.PaidMonths == term {
			res.NextDue = nil
			break
		}
		advanced := AdvanceOneMonth(*res.NextDue, dueDay)
		res.NextDue = &advanced
	}
	return res
}

// installment is the payment the next unpaid period would charge, or the last
// charged payment once nothing is left to pay.
func installment(in Input, res Result) decimal.Decimal {
	if res.NextDue != nil && res.PaidMonths < in.Months() {
		return SplitPeriod(in.Terms, res.Remaining, res.PaidMonths+1).Payment
	}
	if n := len(res.Periods); n > 0 {
		return res.Periods[n-1].Payment
	}
	return SplitPeriod(in.Terms, in.Principal, 1).Payment
}

// InitialInstallment is the installment charged by the first period.
func InitialInstallment(t Terms) decimal.Decimal {
	return SplitPeriod(t, t.Principal, 1).Payment
}

// ReplayNextDue rebuilds the next due date after paidMonths periods without
// recomputing the schedule. It returns nil once the term is fully paid.
func ReplayNextDue(start time.Time, dueDay, paidMonths, termMonths int) *time.Time {
	if paidMonths >= termMonths {
		return nil
	}
	dueDay = ClampDueDay(dueDay)
	next := AdvanceMonths(FirstDueDate(start, dueDay), dueDay, paidMonths)
	return &next
}

// RebaseRemaining approximates the balance after a contract edit. An
// unchanged principal keeps the current balance; interest-only loans reset
// to the new principal; other policies pro-rate the new principal by the
// share of periods still unpaid.
func RebaseRemaining(t Terms, oldPrincipal, remaining decimal.Decimal, paidMonths int) decimal.Decimal {
	if t.Principal.Equal(oldPrincipal) {
		return remaining
	}
	if t.Type == InterestOnly {
		return t.Principal
	}
	term := t.Months()
	if paidMonths > term {
		paidMonths = term
	}
	left := decimal.NewFromInt(int64(term - paidMonths))
	return t.Principal.Mul(left).Div(decimal.NewFromInt(int64(term))).Round(0)
}
