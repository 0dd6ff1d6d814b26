package schedule

import (
	"math"

	"github.com/shopspring/decimal"
)

// RepaymentType selects how each installment is split between interest and
// principal.
type RepaymentType string

const (
	Amortized      RepaymentType = "amortized"
	InterestOnly   RepaymentType = "interest_only"
	PrincipalEqual RepaymentType = "principal_equal"
)

// Valid reports whether t is a known repayment type.
func (t RepaymentType) Valid() bool {
	switch t {
	case Amortized, InterestOnly, PrincipalEqual:
		return true
	}
	return false
}

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Terms are the contract terms that drive the splitter.
type Terms struct {
	Type       RepaymentType
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal // percent, e.g. 4.5 for 4.5%
	TermMonths int
}

// Months returns the term length, treating anything below one as one.
func (t Terms) Months() int {
	if t.TermMonths < 1 {
		return 1
	}
	return t.TermMonths
}

// MonthlyRate converts the annual percentage into a per-period fraction.
func (t Terms) MonthlyRate() decimal.Decimal {
	return t.AnnualRate.Div(hundred).Div(twelve)
}

// AnnuityPayment returns the unrounded fixed installment of an amortized loan:
// P*r / (1 - (1+r)^-n), or P/n at zero interest.
func (t Terms) AnnuityPayment() decimal.Decimal {
	n := t.Months()
	r := t.MonthlyRate()
	if !r.IsPositive() {
		return t.Principal.Div(decimal.NewFromInt(int64(n)))
	}
	denom := 1 - math.Pow(1+r.InexactFloat64(), -float64(n))
	return t.Principal.Mul(r).Div(decimal.NewFromFloat(denom))
}

// Split is one period's installment.
type Split struct {
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
	Payment   decimal.Decimal `json:"payment"`
}

// SplitPeriod computes the installment for the one-based period given the
// balance entering it. Amounts are rounded half away from zero to whole
// currency units, independently each period.
func SplitPeriod(t Terms, remaining decimal.Decimal, period int) Split {
	interest := remaining.Mul(t.MonthlyRate()).Round(0)

	switch t.Type {
	case InterestOnly:
		return Split{Interest: interest, Principal: decimal.Zero, Payment: interest}
	case PrincipalEqual:
		principal := t.Principal.Div(decimal.NewFromInt(int64(t.Months())))
		if period >= t.Months() {
			principal = remaining
		}
		return Split{
			Interest:  interest,
			Principal: principal,
			Payment:   principal.Add(interest).Round(0),
		}
	default:
		payment := t.AnnuityPayment().Round(0)
		principal := decimal.Max(decimal.Zero, payment.Sub(interest))
		return Split{Interest: interest, Principal: principal, Payment: payment}
	}
}

// ApplySplit returns the balance left after s is paid. Interest-only balances
// never decrease here; only settlement clears them.
func ApplySplit(t Terms, remaining decimal.Decimal, s Split) decimal.Decimal {
	if t.Type == InterestOnly {
		return remaining
	}
	return decimal.Max(decimal.Zero, remaining.Sub(s.Principal))
}
