package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/schedule"
	"github.com/mcclellann/loanledger/pkg/store"
	"github.com/rs/zerolog/log"
)

// DerivedMemoMarker prefixes the memo of every ledger entry the materializer
// owns. Entries are found and purged by this prefix alone.
const DerivedMemoMarker = "[loan]"

// DerivedMemo tags a derived entry with its loan and period.
func DerivedMemo(loanName string, period, termMonths int) string {
	return fmt.Sprintf("%s %s %d/%d", DerivedMemoMarker, loanName, period, termMonths)
}

// window is the inclusive date range of derived entries one run replaces.
// Empty bounds are open.
type window struct {
	from, to string
}

func (w window) contains(date string) bool {
	return (w.from == "" || date >= w.from) && (w.to == "" || date <= w.to)
}

func (l *Ledger) purgeWindow(today time.Time) window {
	if l.purgeScope == config.PurgeYear {
		return window{
			from: fmt.Sprintf("%04d-01-01", today.Year()),
			to:   fmt.Sprintf("%04d-12-31", today.Year()),
		}
	}
	return window{}
}

// Regenerate rebuilds the user's derived ledger entries and loan state from
// the loan contracts and today's date. It purges the derived entries in the
// configured window, then walks every loan's schedule and writes one expense
// per elapsed period, all in one store transaction. Running it again with no
// change in date or contracts yields the same entries and state.
func (l *Ledger) Regenerate(ctx context.Context, userID string) error {
	release, err := l.lockUser(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	now := l.clock()
	today := schedule.Today(now, l.location)
	win := l.purgeWindow(today)

	var purged int64
	var loanCount, skipped, written int
	err = l.storage.RunInTx(ctx, func(tx store.Storage) error {
		n, err := tx.DeleteTransactions(ctx, store.TransactionFilter{
			UserID:     userID,
			MemoPrefix: DerivedMemoMarker,
			DateFrom:   win.from,
			DateTo:     win.to,
		})
		if err != nil {
			return err
		}
		purged = n

		loans, err := tx.ListLoans(ctx, userID)
		if err != nil {
			return err
		}
		loanCount = len(loans)

		for _, loan := range loans {
			in, err := scheduleInput(loan)
			if err != nil {
				log.Warn().Err(err).Str("user_id", userID).Str("loan_id", loan.ID.String()).Msg("skipping loan with unreadable dates")
				skipped++
				continue
			}
			n, err := materialize(ctx, tx, loan, in, today, now, win)
			if err != nil {
				return fmt.Errorf("failed to materialize loan %s: %w", loan.ID, err)
			}
			written += n
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("regeneration failed")
		return err
	}

	log.Info().
		Str("user_id", userID).
		Str("today", schedule.FormatDate(today)).
		Int("loans", loanCount).
		Int("skipped", skipped).
		Int64("purged", purged).
		Int("written", written).
		Msg("ledger regenerated")
	return nil
}

// materialize writes the loan's elapsed installments inside win and folds the
// resulting state back onto the loan. Only engine-owned columns are written.
// It returns the number of entries written.
func materialize(ctx context.Context, tx store.Storage, loan *models.Loan, in schedule.Input, today, now time.Time, win window) (int, error) {
	res := schedule.Run(in, today)

	written := 0
	for _, p := range res.Periods {
		if !p.Payment.IsPositive() || !win.contains(p.DueDate) {
			continue
		}
		entry := &models.Transaction{
			ID:         uuid.New(),
			UserID:     loan.UserID,
			AccountID:  loan.AccountID,
			CategoryID: loan.CategoryID,
			Type:       models.TransactionTypeExpense,
			Amount:     p.Payment,
			Date:       p.DueDate,
			Memo:       DerivedMemo(loan.Name, p.Index, in.Months()),
			CreatedAt:  now,
		}
		if err := tx.CreateTransaction(ctx, entry); err != nil {
			return written, err
		}
		written++
	}

	next := formatOptional(res.NextDue)
	changed := !loan.RemainingPrincipal.Equal(res.Remaining) ||
		loan.PaidMonths != res.PaidMonths ||
		!sameDate(loan.NextDueDate, next) ||
		!loan.MonthlyPayment.Equal(res.Installment)

	log.Debug().
		Str("loan_id", loan.ID.String()).
		Int("periods", len(res.Periods)).
		Int("paid_months", res.PaidMonths).
		Str("remaining", res.Remaining.String()).
		Bool("settled", res.Settled).
		Bool("changed", changed).
		Msg("loan schedule walked")

	if !changed {
		return written, nil
	}
	loan.RemainingPrincipal = res.Remaining
	loan.PaidMonths = res.PaidMonths
	loan.NextDueDate = next
	loan.MonthlyPayment = res.Installment
	loan.UpdatedAt = now
	if err := tx.UpdateLoanState(ctx, loan); err != nil {
		return written, err
	}
	return written, nil
}

func sameDate(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
