package ledger

import (
	"errors"
	"fmt"

	"github.com/mcclellann/loanledger/pkg/store"
)

var (
	// ErrValidation marks requests rejected before any state was touched.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks records that are absent or owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrConsistency marks requests that contradict the record's state.
	ErrConsistency = errors.New("inconsistent request")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + " " + e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// lookupErr turns a store miss into ErrNotFound for the named record.
func lookupErr(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return err
}
