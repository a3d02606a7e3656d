package ledger

import (
	"errors"
	"fmt"

	"payrecon/kit/db"
)

func validateAmount(accountID string, amount int64) error {
	if accountID == "" || amount <= 0 {
		return errors.Join(db.ErrInvalid, ErrInvalidRequest)
	}
	return nil
}

// ValidateTransaction checks required fields and that the amount sign agrees
// with the transaction type.
func ValidateTransaction(tx *Transaction) error {
	if tx == nil {
		return errors.Join(db.ErrInvalid, ErrInvalidRequest)
	}
	var problems []error
	if tx.AccountID == "" {
		problems = append(problems, errors.New("account_id is required"))
	}
	if !tx.Type.Valid() {
		problems = append(problems, fmt.Errorf("type %q is not valid", tx.Type))
	}
	if !tx.Status.Valid() {
		problems = append(problems, fmt.Errorf("status %q is not valid", tx.Status))
	}
	if tx.Description == "" {
		problems = append(problems, errors.New("description is required"))
	}
	switch {
	case tx.Amount == 0:
		problems = append(problems, errors.New("amount must not be zero"))
	case tx.Type == TypeDeposit && tx.Amount < 0:
		problems = append(problems, errors.New("deposit amount must be positive"))
	case tx.Type == TypePayout && tx.Amount > 0:
		problems = append(problems, errors.New("payout amount must be negative"))
	}
	if len(problems) > 0 {
		return errors.Join(append([]error{db.ErrInvalid}, problems...)...)
	}
	return nil
}

// prepare fills generated fields on a transaction about to be inserted.
func prepare(tx *Transaction) {
	ts := now()
	if tx.ID == "" {
		tx.ID = NewID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = ts
	}
	tx.UpdatedAt = tx.CreatedAt
}

// nextStatus resolves a requested transition. changed is false for a repeat
// of the current status.
func nextStatus(current, requested Status) (changed bool, err error) {
	if !requested.Valid() {
		return false, errors.Join(db.ErrInvalid, fmt.Errorf("status %q is not valid", requested))
	}
	if current == requested {
		return false, nil
	}
	if current.Terminal() || requested == StatusPending {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, requested)
	}
	return true, nil
}
