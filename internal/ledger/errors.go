package ledger

import (
	"errors"
	"fmt"

	"payrecon/kit/db"
)

var (
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", db.ErrInvalid)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", db.ErrInvalid)
	ErrInvalidRequest    = errors.New("invalid request")
)

func IsInsufficientFunds(err error) bool { return errors.Is(err, ErrInsufficientFunds) }
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }
