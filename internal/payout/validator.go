package payout

import (
	"errors"
	"net/mail"
	"strings"

	"payrecon/kit/db"
)

var ErrInvalidRecipient = errors.New("recipient must be a plain email address")

func validateRequest(accountID, recipient string, amount int64) error {
	var problems []error
	if accountID == "" {
		problems = append(problems, errors.New("account_id is required"))
	}
	if amount <= 0 {
		problems = append(problems, errors.New("amount must be positive"))
	}
	if !validRecipient(recipient) {
		problems = append(problems, ErrInvalidRecipient)
	}
	if len(problems) > 0 {
		return errors.Join(append([]error{db.ErrInvalid}, problems...)...)
	}
	return nil
}

func validRecipient(recipient string) bool {
	if recipient == "" || strings.TrimSpace(recipient) != recipient {
		return false
	}
	addr, err := mail.ParseAddress(recipient)
	if err != nil || addr.Name != "" || addr.Address != recipient {
		return false
	}
	at := strings.LastIndexByte(recipient, '@')
	return at > 0 && strings.Contains(recipient[at+1:], ".")
}
