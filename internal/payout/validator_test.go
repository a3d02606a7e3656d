package payout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"payrecon/kit/db"
)

func TestValidateRequest(t *testing.T) {
	var tests = []struct {
		name        string
		accountID   string
		recipient   string
		amount      int64
		expectedErr error
	}{
		{name: "valid", accountID: "acct", recipient: "r@example.com", amount: 4000},
		{name: "zero amount", accountID: "acct", recipient: "r@example.com", amount: 0, expectedErr: db.ErrInvalid},
		{name: "negative amount", accountID: "acct", recipient: "r@example.com", amount: -1, expectedErr: db.ErrInvalid},
		{name: "missing account", accountID: "", recipient: "r@example.com", amount: 1, expectedErr: db.ErrInvalid},
		{name: "empty recipient", accountID: "acct", recipient: "", amount: 1, expectedErr: ErrInvalidRecipient},
		{name: "display name", accountID: "acct", recipient: "Bob <r@example.com>", amount: 1, expectedErr: ErrInvalidRecipient},
		{name: "no domain dot", accountID: "acct", recipient: "r@localhost", amount: 1, expectedErr: ErrInvalidRecipient},
		{name: "not an address", accountID: "acct", recipient: "nobody", amount: 1, expectedErr: ErrInvalidRecipient},
		{name: "padded", accountID: "acct", recipient: " r@example.com", amount: 1, expectedErr: ErrInvalidRecipient},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateRequest(tt.accountID, tt.recipient, tt.amount)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				require.ErrorIs(t, err, db.ErrInvalid)
				return
			}
			require.NoError(t, err)
		})
	}
}
