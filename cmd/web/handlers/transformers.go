package handlers

import (
	"time"

	"payrecon/internal/ledger"
	"payrecon/internal/money"
)

type transactionView struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	Status       string    `json:"status"`
	Counterparty string    `json:"counterparty,omitempty"`
	Description  string    `json:"description"`
	ExternalRef  string    `json:"external_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toTransactionView(tx *ledger.Transaction) *transactionView {
	if tx == nil {
		return nil
	}
	return &transactionView{
		ID:           tx.ID,
		Type:         string(tx.Type),
		Amount:       money.Format(tx.Amount),
		Status:       string(tx.Status),
		Counterparty: tx.Counterparty,
		Description:  tx.Description,
		ExternalRef:  tx.ExternalRef,
		CreatedAt:    tx.CreatedAt,
		UpdatedAt:    tx.UpdatedAt,
	}
}
