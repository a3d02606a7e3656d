package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payrecon/cmd/web/middleware"
	"payrecon/cmd/web/response"
	"payrecon/cmd/web/validator"
	"payrecon/internal/money"
	"payrecon/kit/observability"
)

type Payout struct {
	json   *validator.JSON
	payout PayoutServiceContract
	logger *zap.Logger
}

func NewPayout(jsonV *validator.JSON, payoutSvc PayoutServiceContract, logger *zap.Logger) *Payout {
	return &Payout{json: jsonV, payout: payoutSvc, logger: observability.Component(logger, "handler", "payout")}
}

type sendPayoutReq struct {
	Recipient string           `json:"recipient"`
	Amount    validator.Amount `json:"amount"`
}

func (h *Payout) Send(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("method", "Send"))
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		response.Error(w, log, errUnauthenticated)
		return
	}
	log = log.With(zap.String("account_id", accountID))

	var req sendPayoutReq
	if err := h.json.Decode(w, r, &req); err != nil {
		response.Error(w, log, err)
		return
	}
	res, err := h.payout.SendPayout(r.Context(), accountID, req.Recipient, req.Amount.Minor())
	if err != nil {
		response.Error(w, log, err)
		return
	}

	message := "payout submitted"
	if !res.Submitted {
		message = "payout accepted, submission pending"
	}
	response.JSON(w, http.StatusAccepted, message, map[string]any{
		"transaction": toTransactionView(res.Transaction),
		"balance":     money.Format(res.Balance),
		"submitted":   res.Submitted,
	})
}

func (h *Payout) Status(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("method", "Status"))
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		response.Error(w, log, errUnauthenticated)
		return
	}
	id := chi.URLParam(r, "id")
	tx, err := h.payout.Status(r.Context(), accountID, id)
	if err != nil {
		response.Error(w, log.With(zap.String("account_id", accountID), zap.String("id", id)), err)
		return
	}
	response.JSON(w, http.StatusOK, "payout "+string(tx.Status), map[string]any{
		"status":      tx.Status,
		"transaction": toTransactionView(tx),
	})
}
