package deposit

import "payrecon/internal/ledger"

const Description = "Deposit via PayPal"

type Initiated struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
	Amount      int64  `json:"amount"`
}

// Result of a capture. AlreadyCaptured marks a replay: the order was settled
// by an earlier call and nothing was credited this time. Transaction is nil
// only when the capture has no local record and was escalated.
type Result struct {
	Transaction     *ledger.Transaction
	Balance         int64
	AlreadyCaptured bool
}
