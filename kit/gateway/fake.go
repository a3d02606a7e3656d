package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Operation string

const (
	OpCreateOrder     Operation = "create_order"
	OpCaptureOrder    Operation = "capture_order"
	OpSubmitPayout    Operation = "submit_payout"
	OpGetPayoutStatus Operation = "get_payout_status"
)

// PayoutScript decides the sequence of statuses a payout reports on
// successive GetPayoutStatus calls. The last status repeats once reached.
type PayoutScript func(req PayoutRequest) []PayoutStatus

// SucceedAfter reports PENDING n times, then SUCCESS.
func SucceedAfter(n int) PayoutScript {
	return func(PayoutRequest) []PayoutStatus { return append(pendings(n), PayoutSuccess) }
}

// FailAfter reports PENDING n times, then FAILED.
func FailAfter(n int) PayoutScript {
	return func(PayoutRequest) []PayoutStatus { return append(pendings(n), PayoutFailed) }
}

func pendings(n int) []PayoutStatus {
	out := make([]PayoutStatus, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, PayoutPending)
	}
	return out
}

type FakeOption func(*FakeGateway)

// WithLatency delays every call by d, honoring context cancellation.
func WithLatency(d time.Duration) FakeOption {
	return func(g *FakeGateway) { g.latency = d }
}

// WithAutoApprove makes new orders capturable without an ApproveOrder call.
func WithAutoApprove(v bool) FakeOption {
	return func(g *FakeGateway) { g.autoApprove = v }
}

func WithPayoutScript(s PayoutScript) FakeOption {
	return func(g *FakeGateway) { g.script = s }
}

type fakeOrder struct {
	amount   int64
	currency string
	approved bool
	captured bool
}

type fakePayout struct {
	req      PayoutRequest
	id       string
	statuses []PayoutStatus
	polls    int
}

type fakeFault struct {
	err         error
	afterEffect bool
}

// FakeGateway is an in-memory Gateway for tests and local runs. It keeps the
// provider guarantees the rest of the system relies on: an order captures at
// most once and a BatchID creates at most one payout.
type FakeGateway struct {
	mu          sync.Mutex
	latency     time.Duration
	autoApprove bool
	script      PayoutScript

	orders  map[string]*fakeOrder
	payouts map[string]*fakePayout
	byBatch map[string]string
	faults  map[Operation][]fakeFault
	calls   map[Operation]int
}

func NewFakeGateway(opts ...FakeOption) *FakeGateway {
	g := &FakeGateway{
		orders:  make(map[string]*fakeOrder),
		payouts: make(map[string]*fakePayout),
		byBatch: make(map[string]string),
		faults:  make(map[Operation][]fakeFault),
		calls:   make(map[Operation]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FailNext makes the next calls to op fail with errs, in order, before any
// effect takes place.
func (g *FakeGateway) FailNext(op Operation, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, err := range errs {
		g.faults[op] = append(g.faults[op], fakeFault{err: err})
	}
}

// DropNextResponse lets the next call to op take effect and then report
// ErrUnavailable, as a timeout after the provider accepted the request would.
func (g *FakeGateway) DropNextResponse(op Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[op] = append(g.faults[op], fakeFault{err: fmt.Errorf("%w: response lost", ErrUnavailable), afterEffect: true})
}

func (g *FakeGateway) ApproveOrder(orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	o.approved = true
	return nil
}

// ResolvePayout pins the status reported for payoutBatchID from now on.
func (g *FakeGateway) ResolvePayout(payoutBatchID string, status PayoutStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payouts[payoutBatchID]
	if !ok {
		return fmt.Errorf("%w: payout %s", ErrNotFound, payoutBatchID)
	}
	p.statuses = []PayoutStatus{status}
	p.polls = 0
	return nil
}

// PayoutFor returns the payout batch id created for a caller BatchID.
func (g *FakeGateway) PayoutFor(batchID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byBatch[batchID]
	return id, ok
}

func (g *FakeGateway) PayoutCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.payouts)
}

func (g *FakeGateway) Calls(op Operation) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *FakeGateway) CreateOrder(ctx context.Context, amount int64, currency string) (*Order, error) {
	fault, err := g.begin(ctx, OpCreateOrder)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, &APIError{Kind: ErrRejected, StatusCode: 422, Name: "UNPROCESSABLE_ENTITY", Issue: "INVALID_PARAMETER_VALUE"}
	}

	g.mu.Lock()
	id := "ORDER-" + uuid.NewString()
	g.orders[id] = &fakeOrder{amount: amount, currency: currency, approved: g.autoApprove}
	g.mu.Unlock()

	if fault != nil {
		return nil, fault
	}
	return &Order{ID: id, ApprovalURL: "https://fake-gateway.local/checkoutnow?token=" + id, Status: "CREATED"}, nil
}

func (g *FakeGateway) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	fault, err := g.begin(ctx, OpCaptureOrder)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	o, ok := g.orders[orderID]
	switch {
	case !ok:
		g.mu.Unlock()
		return nil, &APIError{Kind: ErrNotFound, StatusCode: 404, Name: "RESOURCE_NOT_FOUND", Issue: "INVALID_RESOURCE_ID"}
	case o.captured:
		g.mu.Unlock()
		return nil, &APIError{Kind: ErrAlreadyCaptured, StatusCode: 422, Name: "UNPROCESSABLE_ENTITY", Issue: "ORDER_ALREADY_CAPTURED"}
	case !o.approved:
		g.mu.Unlock()
		return nil, &APIError{Kind: ErrRejected, StatusCode: 422, Name: "UNPROCESSABLE_ENTITY", Issue: "ORDER_NOT_APPROVED"}
	}
	o.captured = true
	capture := &Capture{OrderID: orderID, CaptureID: "CAPTURE-" + uuid.NewString(), Amount: o.amount, Currency: o.currency}
	g.mu.Unlock()

	if fault != nil {
		return nil, fault
	}
	return capture, nil
}

func (g *FakeGateway) SubmitPayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	fault, err := g.begin(ctx, OpSubmitPayout)
	if err != nil {
		return nil, err
	}
	if req.BatchID == "" || req.Recipient == "" || req.Amount <= 0 {
		return nil, &APIError{Kind: ErrRejected, StatusCode: 400, Name: "VALIDATION_ERROR"}
	}

	g.mu.Lock()
	id, exists := g.byBatch[req.BatchID]
	if !exists {
		id = "PB-" + uuid.NewString()
		statuses := []PayoutStatus{PayoutPending}
		if g.script != nil {
			if s := g.script(req); len(s) > 0 {
				statuses = s
			}
		}
		g.payouts[id] = &fakePayout{req: req, id: id, statuses: statuses}
		g.byBatch[req.BatchID] = id
	}
	g.mu.Unlock()

	if fault != nil {
		return nil, fault
	}
	return &Payout{PayoutBatchID: id, BatchID: req.BatchID, Status: PayoutPending}, nil
}

func (g *FakeGateway) GetPayoutStatus(ctx context.Context, payoutBatchID string) (PayoutStatus, error) {
	fault, err := g.begin(ctx, OpGetPayoutStatus)
	if err != nil {
		return "", err
	}
	if fault != nil {
		return "", fault
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payouts[payoutBatchID]
	if !ok {
		return "", &APIError{Kind: ErrNotFound, StatusCode: 404, Name: "RESOURCE_NOT_FOUND", Issue: "INVALID_RESOURCE_ID"}
	}
	i := min(p.polls, len(p.statuses)-1)
	p.polls++
	return p.statuses[i], nil
}

// begin applies latency and consumes a scripted fault for op. A fault that
// fires before the effect is returned as err; one that fires after the effect
// is returned as fault for the caller to report once the effect is applied.
func (g *FakeGateway) begin(ctx context.Context, op Operation) (fault error, err error) {
	g.mu.Lock()
	g.calls[op]++
	var f *fakeFault
	if q := g.faults[op]; len(q) > 0 {
		f = &q[0]
		g.faults[op] = q[1:]
	}
	latency := g.latency
	g.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if f == nil {
		return nil, nil
	}
	if f.afterEffect {
		return f.err, nil
	}
	return nil, f.err
}
