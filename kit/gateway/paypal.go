package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	payoutEmailSubject = "You have received a payment!"
	payoutEmailMessage = "You received a payment through our platform!"
	payoutNote         = "Payment from platform user"
)

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
	BrandName    string
	Timeout      time.Duration
}

// PayPalGateway talks to the PayPal REST API (orders v2 and payouts v1).
type PayPalGateway struct {
	cfg    PayPalConfig
	client *http.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalGateway(cfg PayPalConfig, client *http.Client) *PayPalGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PayPalGateway{cfg: cfg, client: client, now: time.Now}
}

type ppAmount struct {
	CurrencyCode string `json:"currency_code,omitempty"`
	Currency     string `json:"currency,omitempty"`
	Value        string `json:"value"`
}

type ppLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type ppOrderResponse struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Links         []ppLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string   `json:"id"`
				Status string   `json:"status"`
				Amount ppAmount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type ppBatchHeader struct {
	PayoutBatchID     string `json:"payout_batch_id"`
	BatchStatus       string `json:"batch_status"`
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
	} `json:"sender_batch_header"`
}

type ppPayoutResponse struct {
	BatchHeader ppBatchHeader `json:"batch_header"`
}

type ppErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (g *PayPalGateway) CreateOrder(ctx context.Context, amount int64, currency string) (*Order, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": ppAmount{CurrencyCode: currency, Value: formatMinor(amount)},
		}},
		"application_context": map[string]any{
			"brand_name":  g.cfg.BrandName,
			"return_url":  g.cfg.ReturnURL,
			"cancel_url":  g.cfg.CancelURL,
			"user_action": "PAY_NOW",
		},
	}
	var out ppOrderResponse
	if err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", body, nil, &out); err != nil {
		return nil, err
	}
	order := &Order{ID: out.ID, Status: out.Status}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			order.ApprovalURL = l.Href
			break
		}
	}
	if order.ApprovalURL == "" {
		return nil, fmt.Errorf("%w: order %s has no approval link", ErrUnavailable, out.ID)
	}
	return order, nil
}

func (g *PayPalGateway) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	headers := map[string]string{"Prefer": "return=representation"}
	var out ppOrderResponse
	if err := g.do(ctx, http.MethodPost, path, map[string]any{}, headers, &out); err != nil {
		return nil, err
	}
	if len(out.PurchaseUnits) == 0 || len(out.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, fmt.Errorf("%w: capture response for %s has no captures", ErrUnavailable, orderID)
	}
	c := out.PurchaseUnits[0].Payments.Captures[0]
	if c.Status == "DECLINED" || c.Status == "FAILED" {
		return nil, &APIError{Kind: ErrRejected, StatusCode: http.StatusOK, Name: "CAPTURE_" + c.Status, Issue: "CAPTURE_" + c.Status}
	}
	amount, err := parseMinor(c.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: capture amount %q: %v", ErrUnavailable, c.Amount.Value, err)
	}
	return &Capture{OrderID: out.ID, CaptureID: c.ID, Amount: amount, Currency: c.Amount.CurrencyCode}, nil
}

func (g *PayPalGateway) SubmitPayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	body := map[string]any{
		"sender_batch_header": map[string]any{
			"sender_batch_id": req.BatchID,
			"email_subject":   payoutEmailSubject,
			"email_message":   payoutEmailMessage,
		},
		"items": []map[string]any{{
			"recipient_type": "EMAIL",
			"amount":         ppAmount{Currency: req.Currency, Value: formatMinor(req.Amount)},
			"note":           payoutNote,
			"sender_item_id": req.BatchID,
			"receiver":       req.Recipient,
		}},
	}
	headers := map[string]string{"PayPal-Request-Id": req.BatchID}
	var out ppPayoutResponse
	if err := g.do(ctx, http.MethodPost, "/v1/payments/payouts", body, headers, &out); err != nil {
		return nil, err
	}
	if out.BatchHeader.PayoutBatchID == "" {
		return nil, fmt.Errorf("%w: payout response has no batch id", ErrUnavailable)
	}
	return &Payout{
		PayoutBatchID: out.BatchHeader.PayoutBatchID,
		BatchID:       req.BatchID,
		Status:        mapBatchStatus(out.BatchHeader.BatchStatus),
	}, nil
}

func (g *PayPalGateway) GetPayoutStatus(ctx context.Context, payoutBatchID string) (PayoutStatus, error) {
	var out ppPayoutResponse
	if err := g.do(ctx, http.MethodGet, "/v1/payments/payouts/"+url.PathEscape(payoutBatchID), nil, nil, &out); err != nil {
		return "", err
	}
	return mapBatchStatus(out.BatchHeader.BatchStatus), nil
}

func mapBatchStatus(s string) PayoutStatus {
	switch strings.ToUpper(s) {
	case "SUCCESS":
		return PayoutSuccess
	case "DENIED", "CANCELED", "FAILED":
		return PayoutFailed
	default:
		return PayoutPending
	}
}

func (g *PayPalGateway) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		g.dropToken()
	}
	if resp.StatusCode >= 300 {
		return classify(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	return nil
}

func classify(status int, raw []byte) error {
	var body ppErrorResponse
	_ = json.Unmarshal(raw, &body)
	apiErr := &APIError{StatusCode: status, Name: body.Name, Message: body.Message, DebugID: body.DebugID}
	if len(body.Details) > 0 {
		apiErr.Issue = body.Details[0].Issue
	}

	switch {
	case status >= 500, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status == http.StatusUnauthorized:
		apiErr.Kind = ErrUnavailable
	case apiErr.Issue == "ORDER_ALREADY_CAPTURED":
		apiErr.Kind = ErrAlreadyCaptured
	case status == http.StatusNotFound || apiErr.Name == "RESOURCE_NOT_FOUND":
		apiErr.Kind = ErrNotFound
	default:
		apiErr.Kind = ErrRejected
	}
	return apiErr
}

func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && g.now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return "", errors.Join(ErrUnavailable, fmt.Errorf("token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.AccessToken == "" {
		return "", fmt.Errorf("%w: token: malformed response", ErrUnavailable)
	}
	g.token = out.AccessToken
	// treat the token as expired a minute early
	g.tokenExpiry = g.now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return g.token, nil
}

func (g *PayPalGateway) dropToken() {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
}

func formatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func parseMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%s has more than 2 decimal places", s)
	}
	return minor.IntPart(), nil
}
