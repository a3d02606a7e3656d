package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"payrecon/internal/money"
	"payrecon/kit/db"
)

var ErrInvalidJSON = errors.New("invalid json")

type JSON struct {
	MaxBytes int64
}

func NewJSON() *JSON {
	return &JSON{MaxBytes: 1 << 20}
}

// Decode reads exactly one JSON value into dst, rejecting unknown fields.
// Failures wrap db.ErrInvalid.
func (v *JSON) Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, v.MaxBytes)
	defer func() { _ = body.Close() }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var amountErr *amountError
		if errors.As(err, &amountErr) {
			return amountErr.err
		}
		return errors.Join(db.ErrInvalid, ErrInvalidJSON)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.Join(db.ErrInvalid, ErrInvalidJSON)
	}
	return nil
}

// Amount is a money value in minor units. It decodes from a decimal string
// ("40.00") or a JSON number (40 or 40.5).
type Amount int64

type amountError struct{ err error }

func (e *amountError) Error() string { return e.err.Error() }

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return &amountError{errors.Join(db.ErrInvalid, fmt.Errorf("%w: amount is required", money.ErrInvalidAmount))}
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return &amountError{errors.Join(db.ErrInvalid, money.ErrInvalidAmount)}
		}
		minor, err := money.Parse(s)
		if err != nil {
			return &amountError{err}
		}
		*a = Amount(minor)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return &amountError{errors.Join(db.ErrInvalid, fmt.Errorf("%w: %s", money.ErrInvalidAmount, b))}
	}
	minor, err := money.FromDecimal(d)
	if err != nil {
		return &amountError{err}
	}
	*a = Amount(minor)
	return nil
}

func (a Amount) Minor() int64 { return int64(a) }
