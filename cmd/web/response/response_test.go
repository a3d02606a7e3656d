package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payrecon/internal/ledger"
	"payrecon/kit/db"
	"payrecon/kit/gateway"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name       string
		err        error
		wantStatus int
		wantKind   Kind
	}{
		{"insufficient funds", fmt.Errorf("reserve: %w", ledger.ErrInsufficientFunds), http.StatusBadRequest, KindInsufficientFunds},
		{"invalid", errors.Join(db.ErrInvalid, errors.New("bad")), http.StatusBadRequest, KindValidation},
		{"store not found", db.ErrNotFound, http.StatusNotFound, KindNotFound},
		{"gateway not found", &gateway.APIError{Kind: gateway.ErrNotFound, StatusCode: 404}, http.StatusNotFound, KindNotFound},
		{"gateway rejected", &gateway.APIError{Kind: gateway.ErrRejected, StatusCode: 422}, http.StatusInternalServerError, KindGatewayRejected},
		{"gateway unavailable", fmt.Errorf("submit: %w", gateway.ErrUnavailable), http.StatusServiceUnavailable, KindGatewayUnavailable},
		{"circuit open", errors.Join(gateway.ErrUnavailable, gateway.ErrCircuitOpen), http.StatusServiceUnavailable, KindGatewayUnavailable},
		{"conflict is internal", db.ErrConflict, http.StatusInternalServerError, KindInternal},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, kind := Classify(tt.err)
			require.Equal(t, tt.wantStatus, status)
			require.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestError_HidesInternalDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Error(rec, zap.NewNop(), errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, map[string]any{"success": false, "message": "internal error", "kind": "internal_error"}, body)
}

func TestError_RejectedKeepsItsKind(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Error(rec, zap.NewNop(), &gateway.APIError{Kind: gateway.ErrRejected, StatusCode: 422, Issue: "ORDER_NOT_APPROVED"})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, map[string]any{"success": false, "message": "payment provider rejected the request", "kind": "gateway_rejected"}, body)
}

func TestError_ValidationMessageIsOneLine(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Error(rec, nil, errors.Join(db.ErrInvalid, errors.New("amount must be positive")))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotContains(t, body["message"], "\n")
	require.Contains(t, body["message"], "amount must be positive")
}

func TestJSON_FieldsCannotOverrideEnvelope(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, "created", map[string]any{"success": false, "id": "x"})

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "created", body["message"])
	require.Equal(t, "x", body["id"])
}
