package response

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"payrecon/internal/ledger"
	"payrecon/kit/db"
	"payrecon/kit/gateway"
)

type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindNotFound           Kind = "not_found"
	KindGatewayRejected    Kind = "gateway_rejected"
	KindGatewayUnavailable Kind = "gateway_unavailable"
	KindUnauthorized       Kind = "unauthorized"
	KindInternal           Kind = "internal_error"
)

// JSON writes {success: true, message, ...fields}.
func JSON(w http.ResponseWriter, status int, message string, fields map[string]any) {
	Envelope(w, status, true, message, fields)
}

func Envelope(w http.ResponseWriter, status int, success bool, message string, fields map[string]any) {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = success
	body["message"] = message
	write(w, status, body)
}

// Fail writes {success: false, message, kind}.
func Fail(w http.ResponseWriter, status int, kind Kind, message string) {
	write(w, status, map[string]any{"success": false, "message": message, "kind": kind})
}

// Classify maps err to its HTTP status and kind.
func Classify(err error) (int, Kind) {
	switch {
	case ledger.IsInsufficientFunds(err):
		return http.StatusBadRequest, KindInsufficientFunds
	case db.IsInvalid(err):
		return http.StatusBadRequest, KindValidation
	case db.IsNotFound(err), gateway.IsNotFound(err):
		return http.StatusNotFound, KindNotFound
	case gateway.IsRejected(err):
		return http.StatusInternalServerError, KindGatewayRejected
	case gateway.IsUnavailable(err):
		return http.StatusServiceUnavailable, KindGatewayUnavailable
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// Error logs err and writes its envelope. Internal errors are reported
// generically.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, kind := Classify(err)
	message := messageFor(kind, err)
	if logger != nil {
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
		} else {
			logger.Info("request refused", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	Fail(w, status, kind, message)
}

func messageFor(kind Kind, err error) string {
	switch kind {
	case KindValidation:
		return strings.ReplaceAll(err.Error(), "\n", "; ")
	case KindInsufficientFunds:
		return "insufficient funds"
	case KindNotFound:
		return "not found"
	case KindGatewayRejected:
		return "payment provider rejected the request"
	case KindGatewayUnavailable:
		return "payment provider unavailable, try again later"
	default:
		return "internal error"
	}
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
