package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"payrecon/cmd/web/response"
	"payrecon/internal/ledger"
	"payrecon/kit/db"
	"payrecon/kit/observability"
)

var ErrInvalidToken = errors.New("invalid token")

type ctxKey struct{}

// WithAccountID returns ctx carrying the authenticated principal.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, accountID)
}

// AccountID returns the principal set by Auth.
func AccountID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Verifier checks HS256 bearer tokens for one issuer and audience.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Subject validates tokenStr and returns its sub claim.
func (v *Verifier) Subject(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", errors.Join(ErrInvalidToken, errors.New("token has no subject"))
	}
	return claims.Subject, nil
}

// AccountOpener provisions the ledger account of a first-time principal.
type AccountOpener interface {
	GetAccount(ctx context.Context, accountID string) (*ledger.Account, error)
	OpenAccount(ctx context.Context, accountID string) (*ledger.Account, error)
}

type Auth struct {
	verifier *Verifier
	accounts AccountOpener
	logger   *zap.Logger
}

func NewAuth(verifier *Verifier, accounts AccountOpener, logger *zap.Logger) *Auth {
	return &Auth{verifier: verifier, accounts: accounts, logger: observability.Component(logger, "middleware", "auth")}
}

// Require rejects requests without a valid bearer token and makes sure the
// principal's account exists before the handler runs.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			response.Fail(w, http.StatusUnauthorized, response.KindUnauthorized, "missing bearer token")
			return
		}
		accountID, err := a.verifier.Subject(strings.TrimSpace(raw))
		if err != nil {
			a.logger.Info("token rejected", zap.String("method", "Require"), zap.String("path", r.URL.Path), zap.Error(err))
			response.Fail(w, http.StatusUnauthorized, response.KindUnauthorized, "invalid token")
			return
		}
		if a.accounts != nil {
			if err := a.ensureAccount(r.Context(), accountID); err != nil {
				response.Error(w, a.logger.With(zap.String("method", "Require"), zap.String("account_id", accountID)), err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
	})
}

// ensureAccount opens the account on first contact only.
func (a *Auth) ensureAccount(ctx context.Context, accountID string) error {
	_, err := a.accounts.GetAccount(ctx, accountID)
	if !db.IsNotFound(err) {
		return err
	}
	_, err = a.accounts.OpenAccount(ctx, accountID)
	return err
}
