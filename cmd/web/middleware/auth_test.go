package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payrecon/internal/ledger"
	"payrecon/kit/db"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testIssuer   = "payrecon-auth"
	testAudience = "payrecon-api"
)

type AccountOpenerMock struct {
	mock.Mock
}

func (m *AccountOpenerMock) GetAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

func (m *AccountOpenerMock) OpenAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Account), args.Error(1)
}

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "acc-1",
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestVerifier_Subject(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testSecret, testIssuer, testAudience)

	var tests = []struct {
		name    string
		token   func(t *testing.T) string
		wantSub string
		wantErr bool
	}{
		{
			name:    "valid",
			token:   func(t *testing.T) string { return sign(t, testSecret, jwt.SigningMethodHS256, validClaims()) },
			wantSub: "acc-1",
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := validClaims()
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				return sign(t, testSecret, jwt.SigningMethodHS256, c)
			},
			wantErr: true,
		},
		{
			name: "no expiry",
			token: func(t *testing.T) string {
				c := validClaims()
				c.ExpiresAt = nil
				return sign(t, testSecret, jwt.SigningMethodHS256, c)
			},
			wantErr: true,
		},
		{
			name:    "wrong secret",
			token:   func(t *testing.T) string { return sign(t, "another-secret-another-secret-xx", jwt.SigningMethodHS256, validClaims()) },
			wantErr: true,
		},
		{
			name:    "wrong algorithm",
			token:   func(t *testing.T) string { return sign(t, testSecret, jwt.SigningMethodHS512, validClaims()) },
			wantErr: true,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				c := validClaims()
				c.Issuer = "someone-else"
				return sign(t, testSecret, jwt.SigningMethodHS256, c)
			},
			wantErr: true,
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				c := validClaims()
				c.Audience = jwt.ClaimStrings{"other-api"}
				return sign(t, testSecret, jwt.SigningMethodHS256, c)
			},
			wantErr: true,
		},
		{
			name: "no subject",
			token: func(t *testing.T) string {
				c := validClaims()
				c.Subject = ""
				return sign(t, testSecret, jwt.SigningMethodHS256, c)
			},
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   func(*testing.T) string { return "not.a.jwt" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sub, err := v.Subject(tt.token(t))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantSub, sub)
		})
	}
}

func TestAuth_Require(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name       string
		header     string
		setup      func(m *AccountOpenerMock)
		wantStatus int
		wantKind   string
		wantOpen   bool
	}{
		{
			name:   "known account is not reopened",
			header: "Bearer " + sign(t, testSecret, jwt.SigningMethodHS256, validClaims()),
			setup: func(m *AccountOpenerMock) {
				m.On("GetAccount", mock.Anything, "acc-1").Return(&ledger.Account{ID: "acc-1"}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "first contact opens the account",
			header: "Bearer " + sign(t, testSecret, jwt.SigningMethodHS256, validClaims()),
			setup: func(m *AccountOpenerMock) {
				m.On("GetAccount", mock.Anything, "acc-1").Return(nil, fmt.Errorf("%w: account acc-1", db.ErrNotFound)).Once()
				m.On("OpenAccount", mock.Anything, "acc-1").Return(&ledger.Account{ID: "acc-1"}, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantOpen:   true,
		},
		{
			name:       "missing header",
			wantStatus: http.StatusUnauthorized,
			wantKind:   "unauthorized",
		},
		{
			name:       "not a bearer token",
			header:     "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
			wantKind:   "unauthorized",
		},
		{
			name:       "empty bearer",
			header:     "Bearer   ",
			wantStatus: http.StatusUnauthorized,
			wantKind:   "unauthorized",
		},
		{
			name:       "invalid token",
			header:     "Bearer not.a.jwt",
			wantStatus: http.StatusUnauthorized,
			wantKind:   "unauthorized",
		},
		{
			name:   "account lookup fails",
			header: "Bearer " + sign(t, testSecret, jwt.SigningMethodHS256, validClaims()),
			setup: func(m *AccountOpenerMock) {
				m.On("GetAccount", mock.Anything, "acc-1").Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantKind:   "internal_error",
		},
		{
			name:   "account provisioning fails",
			header: "Bearer " + sign(t, testSecret, jwt.SigningMethodHS256, validClaims()),
			setup: func(m *AccountOpenerMock) {
				m.On("GetAccount", mock.Anything, "acc-1").Return(nil, db.ErrNotFound)
				m.On("OpenAccount", mock.Anything, "acc-1").Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantKind:   "internal_error",
			wantOpen:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			accounts := &AccountOpenerMock{}
			if tt.setup != nil {
				tt.setup(accounts)
			}
			auth := NewAuth(NewVerifier(testSecret, testIssuer, testAudience), accounts, zap.NewNop())

			var seen string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = AccountID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/account", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			auth.Require(next).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantKind != "" {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				require.Equal(t, tt.wantKind, body["kind"])
				require.Empty(t, seen)
			} else {
				require.Equal(t, "acc-1", seen)
			}
			accounts.AssertExpectations(t)
			if !tt.wantOpen {
				accounts.AssertNotCalled(t, "OpenAccount", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestAccountID(t *testing.T) {
	t.Parallel()

	_, ok := AccountID(context.Background())
	require.False(t, ok)

	_, ok = AccountID(WithAccountID(context.Background(), ""))
	require.False(t, ok)

	id, ok := AccountID(WithAccountID(context.Background(), "acc-7"))
	require.True(t, ok)
	require.Equal(t, "acc-7", id)
}
