package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payrecon/kit/db"
)

func TestParse(t *testing.T) {
	var tests = []struct {
		name        string
		in          string
		expected    int64
		expectedErr error
	}{
		{name: "two places", in: "40.00", expected: 4000},
		{name: "one place", in: "0.5", expected: 50},
		{name: "integer", in: "100", expected: 10000},
		{name: "negative", in: "-12.34", expected: -1234},
		{name: "trailing zeros beyond scale", in: "1.2300", expected: 123},
		{name: "too precise", in: "1.234", expectedErr: db.ErrInvalid},
		{name: "garbage", in: "ten", expectedErr: ErrInvalidAmount},
		{name: "empty", in: "", expectedErr: ErrInvalidAmount},
		{name: "out of range", in: "1e30", expectedErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestFormat(t *testing.T) {
	require.Equal(t, "40.00", Format(4000))
	require.Equal(t, "0.05", Format(5))
	require.Equal(t, "-1.50", Format(-150))
	require.Equal(t, "0.00", Format(0))
}

func TestFromDecimal_NoFloatDrift(t *testing.T) {
	sum := decimal.Zero
	for i := 0; i < 10; i++ {
		sum = sum.Add(decimal.RequireFromString("0.10"))
	}
	got, err := FromDecimal(sum)
	require.NoError(t, err)
	require.Equal(t, int64(100), got)
}
