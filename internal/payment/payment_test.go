package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestSettle(t *testing.T) {
	total := decimal.RequireFromString("80")

	tests := []struct {
		name       string
		method     Method
		received   *decimal.Decimal
		wantErr    error
		wantChange string
	}{
		{name: "cash with change", method: MethodCash, received: dec("100"), wantChange: "20"},
		{name: "cash exact", method: MethodCash, received: dec("80"), wantChange: "0"},
		{name: "cash short", method: MethodCash, received: dec("79.99"), wantErr: ErrInsufficientPayment},
		{name: "cash missing", method: MethodCash, wantErr: ErrInsufficientPayment},
		{name: "transfer", method: MethodTransfer, wantChange: "0"},
		{name: "transfer ignores cash", method: MethodTransfer, received: dec("500"), wantChange: "0"},
		{name: "unknown method", method: Method("card"), wantErr: ErrInvalidMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Settle(tt.method, total, tt.received)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, s.Change.Equal(decimal.RequireFromString(tt.wantChange)), "change %s", s.Change)
			if tt.method == MethodTransfer {
				assert.Nil(t, s.CashReceived)
			}
		})
	}
}

func TestSettle_NoRoundingLoss(t *testing.T) {
	s, err := Settle(MethodCash, decimal.RequireFromString("33.33"), dec("50.00"))
	require.NoError(t, err)
	assert.Equal(t, "16.67", s.Change.StringFixed(2))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("cash")
	require.NoError(t, err)
	assert.Equal(t, MethodCash, m)

	_, err = ParseMethod("bitcoin")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}
