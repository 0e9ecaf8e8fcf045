package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	t.Run("same currency", func(t *testing.T) {
		got, err := FromMinorUnits(100, "GBP").Add(FromMinorUnits(50, "GBP"))
		require.NoError(t, err)
		assert.True(t, got.Equals(FromMinorUnits(150, "GBP")))
	})

	t.Run("currency mismatch", func(t *testing.T) {
		_, err := FromMinorUnits(100, "GBP").Add(FromMinorUnits(50, "USD"))
		var cm *CurrencyMismatchError
		require.ErrorAs(t, err, &cm)
		assert.Equal(t, "GBP", cm.Left)
		assert.Equal(t, "USD", cm.Right)
	})

	t.Run("currency is normalised", func(t *testing.T) {
		got, err := FromMinorUnits(1, "gbp").Add(FromMinorUnits(2, " GBP "))
		require.NoError(t, err)
		assert.Equal(t, "GBP", got.Currency())
		assert.Equal(t, int64(3), got.MinorUnits())
	})
}

func TestSubtract(t *testing.T) {
	got, err := FromMinorUnits(100, "EUR").Subtract(FromMinorUnits(250, "EUR"))
	require.NoError(t, err)
	assert.Equal(t, int64(-150), got.MinorUnits())

	_, err = FromMinorUnits(100, "EUR").Subtract(FromMinorUnits(1, "GBP"))
	var cm *CurrencyMismatchError
	assert.ErrorAs(t, err, &cm)
}

func TestMultiplyRoundsHalfUp(t *testing.T) {
	tests := []struct {
		name   string
		minor  int64
		factor string
		want   int64
	}{
		{"exact", 1000, "0.2", 200},
		{"half rounds up", 25, "0.5", 13},
		{"above half rounds up", 4999, "0.2", 1000},
		{"below half rounds down", 1001, "0.2", 200},
		{"vat on 49.99", 4999, "0.175", 875},
		{"negative half away from zero", -25, "0.5", -13},
		{"identity", 4999, "1", 4999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromMinorUnits(tt.minor, "GBP").Multiply(decimal.RequireFromString(tt.factor))
			assert.Equal(t, tt.want, got.MinorUnits())
			assert.Equal(t, "GBP", got.Currency())
		})
	}
}

func TestMultiplyInt(t *testing.T) {
	assert.Equal(t, int64(2997), FromMinorUnits(999, "GBP").MultiplyInt(3).MinorUnits())
}

func TestSum(t *testing.T) {
	got, err := Sum("GBP", FromMinorUnits(1, "GBP"), FromMinorUnits(2, "GBP"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.MinorUnits())

	_, err = Sum("GBP", FromMinorUnits(1, "USD"))
	assert.Error(t, err)

	empty, err := Sum("JPY")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "£49.99", FromMinorUnits(4999, "GBP").Format())
	assert.Equal(t, "-€5.00", FromMinorUnits(-500, "EUR").Format())
	assert.Equal(t, "¥1200", FromMinorUnits(1200, "JPY").Format())
	assert.Equal(t, "CHF 0.05", FromMinorUnits(5, "CHF").Format())
	assert.Equal(t, "49.99", FromMinorUnits(4999, "GBP").Major())
}

func TestValidCurrency(t *testing.T) {
	assert.True(t, ValidCurrency("GBP"))
	assert.True(t, ValidCurrency("usd"))
	assert.False(t, ValidCurrency("GB"))
	assert.False(t, ValidCurrency("G8P"))
}

func TestMarshalJSON(t *testing.T) {
	b, err := json.Marshal(FromMinorUnits(4999, "GBP"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":4999,"currency":"GBP","formatted":"£49.99"}`, string(b))
}
