package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid amount and currency", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromFloat(100.50), BRL)
		require.NoError(t, err)
		assert.Equal(t, BRL, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.NewFromFloat(100.50)))
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromFloat(100), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})
}

func TestMoney_Arithmetic(t *testing.T) {
	a := NewMoneyBRL(decimal.NewFromInt(200))
	b := NewMoneyBRL(decimal.NewFromInt(25))

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Amount().Equal(decimal.NewFromInt(225)))

	diff, err := b.Subtract(a)
	require.NoError(t, err)
	assert.True(t, diff.Amount().Equal(decimal.NewFromInt(-175)))

	other, _ := NewMoney(decimal.NewFromInt(1), "USD")
	_, err = a.Add(other)
	assert.Error(t, err)
}

func TestMoney_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(NewMoneyBRL(decimal.NewFromFloat(12.5)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"12.50","currency":"BRL"}`, string(data))
}

func TestDiverges(t *testing.T) {
	assert.False(t, Diverges(decimal.NewFromFloat(240), decimal.NewFromFloat(240.01)))
	assert.True(t, Diverges(decimal.NewFromFloat(240), decimal.NewFromFloat(240.02)))
	assert.True(t, Diverges(decimal.NewFromInt(999), decimal.NewFromInt(240)))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
		wantErr  bool
	}{
		{"nil is zero", nil, "0", false},
		{"float", 15.5, "15.5", false},
		{"int", 3, "3", false},
		{"plain string", "1234.56", "1234.56", false},
		{"brl formatted", "R$ 1.234,56", "1234.56", false},
		{"brl without space", "R$1.234,56", "1234.56", false},
		{"comma decimal", "10,5", "10.5", false},
		{"us grouping", "1,234.56", "1234.56", false},
		{"dotted thousands", "1.234.567", "1234567", false},
		{"negative", "R$ -25,00", "-25", false},
		{"empty string", "   ", "0", false},
		{"garbage", "abc", "0", true},
		{"unsupported type", []int{1}, "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedAmount)
			} else {
				require.NoError(t, err)
			}
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)), "got %s", got)
		})
	}
}
