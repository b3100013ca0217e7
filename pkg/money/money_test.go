package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		minor    int64
		currency string
	}{
		{"positive cents", 1234, USD},
		{"zero", 0, USD},
		{"negative cents", -5000, EUR},
		{"large amount", 999999999, GBP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.minor, tt.currency)
			assert.Equal(t, tt.minor, m.Amount())
			assert.Equal(t, tt.currency, m.Currency())
		})
	}
}

func TestParseMinor(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  int64
		error bool
	}{
		{"plain decimal", "42.50", 4250, false},
		{"negative decimal", "-42.50", -4250, false},
		{"whole number", "100.00", 10000, false},
		{"no fraction", "17", 1700, false},
		{"thousands separator", "1,234.56", 123456, false},
		{"european format", "1.234,56", 123456, false},
		{"european decimal comma", "42,50", 4250, false},
		{"comma as thousands", "1,234", 123400, false},
		{"currency symbol", "€99.95", 9995, false},
		{"dollar with spaces", "$ 1 234.00", 123400, false},
		{"parenthesised negative", "(42.50)", -4250, false},
		{"three decimals rounds", "1.005", 101, false},
		{"empty", "", 0, true},
		{"garbage", "n/a", 0, true},
		{"double dash", "--5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMinor(tt.raw)
			if tt.error {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMinorDeterministic(t *testing.T) {
	first, err := ParseMinor("-42.50")
	require.NoError(t, err)
	second, err := ParseMinor("-42.50")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAdd(t *testing.T) {
	sum, err := New(1000, EUR).Add(New(-250, EUR))
	require.NoError(t, err)
	assert.Equal(t, int64(750), sum.Amount())

	_, err = New(1000, EUR).Add(New(100, USD))
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.NotEmpty(t, Format(-4250, EUR))
	assert.Contains(t, Format(10000, USD), "100.00")
}

func TestIsNegative(t *testing.T) {
	assert.True(t, New(-1, USD).IsNegative())
	assert.False(t, New(0, USD).IsNegative())
	assert.False(t, New(1, USD).IsNegative())
}
