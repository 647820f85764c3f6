package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldingsMap(t *testing.T) {
	h := HoldingsMap{"MSFT": 5, "AAPL": 10}
	assert.Equal(t, []string{"AAPL", "MSFT"}, h.Tickers())
	assert.NoError(t, h.Validate())

	assert.Error(t, HoldingsMap{"AAPL": -1}.Validate())
	assert.Error(t, HoldingsMap{"AAPL": math.NaN()}.Validate())
	assert.Error(t, HoldingsMap{"": 1}.Validate())
}

func TestWeightVectorValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       WeightVector
		wantErr bool
	}{
		{"valid", WeightVector{Tickers: []string{"A", "B"}, Weights: []float64{0.25, 0.75}}, false},
		{"within tolerance", WeightVector{Tickers: []string{"A", "B"}, Weights: []float64{0.5, 0.5000001}}, false},
		{"bad sum", WeightVector{Tickers: []string{"A", "B"}, Weights: []float64{0.5, 0.6}}, true},
		{"negative", WeightVector{Tickers: []string{"A", "B"}, Weights: []float64{-0.5, 1.5}}, true},
		{"length mismatch", WeightVector{Tickers: []string{"A"}, Weights: []float64{0.5, 0.5}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValueJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}{A: NewValue(0.5), B: Undefined()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0.5,"b":null}`, string(data))

	var decoded struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.A.Defined)
	assert.Equal(t, 0.5, decoded.A.V)
	assert.False(t, decoded.B.Defined)
}

func TestNewValueRejectsNonFinite(t *testing.T) {
	assert.False(t, NewValue(math.NaN()).Defined)
	assert.False(t, NewValue(math.Inf(1)).Defined)
	assert.Equal(t, "N/A", Undefined().String())
	assert.Equal(t, "0.25", NewValue(0.25).String())
}

func TestUndefinedMetrics(t *testing.T) {
	m := UndefinedMetrics(1)
	for name, v := range m.Fields() {
		assert.False(t, v.Defined, name)
	}
	assert.Len(t, m.Fields(), 9)
}

func TestReturnTableAccessors(t *testing.T) {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	table := &ReturnTable{
		Dates:   []time.Time{d, d.AddDate(0, 0, 1)},
		Tickers: []string{"A", "B"},
		Returns: [][]float64{{0.01, 0.02}, {0.03, 0.04}},
	}

	assert.Equal(t, 2, table.Periods())
	assert.Equal(t, 2, table.Assets())
	assert.Equal(t, []float64{0.02, 0.04}, table.Row(1))
	assert.Equal(t, "B", table.Series(1).Ticker)

	m := table.Matrix()
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.03, m.At(0, 1))
}
