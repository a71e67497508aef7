package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawText_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want RawText
	}{
		{`"12.5%"`, "12.5%"},
		{`12.5`, "12.5"},
		{`-3`, "-3"},
		{`null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got RawText
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var bad RawText
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &bad))
}

func TestTraderSignal_KeepsCallComparable(t *testing.T) {
	var a, b TraderSignal
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","roi":3,"signal":{"action":"Buy","symbol":"BTCUSDT","time":"09:30"}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","roi":"4%","signal":{"action":"Buy","symbol":"BTCUSDT","time":"09:30"}}`), &b))
	assert.Equal(t, a.Signal, b.Signal)
	assert.NotEqual(t, a.ROI, b.ROI)
}
