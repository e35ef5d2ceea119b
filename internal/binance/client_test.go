package binance

import (
	"testing"
	"time"

	api "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCandle(t *testing.T) {
	k := &api.Kline{
		OpenTime: 1756036800000,
		Open:     "64950.10",
		High:     "65321.00",
		Low:      "64820.55",
		Close:    "65000.00",
		Volume:   "1234.5678",
	}

	c, err := toCandle(k)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1756036800000).UTC(), c.OpenTime)
	assert.Equal(t, 64950.10, c.Open)
	assert.Equal(t, 65321.00, c.High)
	assert.Equal(t, 64820.55, c.Low)
	assert.Equal(t, 65000.00, c.Close)
	assert.Equal(t, 1234.5678, c.Volume)
}

func TestToCandleRejectsGarbage(t *testing.T) {
	tests := []struct {
		name  string
		kline *api.Kline
	}{
		{"bad open", &api.Kline{Open: "x", High: "1", Low: "1", Close: "1", Volume: "1"}},
		{"bad close", &api.Kline{Open: "1", High: "1", Low: "1", Close: "", Volume: "1"}},
		{"bad volume", &api.Kline{Open: "1", High: "1", Low: "1", Close: "1", Volume: "n/a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toCandle(tt.kline)
			assert.Error(t, err)
		})
	}
}
