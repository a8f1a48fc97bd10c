package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	for _, tc := range []struct {
		in      string
		seconds int64
	}{
		{"1m", 60},
		{"5m", 300},
		{"1h", 3600},
	} {
		iv, err := ParseInterval(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.seconds, iv.Seconds())
	}

	_, err := ParseInterval("15m")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	assert.Equal(t, int64(0), Interval("1d").Seconds())
}

func TestCandleMarshalJSON(t *testing.T) {
	c := Candle{
		PeriodStart: 60,
		Open:        decimal.RequireFromString("0.5"),
		High:        decimal.RequireFromString("0.6"),
		Low:         decimal.RequireFromString("0.45"),
		Close:       decimal.RequireFromString("0.55"),
		Volume:      decimal.RequireFromString("12"),
	}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"1970-01-01T00:01:00Z","o":0.5,"h":0.6,"l":0.45,"c":0.55,"v":12}`, string(data))
}

func TestEmptyOrderbook(t *testing.T) {
	v := EmptyOrderbook()
	assert.Empty(t, v.Bids)
	assert.Empty(t, v.Asks)
	assert.NotNil(t, v.Bids)
	assert.Equal(t, DefaultTickSize, v.TickSize)
	assert.Equal(t, DefaultMinOrderSize, v.MinOrderSize)
	assert.False(t, v.IsNegRisk)
	assert.Nil(t, v.AsOf)
	assert.Nil(t, v.IntegrityHash)
	assert.Equal(t, BookSourceNone, v.Source)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bids":[]`)
	assert.Contains(t, string(data), `"hash":null`)
	assert.Contains(t, string(data), `"bidTotal":0`)
	assert.Contains(t, string(data), `"askTotal":0`)
}

func TestOrderLevelAmountsAreNumbers(t *testing.T) {
	view := EmptyOrderbook()
	view.Bids = []OrderLevel{{
		Price:          decimal.RequireFromString("0.500"),
		Size:           decimal.RequireFromString("10"),
		CumulativeSize: decimal.RequireFromString("10.25"),
	}}
	view.BidTotal = decimal.RequireFromString("10.25")

	data, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded struct {
		Bids     []map[string]any `json:"bids"`
		BidTotal any              `json:"bidTotal"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Bids, 1)
	assert.Equal(t, 0.5, decoded.Bids[0]["price"])
	assert.Equal(t, 10.0, decoded.Bids[0]["size"])
	assert.Equal(t, 10.25, decoded.Bids[0]["total"])
	assert.Equal(t, 10.25, decoded.BidTotal)
}

func TestIsUpstreamFailure(t *testing.T) {
	assert.True(t, IsUpstreamFailure(fmt.Errorf("%w: /x", ErrRateLimited)))
	assert.True(t, IsUpstreamFailure(fmt.Errorf("wrap: %w", &UpstreamError{Path: "/x", Status: 500})))
	assert.True(t, IsUpstreamFailure(&TransportError{Path: "/x", Err: &net.OpError{Op: "dial"}}))
	assert.False(t, IsUpstreamFailure(errors.New("decode failed")))

	refused := errors.New("connection refused")
	te := &TransportError{Path: "/x", Err: refused}
	assert.ErrorIs(t, te, refused)
}
