package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quote(strike, bid, ask float64, typ OptionType, dte int) OptionQuote {
	return OptionQuote{Strike: strike, Bid: bid, Ask: ask, OptionType: typ, DaysToExpiry: dte, UnderlyingPrice: 100}
}

func TestFilterQuotes(t *testing.T) {
	for _, tc := range []struct {
		name string
		row  OptionQuote
		keep bool
	}{
		{"VALID_CALL", quote(100, 2.0, 2.2, Call, 30), true},
		{"VALID_PUT", quote(95, 1.0, 1.1, Put, 30), true},
		{"ZERO_BID", quote(100, 0, 2.2, Call, 30), false},
		{"NEGATIVE_ASK", quote(100, 2.0, -1, Call, 30), false},
		{"CROSSED", quote(100, 2.2, 2.0, Call, 30), false},
		{"LOCKED", quote(100, 2.0, 2.0, Call, 30), false},
		{"DEEP_ITM", quote(50, 50, 51, Call, 30), false},
		{"DEEP_OTM", quote(151, 0.01, 0.02, Call, 30), false},
		{"JUST_INSIDE_BAND", quote(149.99, 0.01, 0.02, Call, 30), true},
		{"OTHER_EXPIRY", quote(100, 2.0, 2.2, Call, 31), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			keeper := quote(100, 3, 3.5, Call, 30)
			chain, err := FilterQuotes([]OptionQuote{keeper, tc.row}, 30)
			require.NoError(t, err)
			if tc.keep {
				require.Len(t, chain.Quotes, 2)
			} else {
				require.Len(t, chain.Quotes, 1)
			}
			assert.Equal(t, 30, chain.DaysToExpiry)
			assert.Equal(t, 100.0, chain.UnderlyingPrice)
		})
	}
}

func TestFilterQuotesEmpty(t *testing.T) {
	raw := []OptionQuote{
		quote(100, 0, 1, Call, 30),
		quote(100, 2, 3, Call, 45),
	}
	_, err := FilterQuotes(raw, 30)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyChain))

	var empty *EmptyChainError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, 30, empty.TargetExpiry)
	assert.Equal(t, 2, empty.RawRows)

	_, err = FilterQuotes(nil, 7)
	assert.ErrorIs(t, err, ErrEmptyChain)
}

func TestExpiries(t *testing.T) {
	raw := []OptionQuote{
		quote(100, 1, 2, Call, 45),
		quote(100, 1, 2, Call, 7),
		quote(100, 1, 2, Put, 45),
		quote(100, 1, 2, Put, 30),
	}
	assert.Equal(t, []int{7, 30, 45}, Expiries(raw))
	assert.Empty(t, Expiries(nil))
}

func TestOptionChainHelpers(t *testing.T) {
	chain := OptionChain{
		Quotes:          []OptionQuote{quote(100, 1, 3, Call, 73)},
		DaysToExpiry:    73,
		UnderlyingPrice: 100,
	}
	assert.InDelta(t, 0.2, chain.Tau(), 1e-12)
	assert.InDelta(t, 100*1.0100501670841679, chain.Forward(0.05), 1e-9)
	assert.Equal(t, 2.0, chain.Quotes[0].Mid())
	assert.Equal(t, 100.0, chain.MeanSpot())
	assert.Equal(t, 42.0, OptionChain{UnderlyingPrice: 42}.MeanSpot())
}
