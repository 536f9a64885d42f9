package models

import (
	"math"
	"sort"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// OptionQuote is a single row of a raw option chain.
type OptionQuote struct {
	Strike          float64    `json:"strike"`
	Bid             float64    `json:"bid"`
	Ask             float64    `json:"ask"`
	OptionType      OptionType `json:"option_type"`
	DaysToExpiry    int        `json:"dte"`
	UnderlyingPrice float64    `json:"underlying_price"`
}

// Mid is the mid-quote used as the market price.
func (q OptionQuote) Mid() float64 {
	return 0.5 * (q.Bid + q.Ask)
}

// OptionChain is a calibration-ready set of quotes sharing one expiry and one
// underlying price.
type OptionChain struct {
	Quotes          []OptionQuote
	DaysToExpiry    int
	UnderlyingPrice float64
}

// Tau is the time to expiry in years.
func (c OptionChain) Tau() float64 {
	return float64(c.DaysToExpiry) / 365
}

// Forward is the no-arbitrage forward price S0*e^(r*tau).
func (c OptionChain) Forward(r float64) float64 {
	return c.UnderlyingPrice * math.Exp(r*c.Tau())
}

// MeanSpot averages the underlying price across quotes, falling back to the
// chain's own underlying price when it has none.
func (c OptionChain) MeanSpot() float64 {
	if len(c.Quotes) == 0 {
		return c.UnderlyingPrice
	}
	sum := 0.0
	for _, q := range c.Quotes {
		sum += q.UnderlyingPrice
	}
	return sum / float64(len(c.Quotes))
}

// FilterQuotes removes stale, crossed, far-from-the-money and off-expiry rows
// from a raw chain.
func FilterQuotes(raw []OptionQuote, targetExpiry int) (OptionChain, error) {
	var kept []OptionQuote
	for _, q := range raw {
		if q.Bid <= 0 || q.Ask <= 0 {
			continue
		}
		if q.Ask <= q.Bid {
			continue
		}
		if math.Abs(q.Strike-q.UnderlyingPrice) >= 0.5*q.UnderlyingPrice {
			continue
		}
		if q.DaysToExpiry != targetExpiry {
			continue
		}
		kept = append(kept, q)
	}

	if len(kept) == 0 {
		return OptionChain{}, &EmptyChainError{TargetExpiry: targetExpiry, RawRows: len(raw)}
	}

	return OptionChain{
		Quotes:          kept,
		DaysToExpiry:    targetExpiry,
		UnderlyingPrice: kept[0].UnderlyingPrice,
	}, nil
}

// Expiries lists the distinct days-to-expiry present in a raw chain, ascending.
func Expiries(raw []OptionQuote) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, q := range raw {
		if _, ok := seen[q.DaysToExpiry]; ok {
			continue
		}
		seen[q.DaysToExpiry] = struct{}{}
		out = append(out, q.DaysToExpiry)
	}
	sort.Ints(out)
	return out
}
