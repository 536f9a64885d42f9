package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		strike float64
		sigma  float64
		isCall bool
	}{
		{name: "ATM_CALL", strike: 100, sigma: 0.2, isCall: true},
		{name: "ATM_PUT", strike: 100, sigma: 0.2, isCall: false},
		{name: "OTM_CALL_LOW_VOL", strike: 110, sigma: 0.08, isCall: true},
		{name: "OTM_PUT_HIGH_VOL", strike: 60, sigma: 1.5, isCall: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := BlackScholesPrice(100, tt.strike, 0.25, 0.03, tt.sigma, tt.isCall)
			assert.InDelta(t, tt.sigma, ImpliedVolatility(price, 100, tt.strike, 0.25, 0.03, tt.isCall), 1e-6)
		})
	}
}

func TestImpliedVolatilityOutOfBounds(t *testing.T) {
	assert.True(t, math.IsNaN(ImpliedVolatility(0, 100, 100, 0.25, 0.03, true)))
	assert.True(t, math.IsNaN(ImpliedVolatility(5, 100, 100, 0, 0.03, true)))
	// A call worth more than the underlying has no implied volatility.
	assert.True(t, math.IsNaN(ImpliedVolatility(150, 100, 100, 0.25, 0.03, true)))
}

func TestBlackScholesParity(t *testing.T) {
	call := BlackScholesPrice(100, 105, 0.5, 0.04, 0.3, true)
	put := BlackScholesPrice(100, 105, 0.5, 0.04, 0.3, false)
	assert.InDelta(t, PutPriceViaParity(call, 100, 105, 0.04, 0.5), put, 1e-10)
}

func TestSmileAtGeneratingParams(t *testing.T) {
	chain := syntheticChain(trueTheta, 0.03, 30, strikeLadder(120, 180, 10))
	points := Smile(chain, 0.03, trueTheta)

	assert.NotEmpty(t, points)
	for _, p := range points {
		assert.InDelta(t, p.MarketIV, p.ModelIV, 1e-6, "strike %.0f %s", p.Strike, p.OptionType)
	}
	assert.InDelta(t, 0, SmileRMSE(points), 1e-6)
	assert.True(t, math.IsNaN(SmileRMSE(nil)))

	// A single lognormal cannot reproduce the smile of the mixture.
	flat := MixtureParams{A1: trueTheta.A1, B1: 0.15, A2: trueTheta.A1 + 0.01, B2: 0.15, Q: 0.5}
	assert.Greater(t, SmileRMSE(Smile(chain, 0.03, flat)), 1e-3)
}
