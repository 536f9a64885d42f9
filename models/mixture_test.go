package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trueTheta = MixtureParams{A1: 4.9, B1: 0.05, A2: 5.1, B2: 0.25, Q: 0.6}

func blackScholesCall(s, k, t, r, sigma float64) float64 {
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
	d2 := d1 - sigma*math.Sqrt(t)
	return s*normCDF(d1) - k*math.Exp(-r*t)*normCDF(d2)
}

func TestLognormalCallPriceMatchesBlackScholes(t *testing.T) {
	s0, r, tau, sigma := 100.0, 0.03, 0.5, 0.2
	a := math.Log(s0) + (r-0.5*sigma*sigma)*tau
	b := sigma * math.Sqrt(tau)

	for _, k := range []float64{70, 90, 100, 110, 140} {
		got := LognormalCallPrice(k, r, tau, a, b)
		assert.InDelta(t, blackScholesCall(s0, k, tau, r, sigma), got, 1e-9, "strike %.0f", k)
	}
}

func TestLognormalCallPriceDegenerateLimit(t *testing.T) {
	r, tau, a := 0.03, 30.0/365, math.Log(100)
	discount := math.Exp(-r * tau)

	for _, k := range []float64{80, 95, 105, 120} {
		limit := discount * math.Max(math.Exp(a)-k, 0)

		assert.Equal(t, limit, LognormalCallPrice(k, r, tau, a, Epsilon/10), "strike %.0f below floor", k)
		assert.Equal(t, limit, LognormalCallPrice(k, r, tau, a, 0), "strike %.0f zero vol", k)
		assert.InDelta(t, limit, LognormalCallPrice(k, r, tau, a, 1e-4), 1e-6, "strike %.0f small vol", k)
	}
}

func TestPutCallParity(t *testing.T) {
	thetas := []MixtureParams{
		trueTheta,
		{A1: 4.2, B1: 0.3, A2: 4.8, B2: 0.1, Q: 0.2},
		{A1: 4.6, B1: 0.5, A2: 4.6, B2: 0.5, Q: 1},
	}
	for _, theta := range thetas {
		for _, tc := range []struct{ s0, r, tau float64 }{{148, 0.03, 30.0 / 365}, {100, 0, 1}, {55, 0.07, 0.25}} {
			for _, k := range []float64{40, 90, 100, 150, 210} {
				call := MixtureCallPrice(k, tc.r, tc.tau, theta)
				put := PutPriceViaParity(call, tc.s0, k, tc.r, tc.tau)
				assert.InDelta(t, tc.s0-k*math.Exp(-tc.r*tc.tau), call-put, 1e-9)
			}
		}
	}
}

func TestMixturePdfNonNegative(t *testing.T) {
	thetas := []MixtureParams{
		trueTheta,
		{A1: 0, B1: 2, A2: 1, B2: 0.01, Q: 0},
		{A1: -1, B1: 1e-6, A2: 3, B2: 3, Q: 0.5},
	}
	for _, theta := range thetas {
		for s := 0.01; s < 1000; s *= 1.07 {
			v := MixturePdf(s, theta)
			require.False(t, math.IsNaN(v), "pdf(%g) is NaN for %s", s, theta)
			require.GreaterOrEqual(t, v, 0.0, "pdf(%g) for %s", s, theta)
		}
	}
	assert.Zero(t, MixturePdf(0, trueTheta))
	assert.Zero(t, MixturePdf(-3, trueTheta))
}

func TestMixtureCdf(t *testing.T) {
	assert.Zero(t, MixtureCdf(0, trueTheta))
	assert.InDelta(t, 1, MixtureCdf(1e6, trueTheta), 1e-12)
	assert.InDelta(t, trueTheta.Q*0.5+(1-trueTheta.Q)*MixtureCdf(math.Exp(4.9), MixtureParams{A1: 5.1, B1: 0.25, A2: 5.1, B2: 0.25, Q: 1}),
		MixtureCdf(math.Exp(4.9), trueTheta), 1e-12)
}

func TestImpliedForwardMean(t *testing.T) {
	want := 0.6*math.Exp(4.9+0.5*0.05*0.05) + 0.4*math.Exp(5.1+0.5*0.25*0.25)
	assert.InDelta(t, want, ImpliedForwardMean(trueTheta), 1e-12)

	// The discounted forward equals the zero-strike call.
	r, tau := 0.03, 30.0/365
	assert.InDelta(t, math.Exp(-r*tau)*want, MixtureCallPrice(1e-12, r, tau, trueTheta), 1e-8)
}

func TestMixtureParamsValidate(t *testing.T) {
	for _, tc := range []struct {
		name  string
		theta MixtureParams
		ok    bool
	}{
		{"VALID", trueTheta, true},
		{"ZERO_B1", MixtureParams{A1: 1, B1: 0, A2: 2, B2: 1, Q: 0.5}, false},
		{"NEGATIVE_B2", MixtureParams{A1: 1, B1: 1, A2: 2, B2: -1, Q: 0.5}, false},
		{"Q_ABOVE_ONE", MixtureParams{A1: 1, B1: 1, A2: 2, B2: 1, Q: 1.1}, false},
		{"NAN", MixtureParams{A1: math.NaN(), B1: 1, A2: 2, B2: 1, Q: 0.5}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.theta.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestMixtureParamsVector(t *testing.T) {
	assert.Equal(t, []float64{4.9, 0.05, 5.1, 0.25, 0.6}, trueTheta.Vector())
}
