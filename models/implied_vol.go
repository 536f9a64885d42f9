package models

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	ivMaxIterations = 100
	ivTolerance     = 1e-8
	ivLow           = 1e-4
	ivHigh          = 5.0
)

// BlackScholesPrice prices a European option on a non-dividend underlying.
func BlackScholesPrice(spot, strike, tau, r, sigma float64, isCall bool) float64 {
	d1 := (math.Log(spot/strike) + (r+0.5*sigma*sigma)*tau) / (sigma * math.Sqrt(tau))
	d2 := d1 - sigma*math.Sqrt(tau)

	if isCall {
		return spot*normCDF(d1) - strike*math.Exp(-r*tau)*normCDF(d2)
	}
	return strike*math.Exp(-r*tau)*normCDF(-d2) - spot*normCDF(-d1)
}

func blackScholesVega(spot, strike, tau, r, sigma float64) float64 {
	d1 := (math.Log(spot/strike) + (r+0.5*sigma*sigma)*tau) / (sigma * math.Sqrt(tau))
	return spot * distuv.UnitNormal.Prob(d1) * math.Sqrt(tau)
}

// ImpliedVolatility inverts BlackScholesPrice. Newton steps on vega are tried
// first; if they stall the root is bisected on [1e-4, 5]. NaN means the price
// is outside the no-arbitrage bounds of that bracket.
func ImpliedVolatility(price, spot, strike, tau, r float64, isCall bool) float64 {
	if price <= 0 || tau <= 0 || spot <= 0 || strike <= 0 {
		return math.NaN()
	}

	sigma := 0.5
	for i := 0; i < ivMaxIterations; i++ {
		diff := BlackScholesPrice(spot, strike, tau, r, sigma, isCall) - price
		if math.Abs(diff) < ivTolerance {
			return sigma
		}
		vega := blackScholesVega(spot, strike, tau, r, sigma)
		if vega < 1e-12 {
			break
		}
		sigma -= diff / vega
		if sigma <= 0 || sigma > ivHigh {
			break
		}
	}

	lo, hi := ivLow, ivHigh
	fLo := BlackScholesPrice(spot, strike, tau, r, lo, isCall) - price
	fHi := BlackScholesPrice(spot, strike, tau, r, hi, isCall) - price
	if fLo > 0 || fHi < 0 {
		return math.NaN()
	}
	for i := 0; i < 200 && hi-lo > 1e-10; i++ {
		mid := 0.5 * (lo + hi)
		if BlackScholesPrice(spot, strike, tau, r, mid, isCall)-price < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}

// SmilePoint compares the market and fitted implied volatility of one quote.
type SmilePoint struct {
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	MarketIV   float64    `json:"market_iv"`
	ModelIV    float64    `json:"model_iv"`
}

// Smile reprices every quote of the chain under theta and backs out both
// implied volatilities. Quotes where either inversion fails are left out.
func Smile(chain OptionChain, r float64, theta MixtureParams) []SmilePoint {
	problem := NewCalibrationProblem(chain, r)
	model := problem.ModelPrices(theta, nil)

	points := make([]SmilePoint, 0, len(chain.Quotes))
	for i, q := range chain.Quotes {
		isCall := problem.IsCall[i]
		mkt := ImpliedVolatility(problem.Market[i], problem.S0, q.Strike, problem.Tau, r, isCall)
		mdl := ImpliedVolatility(model[i], problem.S0, q.Strike, problem.Tau, r, isCall)
		if math.IsNaN(mkt) || math.IsNaN(mdl) {
			continue
		}
		points = append(points, SmilePoint{Strike: q.Strike, OptionType: q.OptionType, MarketIV: mkt, ModelIV: mdl})
	}
	return points
}

// SmileRMSE is the root mean square implied volatility error over points, NaN
// when there are none.
func SmileRMSE(points []SmilePoint) float64 {
	if len(points) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, p := range points {
		d := p.ModelIV - p.MarketIV
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(points)))
}
