// Package probability answers questions about the price distribution implied
// by a fitted lognormal mixture.
package probability

import (
	"math"

	"github.com/bcdannyboy/bahra/models"
)

// ProbabilityInRange is P(low <= S_T <= high). The lower bound is floored at
// models.Epsilon; an empty or inverted range has probability zero.
func ProbabilityInRange(theta models.MixtureParams, low, high float64) float64 {
	low = math.Max(low, models.Epsilon)
	if math.IsNaN(high) || high <= low {
		return 0
	}
	p := models.MixtureCdf(high, theta) - models.MixtureCdf(low, theta)
	return math.Max(p, 0)
}

// ProbabilityBelow is P(S_T <= x).
func ProbabilityBelow(theta models.MixtureParams, x float64) float64 {
	return ProbabilityInRange(theta, 0, x)
}

// ProbabilityAbove is P(S_T >= x).
func ProbabilityAbove(theta models.MixtureParams, x float64) float64 {
	return ProbabilityInRange(theta, x, math.Inf(1))
}

// ReturnToPrice converts a percentage return from spot into a price.
func ReturnToPrice(spot, pct float64) float64 {
	return spot * (1 + pct/100)
}

// PriceToReturn converts a price into a percentage return from spot.
func PriceToReturn(spot, price float64) float64 {
	return (price/spot - 1) * 100
}

// ProbabilityOfReturn is the probability that the return from spot ends in
// [lowPct, highPct]. Infinite bounds are allowed.
func ProbabilityOfReturn(theta models.MixtureParams, spot, lowPct, highPct float64) float64 {
	low := 0.0
	if !math.IsInf(lowPct, -1) {
		low = ReturnToPrice(spot, lowPct)
	}
	high := math.Inf(1)
	if !math.IsInf(highPct, 1) {
		high = ReturnToPrice(spot, highPct)
	}
	return ProbabilityInRange(theta, low, high)
}

// Quantile returns the price x with P(S_T <= x) = p, by bisection on the
// mixture CDF in log-price space.
func Quantile(theta models.MixtureParams, p float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return math.Inf(1)
	}

	spread := 12 * math.Max(theta.B1, theta.B2)
	lo := math.Min(theta.A1, theta.A2) - spread
	hi := math.Max(theta.A1, theta.A2) + spread
	for i := 0; i < 200 && hi-lo > 1e-12; i++ {
		mid := 0.5 * (lo + hi)
		if models.MixtureCdf(math.Exp(mid), theta) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return math.Exp(0.5 * (lo + hi))
}

// Point is one sample of the density curve.
type Point struct {
	Price   float64 `json:"price"`
	Return  float64 `json:"return_pct"`
	Density float64 `json:"density"`
}

// DensityCurve samples the density on n evenly spaced prices in
// [0.01, 2.5*spot] for plotting.
func DensityCurve(theta models.MixtureParams, spot float64, n int) []Point {
	if n < 2 {
		n = 2
	}
	lo, hi := 0.01, 2.5*spot
	step := (hi - lo) / float64(n-1)

	points := make([]Point, n)
	for i := range points {
		s := lo + float64(i)*step
		points[i] = Point{
			Price:   s,
			Return:  PriceToReturn(spot, s),
			Density: models.MixturePdf(s, theta),
		}
	}
	return points
}
