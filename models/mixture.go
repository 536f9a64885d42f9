package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Epsilon is the floor applied to log-price volatilities and to the lower
// integration bound of the density.
const Epsilon = 1e-6

// MixtureParams is the parameter vector of a two-component lognormal mixture.
// Component i has ln(S_T) ~ Normal(A_i, B_i^2) and component 1 carries weight Q.
type MixtureParams struct {
	A1 float64 // Mean of log-price, component 1
	B1 float64 // Std dev of log-price, component 1
	A2 float64 // Mean of log-price, component 2
	B2 float64 // Std dev of log-price, component 2
	Q  float64 // Weight of component 1
}

// Vector returns θ in [a1, b1, a2, b2, q] order.
func (p MixtureParams) Vector() []float64 {
	return []float64{p.A1, p.B1, p.A2, p.B2, p.Q}
}

// Validate reports whether θ describes a proper mixture.
func (p MixtureParams) Validate() error {
	for _, v := range p.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("mixture params %v: non-finite value", p)
		}
	}
	if p.B1 <= 0 || p.B2 <= 0 {
		return fmt.Errorf("mixture params %v: log-price std dev must be positive", p)
	}
	if p.Q < 0 || p.Q > 1 {
		return fmt.Errorf("mixture params %v: weight %.4f outside [0, 1]", p, p.Q)
	}
	return nil
}

// Ordered reports whether the identifiability constraint a1 <= a2 holds.
func (p MixtureParams) Ordered() bool {
	return p.A1 <= p.A2
}

func (p MixtureParams) String() string {
	return fmt.Sprintf("a1=%.4f b1=%.4f a2=%.4f b2=%.4f q=%.4f", p.A1, p.B1, p.A2, p.B2, p.Q)
}

// LognormalCallPrice is the discounted expected call payoff when
// ln(S_T) ~ Normal(a, b^2). Below Epsilon the distribution collapses to a
// point mass at e^a.
func LognormalCallPrice(strike, r, tau, a, b float64) float64 {
	discount := math.Exp(-r * tau)
	if b < Epsilon {
		return discount * math.Max(math.Exp(a)-strike, 0)
	}

	d1 := (a - math.Log(strike) + b*b) / b
	d2 := d1 - b
	mean := math.Exp(a + 0.5*b*b)

	return discount * (mean*normCDF(d1) - strike*normCDF(d2))
}

// MixtureCallPrice prices a call under the mixture as the weighted sum of the
// component prices.
func MixtureCallPrice(strike, r, tau float64, theta MixtureParams) float64 {
	return theta.Q*LognormalCallPrice(strike, r, tau, theta.A1, theta.B1) +
		(1-theta.Q)*LognormalCallPrice(strike, r, tau, theta.A2, theta.B2)
}

// PutPriceViaParity derives a put price from a call on the same strike.
func PutPriceViaParity(call, spot, strike, r, tau float64) float64 {
	return call - spot + strike*math.Exp(-r*tau)
}

// MixturePdf evaluates the mixture density at s. It is zero for s <= 0.
func MixturePdf(s float64, theta MixtureParams) float64 {
	if s <= 0 {
		return 0
	}
	return theta.Q*lognormalPdf(s, theta.A1, theta.B1) + (1-theta.Q)*lognormalPdf(s, theta.A2, theta.B2)
}

// MixtureCdf is P(S_T <= s) under the mixture.
func MixtureCdf(s float64, theta MixtureParams) float64 {
	if s <= 0 {
		return 0
	}
	return theta.Q*lognormalCdf(s, theta.A1, theta.B1) + (1-theta.Q)*lognormalCdf(s, theta.A2, theta.B2)
}

// ImpliedForwardMean is the first moment of the mixture.
func ImpliedForwardMean(theta MixtureParams) float64 {
	return theta.Q*math.Exp(theta.A1+0.5*theta.B1*theta.B1) +
		(1-theta.Q)*math.Exp(theta.A2+0.5*theta.B2*theta.B2)
}

func lognormalPdf(s, a, b float64) float64 {
	if b < Epsilon {
		return 0
	}
	return distuv.LogNormal{Mu: a, Sigma: b}.Prob(s)
}

func lognormalCdf(s, a, b float64) float64 {
	if b < Epsilon {
		if math.Log(s) >= a {
			return 1
		}
		return 0
	}
	return distuv.LogNormal{Mu: a, Sigma: b}.CDF(s)
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}
