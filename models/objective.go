package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// IdentifiabilityPenalty is returned for any θ with a1 > a2.
const IdentifiabilityPenalty = 1e10

// CalibrationProblem holds the inputs of the objective in vector form so a
// candidate θ is scored without walking the quote records again.
type CalibrationProblem struct {
	Strikes []float64
	Market  []float64
	IsCall  []bool
	S0      float64
	R       float64
	Tau     float64
}

// NewCalibrationProblem vectorises a chain for repeated evaluation.
func NewCalibrationProblem(chain OptionChain, r float64) *CalibrationProblem {
	n := len(chain.Quotes)
	p := &CalibrationProblem{
		Strikes: make([]float64, n),
		Market:  make([]float64, n),
		IsCall:  make([]bool, n),
		S0:      chain.UnderlyingPrice,
		R:       r,
		Tau:     chain.Tau(),
	}
	for i, q := range chain.Quotes {
		p.Strikes[i] = q.Strike
		p.Market[i] = q.Mid()
		p.IsCall[i] = q.OptionType == Call
	}
	return p
}

// Evaluate scores θ: squared pricing error over all quotes plus the squared
// gap between the mixture mean and the forward.
func (p *CalibrationProblem) Evaluate(theta MixtureParams) float64 {
	if !theta.Ordered() {
		return IdentifiabilityPenalty
	}

	model := p.ModelPrices(theta, nil)
	pricing := 0.0
	if len(model) > 0 {
		d := floats.Distance(model, p.Market, 2)
		pricing = d * d
	}

	forward := p.S0 * math.Exp(p.R*p.Tau)
	meanErr := ImpliedForwardMean(theta) - forward

	return pricing + meanErr*meanErr
}

// ModelPrices fills dst with the mixture price of every quote and returns it.
func (p *CalibrationProblem) ModelPrices(theta MixtureParams, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(p.Strikes))
	}
	for i, k := range p.Strikes {
		call := MixtureCallPrice(k, p.R, p.Tau, theta)
		if p.IsCall[i] {
			dst[i] = call
		} else {
			dst[i] = PutPriceViaParity(call, p.S0, k, p.R, p.Tau)
		}
	}
	return dst
}

// Objective is the stateless form of CalibrationProblem.Evaluate.
func Objective(theta MixtureParams, chain OptionChain, r float64) float64 {
	return NewCalibrationProblem(chain, r).Evaluate(theta)
}
