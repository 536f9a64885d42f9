package models

import (
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// CalibrationResult is the outcome of a Fit.
//
// Status names the termination of the stage Converged reports on. The BFGS
// polish only takes it over when the polish itself converged; its own
// termination is always in PolishStatus.
//
// Warnings carries non-fatal diagnostics. Fit leaves it empty; the density
// mass check in probability.Diagnose appends to it.
type CalibrationResult struct {
	Theta           MixtureParams
	ObjectiveValue  float64
	Converged       bool
	Status          string
	PolishStatus    string
	Iterations      int
	FuncEvaluations int
	Warnings        []error
}

// CalibrationSettings bounds the optimizer. Zero values take the defaults.
type CalibrationSettings struct {
	MaxIterations  int
	MaxEvaluations int
	Runtime        time.Duration
	SkipPolish     bool
}

// DefaultCalibrationSettings are used by Fit.
var DefaultCalibrationSettings = CalibrationSettings{
	MaxIterations:  5000,
	MaxEvaluations: 20000,
}

const (
	minComponentGap = 1e-3
	// A fresh simplex around the previous best lets Nelder-Mead escape a
	// collapsed simplex.
	simplexRestarts = 2
)

// InitialGuess brackets the spot in log space: component 1 starts below it,
// component 2 above.
func InitialGuess(chain OptionChain) MixtureParams {
	logSpot := math.Log(chain.MeanSpot())
	a1, a2 := 0.9*logSpot, 1.1*logSpot
	if a1 > a2 {
		a1, a2 = a2, a1
	}
	return MixtureParams{A1: a1, B1: 0.2, A2: a2, B2: 0.5, Q: 0.5}
}

// Fit calibrates the mixture to the chain with the default settings. It does
// not check that the fitted density integrates to one; run
// probability.Diagnose on the result for that.
func Fit(chain OptionChain, r float64) (CalibrationResult, error) {
	return FitWithSettings(chain, r, DefaultCalibrationSettings)
}

// FitWithSettings runs Nelder-Mead searches followed by a BFGS polish from
// InitialGuess. Only a local optimum is sought. The best point found is
// returned even when the optimizer did not report convergence.
func FitWithSettings(chain OptionChain, r float64, settings CalibrationSettings) (CalibrationResult, error) {
	if len(chain.Quotes) == 0 {
		return CalibrationResult{}, &EmptyChainError{TargetExpiry: chain.DaysToExpiry}
	}
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = DefaultCalibrationSettings.MaxIterations
	}
	if settings.MaxEvaluations <= 0 {
		settings.MaxEvaluations = DefaultCalibrationSettings.MaxEvaluations
	}

	problem := NewCalibrationProblem(chain, r)
	f := func(x []float64) float64 {
		v := problem.Evaluate(fromFree(x))
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	x0 := toFree(InitialGuess(chain))
	best := CalibrationResult{
		Theta:          fromFree(x0),
		ObjectiveValue: f(x0),
		Status:         optimize.NotTerminated.String(),
	}
	bestX := x0

	status := optimize.NotTerminated
	var err error
	for i := 0; i < simplexRestarts; i++ {
		var nm *optimize.Result
		nm, err = optimize.Minimize(optimize.Problem{Func: f}, bestX, optimizerSettings(settings), &optimize.NelderMead{})
		if nm == nil {
			return CalibrationResult{}, &OptimizationError{Status: status, Err: err}
		}
		status = nm.Status
		best.Iterations += nm.Stats.MajorIterations
		best.FuncEvaluations += nm.Stats.FuncEvaluations
		if !accept(nm, best.ObjectiveValue) {
			break
		}
		bestX = nm.X
		best.Theta = fromFree(nm.X)
		best.ObjectiveValue = nm.F
		best.Status = nm.Status.String()
		best.Converged = err == nil && converged(nm.Status)
	}

	if !settings.SkipPolish && !math.IsInf(best.ObjectiveValue, 0) {
		grad := func(g, x []float64) {
			fd.Gradient(g, f, x, &fd.Settings{Formula: fd.Central})
		}
		// BFGS often ends in a line search failure once the residual is at
		// machine precision; that is not fatal.
		polish, err := optimize.Minimize(optimize.Problem{Func: f, Grad: grad}, bestX, optimizerSettings(settings), &optimize.BFGS{})
		if polish != nil {
			best.Iterations += polish.Stats.MajorIterations
			best.FuncEvaluations += polish.Stats.FuncEvaluations
			best.PolishStatus = polish.Status.String()
			if accept(polish, best.ObjectiveValue) {
				best.Theta = fromFree(polish.X)
				best.ObjectiveValue = polish.F
				if err == nil && converged(polish.Status) {
					best.Status = polish.Status.String()
					best.Converged = true
					status = polish.Status
				}
			}
		}
	}

	return checkResult(best, status, err)
}

// checkResult rejects a fit whose objective is not finite or whose θ is not a
// proper mixture.
func checkResult(best CalibrationResult, status optimize.Status, err error) (CalibrationResult, error) {
	if math.IsNaN(best.ObjectiveValue) || math.IsInf(best.ObjectiveValue, 0) {
		if err == nil {
			err = errNonFinite
		}
		return CalibrationResult{}, &OptimizationError{Status: status, Err: err}
	}
	if verr := best.Theta.Validate(); verr != nil {
		return CalibrationResult{}, &OptimizationError{Status: status, Err: verr}
	}
	return best, nil
}

func optimizerSettings(s CalibrationSettings) *optimize.Settings {
	return &optimize.Settings{
		MajorIterations: s.MaxIterations,
		FuncEvaluations: s.MaxEvaluations,
		Runtime:         s.Runtime,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 200,
		},
	}
}

func accept(res *optimize.Result, current float64) bool {
	if res == nil || res.X == nil {
		return false
	}
	if math.IsNaN(res.F) || math.IsInf(res.F, 0) {
		return false
	}
	return res.F <= current
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success,
		optimize.FunctionThreshold,
		optimize.FunctionConvergence,
		optimize.GradientThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge:
		return true
	}
	return false
}

// The optimizer works on an unconstrained vector u with
//
//	a1 = u0, a2 = a1 + softplus(u1), b_i = Epsilon + softplus(u_{i+1}), q = logistic(u4)
//
// so a1 <= a2, b_i >= Epsilon and q in [0, 1] hold at every step.
func toFree(p MixtureParams) []float64 {
	return []float64{
		p.A1,
		softplusInv(math.Max(p.A2-p.A1, minComponentGap)),
		softplusInv(p.B1 - Epsilon),
		softplusInv(p.B2 - Epsilon),
		logit(p.Q),
	}
}

func fromFree(u []float64) MixtureParams {
	return MixtureParams{
		A1: u[0],
		A2: u[0] + softplus(u[1]),
		B1: Epsilon + softplus(u[2]),
		B2: Epsilon + softplus(u[3]),
		Q:  logistic(u[4]),
	}
}

func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func softplusInv(y float64) float64 {
	if y > 30 {
		return y
	}
	return math.Log(math.Expm1(math.Max(y, 1e-12)))
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(q float64) float64 {
	q = math.Min(math.Max(q, 1e-9), 1-1e-9)
	return math.Log(q / (1 - q))
}
