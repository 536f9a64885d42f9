// Package estimate drives calibrations against live market data: it pulls a
// chain and a risk-free rate from the configured providers, fits the mixture
// for one or many expiries and summarises the implied density.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/bcdannyboy/bahra/models"
	"github.com/bcdannyboy/bahra/probability"
	"golang.org/x/exp/rand"
)

// ChainProvider returns every raw quote listed for a ticker.
type ChainProvider interface {
	Chain(ctx context.Context, ticker string) ([]models.OptionQuote, error)
}

// RateProvider returns the continuously compounded risk-free rate for a
// horizon in calendar days.
type RateProvider interface {
	Rate(ctx context.Context, horizonDays int) (float64, error)
}

const (
	riskSimulations = 20000
	riskConfidence  = 0.95
	// massSimulations draws cross-check the quadrature mass of a fit that
	// failed the mass check.
	massSimulations = 200000
	curvePoints     = 200
)

// ErrNoExpiries is returned by EstimateAll when the chain has no expiry in
// the requested window.
var ErrNoExpiries = errors.New("no expiries in window")

// Estimate summarises one fitted expiry.
type Estimate struct {
	Ticker       string  `json:"ticker"`
	DaysToExpiry int     `json:"days_to_expiry"`
	Spot         float64 `json:"spot"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	Quotes       int     `json:"quotes"`

	Theta           models.MixtureParams `json:"theta"`
	ObjectiveValue  float64              `json:"objective_value"`
	Converged       bool                 `json:"converged"`
	Status          string               `json:"status"`
	Iterations      int                  `json:"iterations"`
	FuncEvaluations int                  `json:"func_evaluations"`
	FitDuration     time.Duration        `json:"fit_duration"`

	TotalMass     float64 `json:"total_mass"`
	Forward       float64 `json:"forward"`
	MarketForward float64 `json:"market_forward"`
	P05           float64 `json:"p05"`
	P50           float64 `json:"p50"`
	P95           float64 `json:"p95"`
	// VaR95 and ES95 are per-unit losses against spot at expiry under the
	// fitted density.
	VaR95 float64 `json:"var95"`
	ES95  float64 `json:"es95"`
	// MonteCarloMass is the sampled mass on [ε, 50·spot], set only when the
	// quadrature mass check failed.
	MonteCarloMass *float64 `json:"monte_carlo_mass,omitempty"`
	// SmileRMSE is nil when no quote could be inverted to a volatility.
	SmileRMSE *float64            `json:"smile_rmse,omitempty"`
	Smile     []models.SmilePoint `json:"smile,omitempty"`
	// Curve samples the fitted density on [0.01, 2.5·spot] for plotting.
	Curve []probability.Point `json:"curve,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Estimator wires providers to the calibrator.
type Estimator struct {
	Chains   ChainProvider
	Rates    RateProvider
	Logger   *slog.Logger
	Settings models.CalibrationSettings
	// Workers bounds concurrent fits in EstimateAll. Zero uses the number of
	// logical CPUs.
	Workers int
}

// New builds an Estimator with the default calibration settings. A nil logger
// falls back to slog.Default, as does a zero Logger on a struct literal.
func New(chains ChainProvider, rates RateProvider, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		Chains:   chains,
		Rates:    rates,
		Logger:   logger,
		Settings: models.DefaultCalibrationSettings,
	}
}

// Estimate fits the expiry dte days out.
func (e *Estimator) Estimate(ctx context.Context, ticker string, dte int) (*Estimate, error) {
	raw, err := e.Chains.Chain(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain for %s: %w", ticker, err)
	}
	return e.fitExpiry(ctx, ticker, raw, dte)
}

func (e *Estimator) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// sampleSeed derives a sampling seed from the expiry so repeated runs on the same
// inputs report the same risk figures.
func sampleSeed(ticker string, dte int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d", ticker, dte)
	return h.Sum64()
}

func (e *Estimator) fitExpiry(ctx context.Context, ticker string, raw []models.OptionQuote, dte int) (*Estimate, error) {
	log := e.logger().With("ticker", ticker, "dte", dte)

	chain, err := models.FilterQuotes(raw, dte)
	if err != nil {
		return nil, err
	}
	r, err := e.Rates.Rate(ctx, dte)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch risk-free rate for %d days: %w", dte, err)
	}
	log.Debug("calibrating", "quotes", len(chain.Quotes), "spot", chain.UnderlyingPrice, "rate", r)

	start := time.Now()
	res, err := e.fit(ctx, chain, r)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	spot := chain.MeanSpot()
	mass := probability.Diagnose(&res, spot)
	for _, w := range res.Warnings {
		log.Warn("calibration warning", "error", w)
	}
	log.Info("calibrated",
		"theta", res.Theta.String(),
		"objective", res.ObjectiveValue,
		"converged", res.Converged,
		"status", res.Status,
		"duration", elapsed,
	)

	est := &Estimate{
		Ticker:          ticker,
		DaysToExpiry:    dte,
		Spot:            spot,
		RiskFreeRate:    r,
		Quotes:          len(chain.Quotes),
		Theta:           res.Theta,
		ObjectiveValue:  res.ObjectiveValue,
		Converged:       res.Converged,
		Status:          res.Status,
		Iterations:      res.Iterations,
		FuncEvaluations: res.FuncEvaluations,
		FitDuration:     elapsed,
		TotalMass:       mass,
		Forward:         models.ImpliedForwardMean(res.Theta),
		MarketForward:   chain.Forward(r),
		P05:             probability.Quantile(res.Theta, 0.05),
		P50:             probability.Quantile(res.Theta, 0.50),
		P95:             probability.Quantile(res.Theta, 0.95),
	}

	seed := sampleSeed(ticker, dte)
	if mc := crossCheckMass(res, spot, seed); mc != nil {
		est.MonteCarloMass = mc
		log.Warn("sampled mass of unstable fit", "quadrature", mass, "monte_carlo", *mc)
	}

	sims := probability.Sample(res.Theta, riskSimulations, rand.NewSource(seed))
	est.VaR95 = probability.ValueAtRisk(sims, spot, riskConfidence)
	est.ES95 = probability.ExpectedShortfall(sims, spot, riskConfidence)

	est.Smile = models.Smile(chain, r, res.Theta)
	if rmse := models.SmileRMSE(est.Smile); !math.IsNaN(rmse) {
		est.SmileRMSE = &rmse
	}

	est.Curve = probability.DensityCurve(res.Theta, spot, curvePoints)

	for _, w := range res.Warnings {
		est.Warnings = append(est.Warnings, w.Error())
	}
	return est, nil
}

// crossCheckMass samples the mass on [ε, 50·spot] of a fit that raised
// warnings. It returns nil for a clean fit.
func crossCheckMass(res models.CalibrationResult, spot float64, seed uint64) *float64 {
	if len(res.Warnings) == 0 {
		return nil
	}
	mc := probability.MonteCarloProbabilityInRange(res.Theta, models.Epsilon, spot*probability.TailMultiple, massSimulations, seed)
	return &mc
}

type fitOutcome struct {
	res models.CalibrationResult
	err error
}

// fit runs the calibration off the caller's goroutine so a cancelled context
// returns immediately. The deadline also caps the optimizer runtime so the
// abandoned goroutine winds down.
func (e *Estimator) fit(ctx context.Context, chain models.OptionChain, r float64) (models.CalibrationResult, error) {
	settings := e.Settings
	if dl, ok := ctx.Deadline(); ok {
		remaining := time.Until(dl)
		if remaining <= 0 {
			return models.CalibrationResult{}, context.DeadlineExceeded
		}
		if settings.Runtime == 0 || remaining < settings.Runtime {
			settings.Runtime = remaining
		}
	}

	done := make(chan fitOutcome, 1)
	go func() {
		res, err := models.FitWithSettings(chain, r, settings)
		done <- fitOutcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return models.CalibrationResult{}, ctx.Err()
	case out := <-done:
		return out.res, out.err
	}
}
