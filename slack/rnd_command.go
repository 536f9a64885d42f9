package rndslack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bcdannyboy/bahra/estimate"
	"github.com/bcdannyboy/bahra/probability"
	"github.com/slack-go/slack"
)

const rndUsage = "Usage: /rnd <symbol> <dte> [low high | below x | above x], bounds ending in % are returns from spot"

var errUsage = errors.New(rndUsage)

// rndRequest carries an optional range question. One-sided questions use an
// infinite bound. Returns marks Low and High as percentage returns.
type rndRequest struct {
	Symbol   string
	DTE      int
	Low      float64
	High     float64
	HasRange bool
	Returns  bool
}

// parseBound reads a price, or a percentage return when it ends in %.
func parseBound(s string) (float64, bool, error) {
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("invalid bound %q. %w", s, errUsage)
	}
	return v, pct, nil
}

func parseRNDArgs(text string) (rndRequest, error) {
	args := strings.Fields(text)
	if len(args) != 2 && len(args) != 4 {
		return rndRequest{}, errUsage
	}

	req := rndRequest{Symbol: strings.ToUpper(args[0])}
	dte, err := strconv.Atoi(args[1])
	if err != nil || dte < 0 {
		return rndRequest{}, fmt.Errorf("invalid dte %q. %w", args[1], errUsage)
	}
	req.DTE = dte
	if len(args) == 2 {
		return req, nil
	}

	switch strings.ToLower(args[2]) {
	case "below", "above":
		x, pct, err := parseBound(args[3])
		if err != nil {
			return rndRequest{}, err
		}
		if !pct && x <= 0 {
			return rndRequest{}, fmt.Errorf("price %.2f must be positive", x)
		}
		req.Low, req.High = math.Inf(-1), x
		if strings.EqualFold(args[2], "above") {
			req.Low, req.High = x, math.Inf(1)
		}
		req.HasRange, req.Returns = true, pct
	default:
		low, lowPct, err := parseBound(args[2])
		if err != nil {
			return rndRequest{}, err
		}
		high, highPct, err := parseBound(args[3])
		if err != nil {
			return rndRequest{}, err
		}
		if lowPct != highPct {
			return rndRequest{}, fmt.Errorf("bounds mix prices and returns. %w", errUsage)
		}
		if high < low {
			return rndRequest{}, fmt.Errorf("low %.2f is above high %.2f", low, high)
		}
		req.Low, req.High, req.HasRange, req.Returns = low, high, true, lowPct
	}
	return req, nil
}

type RNDHandler struct {
	estimator  Estimator
	fitTimeout time.Duration
	logger     *slog.Logger
}

func NewRNDHandler(estimator Estimator, fitTimeout time.Duration, logger *slog.Logger) *RNDHandler {
	return &RNDHandler{estimator: estimator, fitTimeout: fitTimeout, logger: logger}
}

// HandleCommand replies at once and posts the fit into the thread when it
// finishes.
func (h *RNDHandler) HandleCommand(ctx context.Context, cmd slack.SlashCommand, client Poster) error {
	req, err := parseRNDArgs(cmd.Text)
	if err != nil {
		_, _, postErr := client.PostMessage(cmd.ChannelID, slack.MsgOptionText(err.Error(), false))
		return postErr
	}

	_, ts, err := client.PostMessage(cmd.ChannelID,
		slack.MsgOptionText(fmt.Sprintf("Calibrating %s %d DTE...", req.Symbol, req.DTE), false))
	if err != nil {
		return err
	}

	go h.run(ctx, req, cmd.ChannelID, ts, client)
	return nil
}

func (h *RNDHandler) run(ctx context.Context, req rndRequest, channelID, ts string, client Poster) {
	if h.fitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.fitTimeout)
		defer cancel()
	}

	var text string
	est, err := h.estimator.Estimate(ctx, req.Symbol, req.DTE)
	if err != nil {
		h.logger.Error("rnd failed", "symbol", req.Symbol, "dte", req.DTE, "error", err)
		text = fmt.Sprintf("Calibration of %s %d DTE failed: %s", req.Symbol, req.DTE, err)
	} else {
		text = formatEstimate(est, req)
	}

	if _, _, err := client.PostMessage(channelID, slack.MsgOptionText(text, false), slack.MsgOptionTS(ts)); err != nil {
		h.logger.Error("failed to post rnd result", "channel", channelID, "error", err)
	}
}

func formatEstimate(est *estimate.Estimate, req rndRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* %d DTE, spot %.2f, r %.3f%%, %d quotes\n", est.Ticker, est.DaysToExpiry, est.Spot, est.RiskFreeRate*100, est.Quotes)
	fmt.Fprintf(&b, "θ: %s\n", est.Theta)
	fmt.Fprintf(&b, "Fit: objective %.6g, %s, converged %t, %d evaluations in %s\n",
		est.ObjectiveValue, est.Status, est.Converged, est.FuncEvaluations, est.FitDuration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Forward: model %.2f / market %.2f, total mass %.4f\n", est.Forward, est.MarketForward, est.TotalMass)
	fmt.Fprintf(&b, "Quantiles: 5%% %.2f, 50%% %.2f, 95%% %.2f\n", est.P05, est.P50, est.P95)
	fmt.Fprintf(&b, "VaR95 %.2f, ES95 %.2f", est.VaR95, est.ES95)
	if req.HasRange {
		b.WriteString("\n")
		b.WriteString(formatRange(est, req))
	}
	for _, w := range est.Warnings {
		fmt.Fprintf(&b, "\nWarning: %s", w)
	}
	return b.String()
}

// formatRange answers the range question of req in both prices and returns.
func formatRange(est *estimate.Estimate, req rndRequest) string {
	if req.Returns {
		p := probability.ProbabilityOfReturn(est.Theta, est.Spot, req.Low, req.High)
		switch {
		case math.IsInf(req.Low, -1):
			return fmt.Sprintf("P(R <= %.2f%%) = %.2f%% (S_T <= %.2f)",
				req.High, p*100, probability.ReturnToPrice(est.Spot, req.High))
		case math.IsInf(req.High, 1):
			return fmt.Sprintf("P(R >= %.2f%%) = %.2f%% (S_T >= %.2f)",
				req.Low, p*100, probability.ReturnToPrice(est.Spot, req.Low))
		}
		return fmt.Sprintf("P(%.2f%% <= R <= %.2f%%) = %.2f%% (%.2f <= S_T <= %.2f)",
			req.Low, req.High, p*100,
			probability.ReturnToPrice(est.Spot, req.Low), probability.ReturnToPrice(est.Spot, req.High))
	}

	switch {
	case math.IsInf(req.Low, -1):
		p := probability.ProbabilityBelow(est.Theta, req.High)
		return fmt.Sprintf("P(S_T <= %.2f) = %.2f%% (R <= %.2f%%)",
			req.High, p*100, probability.PriceToReturn(est.Spot, req.High))
	case math.IsInf(req.High, 1):
		p := probability.ProbabilityAbove(est.Theta, req.Low)
		return fmt.Sprintf("P(S_T >= %.2f) = %.2f%% (R >= %.2f%%)",
			req.Low, p*100, probability.PriceToReturn(est.Spot, req.Low))
	}
	p := probability.ProbabilityInRange(est.Theta, req.Low, req.High)
	return fmt.Sprintf("P(%.2f <= S_T <= %.2f) = %.2f%% (%.2f%% <= R <= %.2f%%)",
		req.Low, req.High, p*100,
		probability.PriceToReturn(est.Spot, req.Low), probability.PriceToReturn(est.Spot, req.High))
}
