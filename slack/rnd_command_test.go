package rndslack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/bcdannyboy/bahra/estimate"
	"github.com/bcdannyboy/bahra/models"
	"github.com/bcdannyboy/bahra/probability"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRNDArgs(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    rndRequest
		wantErr bool
	}{
		{name: "SYMBOL_AND_DTE", text: "spy 30", want: rndRequest{Symbol: "SPY", DTE: 30}},
		{name: "WITH_RANGE", text: " SPY 30 480 520 ", want: rndRequest{Symbol: "SPY", DTE: 30, Low: 480, High: 520, HasRange: true}},
		{name: "EMPTY", text: "", wantErr: true},
		{name: "MISSING_HIGH", text: "SPY 30 480", wantErr: true},
		{name: "BAD_DTE", text: "SPY thirty", wantErr: true},
		{name: "NEGATIVE_DTE", text: "SPY -1", wantErr: true},
		{name: "BAD_LOW", text: "SPY 30 x 520", wantErr: true},
		{name: "INVERTED_RANGE", text: "SPY 30 520 480", wantErr: true},
		{name: "BELOW_PRICE", text: "SPY 30 below 480", want: rndRequest{Symbol: "SPY", DTE: 30, Low: math.Inf(-1), High: 480, HasRange: true}},
		{name: "ABOVE_PRICE", text: "SPY 30 ABOVE 520", want: rndRequest{Symbol: "SPY", DTE: 30, Low: 520, High: math.Inf(1), HasRange: true}},
		{name: "BELOW_RETURN", text: "SPY 30 below -5%", want: rndRequest{Symbol: "SPY", DTE: 30, Low: math.Inf(-1), High: -5, HasRange: true, Returns: true}},
		{name: "RETURN_RANGE", text: "SPY 30 -5% 5%", want: rndRequest{Symbol: "SPY", DTE: 30, Low: -5, High: 5, HasRange: true, Returns: true}},
		{name: "MIXED_UNITS", text: "SPY 30 -5% 520", wantErr: true},
		{name: "BELOW_NON_POSITIVE", text: "SPY 30 below 0", wantErr: true},
		{name: "ABOVE_GARBAGE", text: "SPY 30 above x%", wantErr: true},
		{name: "INFINITE_BOUND", text: "SPY 30 480 Inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRNDArgs(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

var fitted = &estimate.Estimate{
	Ticker:        "SPY",
	DaysToExpiry:  30,
	Spot:          148,
	RiskFreeRate:  0.0531,
	Quotes:        36,
	Theta:         models.MixtureParams{A1: 4.9, B1: 0.05, A2: 5.1, B2: 0.25, Q: 0.6},
	Converged:     true,
	Status:        "FunctionConvergence",
	TotalMass:     1,
	Forward:       148.6,
	MarketForward: 148.6,
	Warnings:      []string{"unstable fit"},
}

func TestFormatEstimate(t *testing.T) {
	text := formatEstimate(fitted, rndRequest{Symbol: "SPY", DTE: 30, Low: 130, High: 140, HasRange: true})
	assert.Contains(t, text, "*SPY* 30 DTE")
	assert.Contains(t, text, "a1=4.9000")
	assert.Contains(t, text, "P(130.00 <= S_T <= 140.00)")
	assert.Contains(t, text, "Warning: unstable fit")

	assert.NotContains(t, formatEstimate(fitted, rndRequest{Symbol: "SPY", DTE: 30}), "P(")
}

func TestFormatRange(t *testing.T) {
	theta := fitted.Theta
	spot := fitted.Spot

	tests := []struct {
		name  string
		req   rndRequest
		wantP float64
		want  string
	}{
		{
			name:  "PRICE_RANGE",
			req:   rndRequest{Low: 130, High: 140, HasRange: true},
			wantP: probability.ProbabilityInRange(theta, 130, 140),
			want:  "P(130.00 <= S_T <= 140.00)",
		},
		{
			name:  "BELOW_PRICE",
			req:   rndRequest{Low: math.Inf(-1), High: 140, HasRange: true},
			wantP: probability.ProbabilityBelow(theta, 140),
			want:  "P(S_T <= 140.00)",
		},
		{
			name:  "ABOVE_PRICE",
			req:   rndRequest{Low: 148, High: math.Inf(1), HasRange: true},
			wantP: probability.ProbabilityAbove(theta, 148),
			want:  "P(S_T >= 148.00)",
		},
		{
			name:  "RETURN_RANGE",
			req:   rndRequest{Low: -10, High: 10, HasRange: true, Returns: true},
			wantP: probability.ProbabilityInRange(theta, 0.9*spot, 1.1*spot),
			want:  "P(-10.00% <= R <= 10.00%)",
		},
		{
			name:  "BELOW_RETURN",
			req:   rndRequest{Low: math.Inf(-1), High: -10, HasRange: true, Returns: true},
			wantP: probability.ProbabilityBelow(theta, 0.9*spot),
			want:  "P(R <= -10.00%)",
		},
		{
			name:  "ABOVE_RETURN",
			req:   rndRequest{Low: 10, High: math.Inf(1), HasRange: true, Returns: true},
			wantP: probability.ProbabilityAbove(theta, 1.1*spot),
			want:  "P(R >= 10.00%)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatRange(fitted, tt.req)
			assert.Contains(t, got, tt.want)
			assert.Contains(t, got, fmt.Sprintf("= %.2f%%", tt.wantP*100))
		})
	}

	// Price bounds are also reported as returns and the reverse.
	assert.Contains(t, formatRange(fitted, rndRequest{Low: math.Inf(-1), High: 133.2, HasRange: true}), "(R <= -10.00%)")
	assert.Contains(t, formatRange(fitted, rndRequest{Low: 10, High: math.Inf(1), HasRange: true, Returns: true}), "(S_T >= 162.80)")
}

type fakeEstimator struct {
	est *estimate.Estimate
	err error
}

func (f fakeEstimator) Estimate(ctx context.Context, ticker string, dte int) (*estimate.Estimate, error) {
	return f.est, f.err
}

type fakePoster struct {
	posts chan []slack.MsgOption
}

func (p *fakePoster) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	p.posts <- options
	return channelID, "1700000000.000100", nil
}

func waitPost(t *testing.T, p *fakePoster) []slack.MsgOption {
	t.Helper()
	select {
	case opts := <-p.posts:
		return opts
	case <-time.After(5 * time.Second):
		t.Fatal("no message posted")
		return nil
	}
}

func TestHandlerRND(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		estimator fakeEstimator
		text      string
		posts     int
	}{
		{name: "SUCCESS", estimator: fakeEstimator{est: fitted}, text: "SPY 30", posts: 2},
		{name: "ESTIMATE_FAILS", estimator: fakeEstimator{err: errors.New("boom")}, text: "SPY 30", posts: 2},
		{name: "USAGE", estimator: fakeEstimator{est: fitted}, text: "SPY", posts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.estimator, time.Second, logger)
			poster := &fakePoster{posts: make(chan []slack.MsgOption, 4)}

			err := h.Handle(context.Background(), slack.SlashCommand{Command: "/rnd", Text: tt.text, ChannelID: "C1"}, poster)
			require.NoError(t, err)
			for i := 0; i < tt.posts; i++ {
				waitPost(t, poster)
			}
		})
	}
}

func TestHandlerHelpAndUnknown(t *testing.T) {
	h := NewHandler(fakeEstimator{}, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	poster := &fakePoster{posts: make(chan []slack.MsgOption, 1)}

	require.NoError(t, h.Handle(context.Background(), slack.SlashCommand{Command: "/help", ChannelID: "C1"}, poster))
	assert.Len(t, waitPost(t, poster), 1)

	require.NoError(t, h.Handle(context.Background(), slack.SlashCommand{Command: "/fcs", ChannelID: "C1"}, poster))
	assert.Empty(t, poster.posts)
}
