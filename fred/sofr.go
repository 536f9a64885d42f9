// Package fred turns the SOFR series published by the St. Louis Fed into the
// continuously compounded risk-free rate used for discounting option prices.
package fred

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xhhuango/json"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.stlouisfed.org"
	SeriesSOFR     = "SOFR"

	// DayCount is the money-market convention SOFR accrues under.
	DayCount = 360
	// PricingYear is the year length option prices discount over
	// (tau = days/365). Rate quotes on this basis.
	PricingYear = 365

	// lookbackPad covers weekends and holidays before the horizon window so
	// the first day can be forward-filled.
	lookbackPad = 10
	dateLayout  = "2006-01-02"
)

var ErrInsufficientHistory = errors.New("not enough SOFR history for horizon")

// DailyRate is one published fixing as a decimal annual rate.
type DailyRate struct {
	Date time.Time
	Rate float64
}

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type observationsResponse struct {
	Observations []observation `json:"observations"`
}

// SOFRRateProvider implements the estimator's rate source from FRED.
type SOFRRateProvider struct {
	BaseURL    string
	APIKey     string
	Series     string
	DayCount   int
	HTTPClient *http.Client

	limiter *rate.Limiter
	now     func() time.Time
}

type Option func(*SOFRRateProvider)

func WithBaseURL(u string) Option { return func(p *SOFRRateProvider) { p.BaseURL = u } }

func WithHTTPClient(h *http.Client) Option { return func(p *SOFRRateProvider) { p.HTTPClient = h } }

func withClock(now func() time.Time) Option { return func(p *SOFRRateProvider) { p.now = now } }

func NewSOFRRateProvider(apiKey string, opts ...Option) *SOFRRateProvider {
	p := &SOFRRateProvider{
		BaseURL:    DefaultBaseURL,
		APIKey:     apiKey,
		Series:     SeriesSOFR,
		DayCount:   DayCount,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		// FRED allows 120 requests a minute per key.
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Observations downloads the fixings published between start and end
// inclusive. Missing fixings, reported by FRED as ".", are skipped.
func (p *SOFRRateProvider) Observations(ctx context.Context, start, end time.Time) ([]DailyRate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"series_id":         {p.Series},
		"api_key":           {p.APIKey},
		"file_type":         {"json"},
		"observation_start": {start.Format(dateLayout)},
		"observation_end":   {end.Format(dateLayout)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/fred/series/observations?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build FRED request: %w", err)
	}
	req.Header.Add("Accept", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call FRED: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read FRED response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FRED returned %s: %s", resp.Status, body)
	}

	var parsed observationsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal FRED response: %w", err)
	}

	rates := make([]DailyRate, 0, len(parsed.Observations))
	for _, o := range parsed.Observations {
		if o.Value == "." || o.Value == "" {
			continue
		}
		d, err := time.Parse(dateLayout, o.Date)
		if err != nil {
			return nil, fmt.Errorf("bad observation date %q: %w", o.Date, err)
		}
		pct, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("bad observation value %q on %s: %w", o.Value, o.Date, err)
		}
		rates = append(rates, DailyRate{Date: d, Rate: pct / 100})
	}
	return rates, nil
}

// Rate returns the continuously compounded rate implied by compounding the
// last horizonDays calendar days of SOFR, annualised over PricingYear so that
// exp(-Rate*horizonDays/365) is the SOFR discount factor.
func (p *SOFRRateProvider) Rate(ctx context.Context, horizonDays int) (float64, error) {
	if horizonDays < 1 {
		horizonDays = 1
	}
	end := truncateDay(p.now()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(horizonDays + lookbackPad))

	obs, err := p.Observations(ctx, start, end)
	if err != nil {
		return 0, err
	}
	grid := ForwardFill(obs, start, end)
	if len(grid) < horizonDays {
		return 0, fmt.Errorf("%w: have %d days, need %d", ErrInsufficientHistory, len(grid), horizonDays)
	}
	r := CompoundedRate(grid[len(grid)-horizonDays:], p.DayCount)
	return r * PricingYear / float64(p.DayCount), nil
}

// ForwardFill lays observations on a daily calendar from start to end,
// carrying the last fixing over days without one. Days before the first
// fixing are dropped.
func ForwardFill(obs []DailyRate, start, end time.Time) []float64 {
	start, end = truncateDay(start), truncateDay(end)
	var grid []float64
	i := 0
	last, have := 0.0, false
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for i < len(obs) && !truncateDay(obs[i].Date).After(d) {
			last, have = obs[i].Rate, true
			i++
		}
		if have {
			grid = append(grid, last)
		}
	}
	return grid
}

// CompoundedRate compounds simple daily accruals r/dayCount and converts the
// growth to a continuously compounded annual rate over len(daily)/dayCount
// years.
func CompoundedRate(daily []float64, dayCount int) float64 {
	if len(daily) == 0 || dayCount <= 0 {
		return 0
	}
	dt := 1 / float64(dayCount)
	logGrowth := 0.0
	for _, r := range daily {
		logGrowth += math.Log1p(r * dt)
	}
	tau := float64(len(daily)) * dt
	return logGrowth / tau
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StaticRate is a fixed rate for runs without FRED access.
type StaticRate float64

func (s StaticRate) Rate(context.Context, int) (float64, error) { return float64(s), nil }
