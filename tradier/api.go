package tradier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bcdannyboy/bahra/models"
	"github.com/xhhuango/json"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.tradier.com"

// ErrNoUnderlyingPrice is returned when the quotes endpoint has no usable price.
var ErrNoUnderlyingPrice = errors.New("no underlying price")

// Client fetches option chains from the Tradier market data API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// MinDTE and MaxDTE restrict which expirations Chain downloads. A zero
	// MaxDTE means no upper bound.
	MinDTE int
	MaxDTE int

	limiter *rate.Limiter
	now     func() time.Time
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption { return func(c *Client) { c.BaseURL = u } }

func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.HTTPClient = h } }

func WithDTEWindow(minDTE, maxDTE int) ClientOption {
	return func(c *Client) { c.MinDTE, c.MaxDTE = minDTE, maxDTE }
}

// WithRateLimit caps requests per second. Tradier allows 120 market data
// requests a minute.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func withClock(now func() time.Time) ClientOption { return func(c *Client) { c.now = now } }

func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 5),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	req.Header.Add("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	responseData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response data from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s: %s", path, resp.Status, responseData)
	}

	if err := json.Unmarshal(responseData, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data from %s: %w", path, err)
	}
	return nil
}

// Expirations lists the expiration dates of a symbol.
func (c *Client) Expirations(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{
		"symbol":          {symbol},
		"includeAllRoots": {"true"},
		"strikes":         {"true"},
		"contractSize":    {"true"},
		"expirationType":  {"true"},
	}
	expirations := &OptionExpirations{}
	if err := c.get(ctx, "/v1/markets/options/expirations", params, expirations); err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(expirations.Expirations.Expiration))
	for _, e := range expirations.Expirations.Expiration {
		dates = append(dates, e.Date)
	}
	return dates, nil
}

// OptionChain downloads the chain of one expiration.
func (c *Client) OptionChain(ctx context.Context, symbol, expiration string) (*OptionChain, error) {
	params := url.Values{
		"symbol":     {symbol},
		"expiration": {expiration},
	}
	chain := &OptionChain{ExpirationDate: expiration}
	if err := c.get(ctx, "/v1/markets/options/chains", params, chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// LastPrice returns the last trade of the underlying, falling back to the
// previous close outside trading hours.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	quotes := &QuoteResponse{}
	if err := c.get(ctx, "/v1/markets/quotes", url.Values{"symbols": {symbol}}, quotes); err != nil {
		return 0, err
	}
	q := quotes.Quotes.Quote
	switch {
	case q.Last > 0:
		return q.Last, nil
	case q.Prevclose > 0:
		return q.Prevclose, nil
	}
	return 0, fmt.Errorf("%s: %w", symbol, ErrNoUnderlyingPrice)
}

// Chain returns every quote of the symbol inside the client's DTE window as
// calibration rows.
func (c *Client) Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error) {
	spot, err := c.LastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	dates, err := c.Expirations(ctx, symbol)
	if err != nil {
		return nil, err
	}

	today := c.now()
	var quotes []models.OptionQuote
	for _, date := range dates {
		expirationTime, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expiration date %q: %w", date, err)
		}
		dte := DaysToExpiry(expirationTime, today)
		if dte < c.MinDTE || (c.MaxDTE > 0 && dte > c.MaxDTE) {
			continue
		}

		chain, err := c.OptionChain(ctx, symbol, date)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, ToQuotes(chain, spot, dte)...)
	}
	return quotes, nil
}

// DaysToExpiry counts whole days from now until the expiration date.
func DaysToExpiry(expiration, now time.Time) int {
	return int(expiration.Sub(now).Hours() / 24)
}

// ToQuotes converts a Tradier chain to calibration rows. Rows with an unknown
// option type are skipped.
func ToQuotes(chain *OptionChain, spot float64, dte int) []models.OptionQuote {
	quotes := make([]models.OptionQuote, 0, len(chain.Options.Option))
	for _, opt := range chain.Options.Option {
		var typ models.OptionType
		switch opt.OptionType {
		case "call":
			typ = models.Call
		case "put":
			typ = models.Put
		default:
			continue
		}
		quotes = append(quotes, models.OptionQuote{
			Strike:          opt.Strike,
			Bid:             opt.Bid,
			Ask:             opt.Ask,
			OptionType:      typ,
			DaysToExpiry:    dte,
			UnderlyingPrice: spot,
		})
	}
	return quotes
}
