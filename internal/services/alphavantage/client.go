// Package alphavantage fetches daily FX rate history from the Alpha
// Vantage API, gated by the call budget tracker.
package alphavantage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jmagid/ratedash/internal/logger"
	"github.com/jmagid/ratedash/internal/models"
	"github.com/jmagid/ratedash/internal/services/budget"
)

const defaultBaseURL = "https://www.alphavantage.co"

// ProviderError is a failed or rejected provider response. The payload
// fields matter more than the HTTP status: Alpha Vantage reports both
// rate limiting and bad requests inside a 200 body.
type ProviderError struct {
	StatusCode  int
	Message     string
	RateLimited bool
}

func (e *ProviderError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("provider rate limited: %s", e.Message)
	}
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// Client is the external rate source adapter.
type Client struct {
	apiKey     string
	baseURL    string
	budget     *budget.Tracker
	httpClient *http.Client
}

// New creates a client. Every fetch consumes call budget.
func New(apiKey string, tracker *budget.Tracker) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		budget:  tracker,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBaseURL overrides the API endpoint (used in tests).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// FetchSeries fetches the full daily history for one currency pair.
//
// It fails fast with budget.ErrExceeded when the daily ceiling is
// reached, before any network activity and without touching the
// counter. A pending inter-call interval is waited out rather than
// failed. The call is recorded against the budget regardless of
// outcome once the request has been sent.
func (c *Client) FetchSeries(ctx context.Context, from, to models.Currency) ([]models.DailyRate, error) {
	if c.budget.Remaining() <= 0 {
		return nil, fmt.Errorf("fetch %s/%s: %w", from, to, budget.ErrExceeded)
	}

	if wait := c.budget.UntilNextAllowed(); wait > 0 {
		logger.Debug("waiting for inter-call interval", "pair", string(from)+"/"+string(to), "wait", wait)
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	query := url.Values{}
	query.Set("function", "FX_DAILY")
	query.Set("from_symbol", string(from))
	query.Set("to_symbol", string(to))
	query.Set("outputsize", "full")
	query.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "/query?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	c.budget.RecordCall()
	if err != nil {
		return nil, &ProviderError{Message: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "failed to read response body"}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(truncate(body, 200))}
	}

	return parseSeries(body)
}

// parseSeries extracts the daily series from an FX_DAILY payload,
// distinguishing provider errors by payload field.
func parseSeries(body []byte) ([]models.DailyRate, error) {
	if msg := gjson.GetBytes(body, "Error Message"); msg.Exists() {
		return nil, &ProviderError{StatusCode: http.StatusOK, Message: msg.String()}
	}
	if note := gjson.GetBytes(body, "Note"); note.Exists() {
		return nil, &ProviderError{StatusCode: http.StatusOK, Message: note.String(), RateLimited: true}
	}

	series := gjson.GetBytes(body, "Time Series FX (Daily)")
	if !series.Exists() || !series.IsObject() {
		return nil, &ProviderError{StatusCode: http.StatusOK, Message: "response has no daily time series"}
	}

	var rates []models.DailyRate
	series.ForEach(func(date, fields gjson.Result) bool {
		rates = append(rates, models.DailyRate{
			Date:  date.String(),
			Open:  fields.Get(`1\. open`).Float(),
			High:  fields.Get(`2\. high`).Float(),
			Low:   fields.Get(`3\. low`).Float(),
			Close: fields.Get(`4\. close`).Float(),
		})
		return true
	})

	// The provider returns newest-first; callers expect ascending
	// dates with no gap filling.
	models.SortRates(rates)
	return rates, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
