// Package backend talks to the shared rate store's HTTP API. It is the
// second cache tier: reads degrade silently to empty results so the
// resolver can fall through to the external source.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jmagid/ratedash/internal/logger"
	"github.com/jmagid/ratedash/internal/models"
)

// saveChunkSize bounds POST payloads; the store rejects oversized bodies.
const saveChunkSize = 500

// ratesResponse is the GET /rates envelope.
type ratesResponse struct {
	Success bool                        `json:"success"`
	Data    []models.ExchangeRateRecord `json:"data"`
	Count   int                         `json:"count"`
}

// statusResponse is the GET /status envelope.
type statusResponse struct {
	Success bool                `json:"success"`
	Data    []models.PairStatus `json:"data"`
}

// saveRequest is the POST /rates body.
type saveRequest struct {
	Rates []models.ExchangeRateRecord `json:"rates"`
}

// Client is the backend store adapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the store at baseURL. An empty baseURL
// yields a client whose reads are always empty and whose writes are
// no-ops, which keeps the resolver's tiering uniform when no backend
// is configured.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchSeries reads the stored series for a pair, optionally bounded
// by a date range. Failures are logged and returned as an empty slice,
// never as an error.
func (c *Client) FetchSeries(ctx context.Context, from, to models.Currency, rng *models.DateRange) []models.DailyRate {
	if c.baseURL == "" {
		return nil
	}

	query := url.Values{}
	query.Set("from", string(from))
	query.Set("to", string(to))
	if rng != nil {
		if rng.Start != "" {
			query.Set("start_date", rng.Start)
		}
		if rng.End != "" {
			query.Set("end_date", rng.End)
		}
	}

	var parsed ratesResponse
	if err := c.getJSON(ctx, "/rates?"+query.Encode(), &parsed); err != nil {
		logger.Warn("backend read failed, treating as miss", "pair", string(from)+"/"+string(to), "error", err)
		return nil
	}
	if !parsed.Success {
		logger.Warn("backend reported failure, treating as miss", "pair", string(from)+"/"+string(to))
		return nil
	}

	return models.RatesFromRecords(parsed.Data)
}

// SaveSeries upserts a series into the store in fixed-size chunks.
// Returns false if any chunk fails. The upsert is keyed on
// (from_currency, to_currency, date), so retries are idempotent.
func (c *Client) SaveSeries(ctx context.Context, pair models.Pair, rates []models.DailyRate) bool {
	if c.baseURL == "" || len(rates) == 0 {
		return false
	}

	records := models.RecordsFromRates(pair, rates)
	for start := 0; start < len(records); start += saveChunkSize {
		end := start + saveChunkSize
		if end > len(records) {
			end = len(records)
		}
		if err := c.postRates(ctx, records[start:end]); err != nil {
			logger.Warn("backend save failed", "pair", pair, "chunk_start", start, "error", err)
			return false
		}
	}

	logger.Debug("saved series to backend", "pair", pair, "records", len(records))
	return true
}

// IsAvailable probes the store with a short-deadline status request.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if c.baseURL == "" {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var parsed statusResponse
	if err := c.getJSON(probeCtx, "/status", &parsed); err != nil {
		return false
	}
	return parsed.Success
}

// Status returns per-pair row counts and date ranges from the store.
func (c *Client) Status(ctx context.Context) ([]models.PairStatus, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("no backend configured")
	}

	var parsed statusResponse
	if err := c.getJSON(ctx, "/status", &parsed); err != nil {
		return nil, err
	}
	if !parsed.Success {
		return nil, fmt.Errorf("backend reported failure")
	}
	return parsed.Data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) postRates(ctx context.Context, records []models.ExchangeRateRecord) error {
	payload, err := json.Marshal(saveRequest{Rates: records})
	if err != nil {
		return fmt.Errorf("failed to marshal rates: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rates", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
