package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jmagid/ratedash/internal/services/budget"
)

// metaStore is a throwaway in-memory budget store.
type metaStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *metaStore) GetMeta(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *metaStore) SetMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
	return nil
}

func newTestClient(serverURL string, limit int) (*Client, *budget.Tracker) {
	tracker := budget.New(&metaStore{}, budget.Config{DailyLimit: limit, MinInterval: time.Millisecond})
	client := New("test-key", tracker)
	client.SetBaseURL(serverURL)
	return client, tracker
}

const fxDailyPayload = `{
	"Meta Data": {
		"1. Information": "Forex Daily Prices (open, high, low, close)",
		"2. From Symbol": "EUR",
		"3. To Symbol": "USD"
	},
	"Time Series FX (Daily)": {
		"2024-06-03": {
			"1. open": "1.0850",
			"2. high": "1.0910",
			"3. low": "1.0830",
			"4. close": "1.0901"
		},
		"2024-06-01": {
			"1. open": "1.0800",
			"2. high": "1.0860",
			"3. low": "1.0790",
			"4. close": "1.0845"
		}
	}
}`

func TestFetchSeries_Success(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"function":    r.URL.Query().Get("function"),
			"from_symbol": r.URL.Query().Get("from_symbol"),
			"to_symbol":   r.URL.Query().Get("to_symbol"),
			"outputsize":  r.URL.Query().Get("outputsize"),
			"apikey":      r.URL.Query().Get("apikey"),
		}
		w.Write([]byte(fxDailyPayload))
	}))
	defer server.Close()

	client, tracker := newTestClient(server.URL, 5)
	rates, err := client.FetchSeries(context.Background(), "EUR", "USD")
	if err != nil {
		t.Fatalf("FetchSeries: %v", err)
	}

	if gotQuery["function"] != "FX_DAILY" {
		t.Errorf("function = %q, want FX_DAILY", gotQuery["function"])
	}
	if gotQuery["from_symbol"] != "EUR" || gotQuery["to_symbol"] != "USD" {
		t.Errorf("symbols = %q/%q, want EUR/USD", gotQuery["from_symbol"], gotQuery["to_symbol"])
	}
	if gotQuery["outputsize"] != "full" {
		t.Errorf("outputsize = %q, want full", gotQuery["outputsize"])
	}
	if gotQuery["apikey"] != "test-key" {
		t.Errorf("apikey = %q, want test-key", gotQuery["apikey"])
	}

	if len(rates) != 2 {
		t.Fatalf("got %d rates, want 2", len(rates))
	}
	// Ascending order, regardless of payload order.
	if rates[0].Date != "2024-06-01" || rates[1].Date != "2024-06-03" {
		t.Errorf("dates = %s, %s; want ascending", rates[0].Date, rates[1].Date)
	}
	if rates[0].Open != 1.0800 || rates[0].Close != 1.0845 {
		t.Errorf("first rate = %+v", rates[0])
	}
	if rates[1].High != 1.0910 || rates[1].Low != 1.0830 {
		t.Errorf("second rate = %+v", rates[1])
	}

	if got := tracker.Remaining(); got != 4 {
		t.Errorf("Remaining = %d, want 4 (one call recorded)", got)
	}
}

func TestFetchSeries_ErrorMessagePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call. Please retry or visit the documentation."}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 5)
	_, err := client.FetchSeries(context.Background(), "EUR", "USD")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if provErr.RateLimited {
		t.Error("Error Message payload should not be flagged as rate limited")
	}
}

func TestFetchSeries_NotePayloadIsRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	}))
	defer server.Close()

	client, tracker := newTestClient(server.URL, 5)
	_, err := client.FetchSeries(context.Background(), "EUR", "USD")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if !provErr.RateLimited {
		t.Error("Note payload should be flagged as rate limited")
	}

	// The request was sent, so the call still counts.
	if got := tracker.Remaining(); got != 4 {
		t.Errorf("Remaining = %d, want 4", got)
	}
}

func TestFetchSeries_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 5)
	_, err := client.FetchSeries(context.Background(), "EUR", "USD")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if provErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", provErr.StatusCode)
	}
}

func TestFetchSeries_MissingSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Meta Data": {}}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, 5)
	_, err := client.FetchSeries(context.Background(), "EUR", "USD")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
}

func TestFetchSeries_BudgetExhausted(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(fxDailyPayload))
	}))
	defer server.Close()

	client, tracker := newTestClient(server.URL, 1)
	if _, err := client.FetchSeries(context.Background(), "EUR", "USD"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	_, err := client.FetchSeries(context.Background(), "EUR", "USD")
	if !errors.Is(err, budget.ErrExceeded) {
		t.Fatalf("err = %v, want budget.ErrExceeded", err)
	}

	if requests != 1 {
		t.Errorf("server saw %d requests, want 1 (exhausted budget must not hit the network)", requests)
	}
	if got := tracker.Remaining(); got != 0 {
		t.Errorf("Remaining = %d, want 0 (rejected attempt must not consume budget)", got)
	}
}

func TestFetchSeries_ContextCancelledDuringWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fxDailyPayload))
	}))
	defer server.Close()

	tracker := budget.New(&metaStore{}, budget.Config{DailyLimit: 5, MinInterval: time.Minute})
	client := New("test-key", tracker)
	client.SetBaseURL(server.URL)

	if _, err := client.FetchSeries(context.Background(), "EUR", "USD"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.FetchSeries(ctx, "EUR", "USD")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}
