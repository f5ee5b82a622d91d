package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmagid/ratedash/internal/models"
)

func sampleRecords(n int) []models.ExchangeRateRecord {
	records := make([]models.ExchangeRateRecord, n)
	for i := range records {
		records[i] = models.ExchangeRateRecord{
			FromCurrency: "EUR",
			ToCurrency:   "USD",
			Date:         fmt.Sprintf("2024-01-%02d", i%28+1),
			Open:         1.08,
			High:         1.09,
			Low:          1.07,
			Close:        1.085,
		}
	}
	return records
}

func TestFetchSeries_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rates" {
			t.Errorf("path = %s, want /rates", r.URL.Path)
		}
		if r.URL.Query().Get("from") != "EUR" || r.URL.Query().Get("to") != "USD" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(ratesResponse{
			Success: true,
			Data:    sampleRecords(3),
			Count:   3,
		})
	}))
	defer server.Close()

	client := New(server.URL)
	rates := client.FetchSeries(context.Background(), "EUR", "USD", nil)
	if len(rates) != 3 {
		t.Fatalf("got %d rates, want 3", len(rates))
	}
	if rates[0].Close != 1.085 {
		t.Errorf("close = %v, want 1.085", rates[0].Close)
	}
}

func TestFetchSeries_DateRangeQuery(t *testing.T) {
	var start, end string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start = r.URL.Query().Get("start_date")
		end = r.URL.Query().Get("end_date")
		json.NewEncoder(w).Encode(ratesResponse{Success: true})
	}))
	defer server.Close()

	client := New(server.URL)
	client.FetchSeries(context.Background(), "EUR", "USD", &models.DateRange{
		Start: "2024-01-01",
		End:   "2024-01-31",
	})

	if start != "2024-01-01" || end != "2024-01-31" {
		t.Errorf("range = %s..%s, want 2024-01-01..2024-01-31", start, end)
	}
}

func TestFetchSeries_FailuresDegradeToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"success false", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ratesResponse{Success: false})
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := New(server.URL)
			rates := client.FetchSeries(context.Background(), "EUR", "USD", nil)
			if len(rates) != 0 {
				t.Errorf("got %d rates, want 0", len(rates))
			}
		})
	}
}

func TestFetchSeries_NoBackendConfigured(t *testing.T) {
	client := New("")
	if rates := client.FetchSeries(context.Background(), "EUR", "USD", nil); rates != nil {
		t.Errorf("got %v, want nil", rates)
	}
}

func TestSaveSeries_ChunksLargePayloads(t *testing.T) {
	var posts int
	var totalRecords int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req saveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(req.Rates) > saveChunkSize {
			t.Errorf("chunk of %d records exceeds limit %d", len(req.Rates), saveChunkSize)
		}
		posts++
		totalRecords += len(req.Rates)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	pair := models.Pair{From: "EUR", To: "USD"}
	rates := make([]models.DailyRate, 1205)
	for i := range rates {
		rates[i] = models.DailyRate{Date: fmt.Sprintf("2020-%02d-%02d", i/28%12+1, i%28+1)}
	}

	client := New(server.URL)
	if !client.SaveSeries(context.Background(), pair, rates) {
		t.Fatal("SaveSeries returned false")
	}
	if posts != 3 {
		t.Errorf("got %d POSTs, want 3", posts)
	}
	if totalRecords != 1205 {
		t.Errorf("server received %d records, want 1205", totalRecords)
	}
}

func TestSaveSeries_FailedChunkReturnsFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rejected", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL)
	pair := models.Pair{From: "EUR", To: "USD"}
	if client.SaveSeries(context.Background(), pair, []models.DailyRate{{Date: "2024-06-01"}}) {
		t.Error("SaveSeries should return false on a rejected chunk")
	}
}

func TestSaveSeries_EmptyAndUnconfigured(t *testing.T) {
	if New("").SaveSeries(context.Background(), models.Pair{From: "EUR", To: "USD"}, []models.DailyRate{{Date: "2024-06-01"}}) {
		t.Error("unconfigured client must not report a save")
	}
	if New("http://localhost:1").SaveSeries(context.Background(), models.Pair{From: "EUR", To: "USD"}, nil) {
		t.Error("empty series must not report a save")
	}
}

func TestIsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("path = %s, want /status", r.URL.Path)
		}
		json.NewEncoder(w).Encode(statusResponse{Success: true})
	}))
	defer server.Close()

	if !New(server.URL).IsAvailable(context.Background()) {
		t.Error("IsAvailable = false, want true")
	}
	if New("").IsAvailable(context.Background()) {
		t.Error("unconfigured client should report unavailable")
	}
	if New("http://localhost:1").IsAvailable(context.Background()) {
		t.Error("unreachable backend should report unavailable")
	}
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusResponse{
			Success: true,
			Data: []models.PairStatus{
				{FromCurrency: "EUR", ToCurrency: "USD", Count: 120, MinDate: "2024-01-01", MaxDate: "2024-06-01"},
			},
		})
	}))
	defer server.Close()

	status, err := New(server.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status) != 1 || status[0].Count != 120 {
		t.Errorf("status = %+v", status)
	}

	if _, err := New("").Status(context.Background()); err == nil {
		t.Error("unconfigured client should return an error from Status")
	}
}
