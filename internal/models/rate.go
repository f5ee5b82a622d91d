// Package models contains the core data types shared across services.
package models

import (
	"sort"
	"time"
)

// DateFormat is the canonical layout for rate dates.
const DateFormat = "2006-01-02"

// DailyRate is one trading day's OHLC rate for a currency pair.
// The date is kept as a plain ISO string because series are joined on
// exact date equality, never on time arithmetic.
type DailyRate struct {
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// CachedSeries is a full rate series for one directional pair as held
// by the local persistent cache. Refreshes replace the whole series.
type CachedSeries struct {
	Pair        Pair
	Rates       []DailyRate
	LastUpdated time.Time
}

// ExchangeRateRecord is the backend store's wire representation of a
// single daily rate row, keyed on (from_currency, to_currency, date).
type ExchangeRateRecord struct {
	FromCurrency string  `json:"from_currency"`
	ToCurrency   string  `json:"to_currency"`
	Date         string  `json:"date"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
}

// DateRange optionally bounds a backend read. Empty fields are open ends.
type DateRange struct {
	Start string
	End   string
}

// SortRates orders a series ascending by date in place. ISO date strings
// sort correctly as plain strings.
func SortRates(rates []DailyRate) {
	sort.Slice(rates, func(i, j int) bool {
		return rates[i].Date < rates[j].Date
	})
}

// RecordsFromRates converts a series to backend wire rows.
func RecordsFromRates(pair Pair, rates []DailyRate) []ExchangeRateRecord {
	records := make([]ExchangeRateRecord, len(rates))
	for i, r := range rates {
		records[i] = ExchangeRateRecord{
			FromCurrency: string(pair.From),
			ToCurrency:   string(pair.To),
			Date:         r.Date,
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
		}
	}
	return records
}

// RatesFromRecords converts backend wire rows to a series, sorted ascending.
func RatesFromRecords(records []ExchangeRateRecord) []DailyRate {
	rates := make([]DailyRate, len(records))
	for i, rec := range records {
		rates[i] = DailyRate{
			Date:  rec.Date,
			Open:  rec.Open,
			High:  rec.High,
			Low:   rec.Low,
			Close: rec.Close,
		}
	}
	SortRates(rates)
	return rates
}
