package models

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 currency code from the supported set.
type Currency string

// BaseCurrency is the pivot currency: the only currency the external
// source and backend store are ever asked for directly. Every other
// pair is derived from pivot-relative series.
const BaseCurrency = Currency("USD")

// DefaultCurrencies is the supported currency set, pivot first.
var DefaultCurrencies = []Currency{
	BaseCurrency, "EUR", "GBP", "JPY", "AUD", "CAD", "CHF", "CNY", "NZD", "SEK",
}

// Pair is an ordered currency pair. EUR/USD and USD/EUR are distinct.
type Pair struct {
	From Currency
	To   Currency
}

// Key returns the canonical directional cache key, e.g. "EUR/USD".
func (p Pair) Key() string {
	return string(p.From) + "/" + string(p.To)
}

func (p Pair) String() string {
	return p.Key()
}

// ParsePair parses a "FROM/TO" key into a Pair, upper-casing both legs.
func ParsePair(key string) (Pair, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair key %q (want FROM/TO)", key)
	}
	return Pair{
		From: Currency(strings.ToUpper(parts[0])),
		To:   Currency(strings.ToUpper(parts[1])),
	}, nil
}

// IsSupported reports whether c is in the given supported set.
func IsSupported(c Currency, supported []Currency) bool {
	for _, s := range supported {
		if s == c {
			return true
		}
	}
	return false
}
