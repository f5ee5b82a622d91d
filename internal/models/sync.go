package models

import "fmt"

// SyncResult reports the outcome of a batch refresh or background sync.
// Batches are best-effort: per-currency failures are recorded and the
// remaining items still run.
type SyncResult struct {
	Synced   int
	Skipped  int
	Failed   int
	Records  int
	UpToDate bool
	Errors   []string
}

// AddError records a per-currency failure.
func (r *SyncResult) AddError(currency Currency, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", currency, err))
}

// Summary renders a one-line human-readable result.
func (r *SyncResult) Summary() string {
	if r.UpToDate {
		return "already up to date"
	}
	return fmt.Sprintf("%d synced, %d skipped, %d failed, %d records",
		r.Synced, r.Skipped, r.Failed, r.Records)
}

// PairStatus is one row of the backend's /status aggregate: per-pair
// row counts and covered date range.
type PairStatus struct {
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
	Count        int    `json:"count"`
	MinDate      string `json:"min_date"`
	MaxDate      string `json:"max_date"`
}
