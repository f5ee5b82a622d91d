// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/jmagid/ratedash/internal/models"
)

// RenderSeries formats a resolved series as a compact table, capped at
// the most recent maxRows rows.
func RenderSeries(pair models.Pair, rates []models.DailyRate, maxRows int) string {
	if len(rates) == 0 {
		return fmt.Sprintf("%s: no data — try a refresh\n", pair)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d days (%s .. %s)\n", pair, len(rates),
		rates[0].Date, rates[len(rates)-1].Date)
	fmt.Fprintf(&b, "%-12s %10s %10s %10s %10s\n", "DATE", "OPEN", "HIGH", "LOW", "CLOSE")

	start := 0
	if maxRows > 0 && len(rates) > maxRows {
		start = len(rates) - maxRows
		fmt.Fprintf(&b, "... (%d earlier rows omitted)\n", start)
	}
	for _, r := range rates[start:] {
		fmt.Fprintf(&b, "%-12s %10.4f %10.4f %10.4f %10.4f\n",
			r.Date, r.Open, r.High, r.Low, r.Close)
	}
	return b.String()
}

// RenderChart plots the close prices of the last days entries as an
// ASCII line chart.
func RenderChart(pair models.Pair, rates []models.DailyRate, days, height int) string {
	if len(rates) == 0 {
		return fmt.Sprintf("%s: no data — try a refresh\n", pair)
	}

	start := 0
	if days > 0 && len(rates) > days {
		start = len(rates) - days
	}
	window := rates[start:]

	closes := make([]float64, len(window))
	for i, r := range window {
		closes[i] = r.Close
	}

	caption := fmt.Sprintf("%s close, %s .. %s",
		pair, window[0].Date, window[len(window)-1].Date)
	plot := asciigraph.Plot(closes,
		asciigraph.Height(height),
		asciigraph.Caption(caption),
	)
	return plot + "\n"
}

// RenderStatus formats backend per-pair aggregates.
func RenderStatus(statuses []models.PairStatus) string {
	if len(statuses) == 0 {
		return "backend store is empty\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %8s %-12s %-12s\n", "PAIR", "ROWS", "FIRST", "LAST")
	for _, s := range statuses {
		fmt.Fprintf(&b, "%-10s %8d %-12s %-12s\n",
			s.FromCurrency+"/"+s.ToCurrency, s.Count, s.MinDate, s.MaxDate)
	}
	return b.String()
}
