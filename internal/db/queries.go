package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmagid/ratedash/internal/logger"
	"github.com/jmagid/ratedash/internal/models"
)

const batchMarkerKey = "batch_update_marker"

// GetSeries returns the cached series for a pair, or nil if absent.
func (db *DB) GetSeries(pair models.Pair) (*models.CachedSeries, error) {
	var lastUpdated time.Time
	err := db.QueryRowContext(context.Background(),
		"SELECT last_updated FROM series_meta WHERE pair_key = ?", pair.Key(),
	).Scan(&lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series meta for %s: %w", pair, err)
	}

	rates, err := db.querySeriesRates(pair.Key())
	if err != nil {
		return nil, err
	}

	return &models.CachedSeries{
		Pair:        pair,
		Rates:       rates,
		LastUpdated: lastUpdated,
	}, nil
}

func (db *DB) querySeriesRates(pairKey string) ([]models.DailyRate, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT date, open, high, low, close
		FROM rate_series
		WHERE pair_key = ?
		ORDER BY date ASC
	`, pairKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates for %s: %w", pairKey, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var rates []models.DailyRate
	for rows.Next() {
		var r models.DailyRate
		if err := rows.Scan(&r.Date, &r.Open, &r.High, &r.Low, &r.Close); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		rates = append(rates, r)
	}

	return rates, rows.Err()
}

// PutSeries replaces the whole cached series for a pair in one
// transaction. Refreshes never merge incrementally.
func (db *DB) PutSeries(pair models.Pair, rates []models.DailyRate) error {
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM rate_series WHERE pair_key = ?", pair.Key()); err != nil {
		return fmt.Errorf("failed to clear series %s: %w", pair, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO rate_series (pair_key, date, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rates {
		if _, err := stmt.Exec(pair.Key(), r.Date, r.Open, r.High, r.Low, r.Close); err != nil {
			return fmt.Errorf("failed to insert rate %s %s: %w", pair, r.Date, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO series_meta (pair_key, last_updated) VALUES (?, ?)
		ON CONFLICT(pair_key) DO UPDATE SET last_updated = excluded.last_updated
	`, pair.Key(), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update series meta %s: %w", pair, err)
	}

	return tx.Commit()
}

// HasData reports whether any rates are cached for a pair.
func (db *DB) HasData(pair models.Pair) (bool, error) {
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM rate_series WHERE pair_key = ?", pair.Key(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count rates for %s: %w", pair, err)
	}
	return count > 0, nil
}

// ListSeries returns every cached series.
func (db *DB) ListSeries() ([]models.CachedSeries, error) {
	rows, err := db.QueryContext(context.Background(),
		"SELECT pair_key, last_updated FROM series_meta ORDER BY pair_key")
	if err != nil {
		return nil, fmt.Errorf("failed to query series meta: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	type metaRow struct {
		key         string
		lastUpdated time.Time
	}
	var metas []metaRow
	for rows.Next() {
		var m metaRow
		if err := rows.Scan(&m.key, &m.lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan series meta: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var series []models.CachedSeries
	for _, m := range metas {
		pair, err := models.ParsePair(m.key)
		if err != nil {
			logger.Warn("skipping malformed pair key in cache", "key", m.key)
			continue
		}
		rates, err := db.querySeriesRates(m.key)
		if err != nil {
			return nil, err
		}
		series = append(series, models.CachedSeries{
			Pair:        pair,
			Rates:       rates,
			LastUpdated: m.lastUpdated,
		})
	}

	return series, nil
}

// GetBatchMarker returns the calendar date of the last complete batch
// refresh, or "" if none has succeeded yet.
func (db *DB) GetBatchMarker() (string, error) {
	return db.GetMeta(batchMarkerKey)
}

// SetBatchMarker records the calendar date of a fully successful batch refresh.
func (db *DB) SetBatchMarker(date string) error {
	return db.SetMeta(batchMarkerKey, date)
}

// ClearCache removes all cached series and the batch marker. Budget
// state is kept; it is only cleared by an explicit budget reset.
func (db *DB) ClearCache() error {
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, query := range []string{
		"DELETE FROM rate_series",
		"DELETE FROM series_meta",
		"DELETE FROM app_meta WHERE key = '" + batchMarkerKey + "'",
	} {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	return tx.Commit()
}

// GetMeta returns a metadata value, or "" if the key is absent.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.QueryRowContext(context.Background(),
		"SELECT value FROM app_meta WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a metadata value, replacing any previous one.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO app_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}
