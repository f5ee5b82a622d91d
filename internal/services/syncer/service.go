// Package syncer drives bulk population of the rate cache for all
// supported currencies, either blocking (forced full refresh) or as a
// detached background task that only consults the backend store.
package syncer

import (
	"context"
	"time"

	"github.com/jmagid/ratedash/internal/logger"
	"github.com/jmagid/ratedash/internal/models"
)

// Resolver is the pivot-relative resolution entry point.
type Resolver interface {
	Resolve(ctx context.Context, from, to models.Currency, force bool) ([]models.DailyRate, error)
}

// Cache is the subset of the local store the syncer needs.
type Cache interface {
	HasData(pair models.Pair) (bool, error)
	PutSeries(pair models.Pair, rates []models.DailyRate) error
	GetBatchMarker() (string, error)
	SetBatchMarker(date string) error
}

// Backend is the budget-free second tier used by background sync.
type Backend interface {
	FetchSeries(ctx context.Context, from, to models.Currency, rng *models.DateRange) []models.DailyRate
}

// Progress reports per-currency advancement of a blocking refresh.
type Progress func(current, total int, currency models.Currency)

// Config holds the currency set the syncer iterates.
type Config struct {
	Base       models.Currency
	Currencies []models.Currency
}

// Service is the batch prefetch / background sync orchestrator.
type Service struct {
	resolver Resolver
	cache    Cache
	backend  Backend
	config   Config
	now      func() time.Time
}

// New creates a syncer over the given currency set.
func New(resolver Resolver, cache Cache, backend Backend, config Config) *Service {
	return &Service{
		resolver: resolver,
		cache:    cache,
		backend:  backend,
		config:   config,
		now:      time.Now,
	}
}

// targets returns the non-pivot currencies to sync, preserving the
// configured order.
func (s *Service) targets() []models.Currency {
	var targets []models.Currency
	for _, c := range s.config.Currencies {
		if c != s.config.Base {
			targets = append(targets, c)
		}
	}
	return targets
}

// RefreshAll force-fetches every pivot-relative pair from the external
// source, blocking until done. A same-day batch marker short-circuits
// the whole run. Per-currency failures are recorded and do not abort
// the remaining currencies; the marker is only advanced when every
// currency succeeded.
func (s *Service) RefreshAll(ctx context.Context, progress Progress) (*models.SyncResult, error) {
	today := s.now().Format(models.DateFormat)

	marker, err := s.cache.GetBatchMarker()
	if err != nil {
		logger.Warn("failed to read batch marker", "error", err)
	}
	if marker == today {
		logger.Info("batch refresh already completed today", "date", today)
		return &models.SyncResult{UpToDate: true}, nil
	}

	targets := s.targets()
	result := &models.SyncResult{}

	for i, currency := range targets {
		rates, err := s.resolver.Resolve(ctx, currency, s.config.Base, true)
		if err != nil {
			logger.Error("refresh failed", "currency", currency, "error", err)
			result.AddError(currency, err)
		} else {
			result.Synced++
			result.Records += len(rates)
		}

		if progress != nil {
			progress(i+1, len(targets), currency)
		}
	}

	if result.Failed == 0 {
		if err := s.cache.SetBatchMarker(today); err != nil {
			logger.Warn("failed to set batch marker", "error", err)
		}
	}

	logger.Info("batch refresh finished", "synced", result.Synced,
		"failed", result.Failed, "records", result.Records)
	return result, nil
}

// SyncInBackground launches a detached sync that fills cache misses
// from the backend store only. It never touches the external source or
// the call budget. The caller does not await it; the outcome is only
// observable through the completion callback and logs.
func (s *Service) SyncInBackground(ctx context.Context, onComplete func(*models.SyncResult)) {
	go func() {
		result := s.syncFromBackend(ctx)
		logger.Info("background sync finished", "synced", result.Synced,
			"skipped", result.Skipped, "failed", result.Failed, "records", result.Records)
		if onComplete != nil {
			onComplete(result)
		}
	}()
}

// syncFromBackend is the shared background step: skip cache-resident
// pairs, adopt whatever the backend has for the rest.
func (s *Service) syncFromBackend(ctx context.Context) *models.SyncResult {
	result := &models.SyncResult{}

	for _, currency := range s.targets() {
		pair := models.Pair{From: currency, To: s.config.Base}

		has, err := s.cache.HasData(pair)
		if err != nil {
			logger.Warn("cache check failed", "pair", pair, "error", err)
		}
		if has {
			result.Skipped++
			continue
		}

		rows := s.backend.FetchSeries(ctx, currency, s.config.Base, nil)
		if len(rows) == 0 {
			result.Failed++
			continue
		}

		if err := s.cache.PutSeries(pair, rows); err != nil {
			logger.Warn("failed to cache backend rows", "pair", pair, "error", err)
			result.AddError(currency, err)
			continue
		}

		result.Synced++
		result.Records += len(rows)
	}

	return result
}
