// Package resolver turns a request for any ordered currency pair into
// concrete fetch and derive operations. Only pivot-relative pairs
// (X -> base) are ever fetched or stored directly; everything else is
// computed by inversion or cross-division of pivot-relative series.
package resolver

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/jmagid/ratedash/internal/logger"
	"github.com/jmagid/ratedash/internal/models"
	"github.com/jmagid/ratedash/internal/services/budget"
)

// Cache is the local persistent tier, satisfied by *db.DB.
type Cache interface {
	GetSeries(pair models.Pair) (*models.CachedSeries, error)
	PutSeries(pair models.Pair, rates []models.DailyRate) error
}

// Backend is the shared store tier, satisfied by *backend.Client.
// Reads never fail; they return empty on any problem.
type Backend interface {
	FetchSeries(ctx context.Context, from, to models.Currency, rng *models.DateRange) []models.DailyRate
	SaveSeries(ctx context.Context, pair models.Pair, rates []models.DailyRate) bool
}

// Source is the external provider tier, satisfied by *alphavantage.Client.
type Source interface {
	FetchSeries(ctx context.Context, from, to models.Currency) ([]models.DailyRate, error)
}

// Service is the pair resolution engine.
type Service struct {
	cache   Cache
	backend Backend
	source  Source
	base    models.Currency
}

// New creates a resolver pivoting on the given base currency.
func New(cache Cache, backend Backend, source Source, base models.Currency) *Service {
	return &Service{
		cache:   cache,
		backend: backend,
		source:  source,
		base:    base,
	}
}

// Base returns the pivot currency.
func (s *Service) Base() models.Currency {
	return s.base
}

// Resolve produces the daily rate series for (from, to).
//
// Identical currencies resolve to an empty series. A pair starting at
// the base is the inverse of its mirror. A pair between two non-base
// currencies is the cross of the two pivot-relative legs, resolved
// concurrently. Only the (X, base) case touches the storage tiers.
func (s *Service) Resolve(ctx context.Context, from, to models.Currency, force bool) ([]models.DailyRate, error) {
	if from == to {
		return nil, nil
	}

	if from == s.base {
		rates, err := s.Resolve(ctx, to, s.base, force)
		if err != nil {
			return nil, err
		}
		return invertSeries(rates), nil
	}

	if to != s.base {
		return s.resolveCross(ctx, from, to, force)
	}

	return s.resolveBase(ctx, from, force)
}

// resolveCross computes (from, to) from the two pivot-relative legs,
// fetched concurrently. Both legs must resolve non-empty or the whole
// result is empty.
func (s *Service) resolveCross(ctx context.Context, from, to models.Currency, force bool) ([]models.DailyRate, error) {
	var fromLeg, toLeg []models.DailyRate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fromLeg, err = s.Resolve(gctx, from, s.base, force)
		return err
	})
	g.Go(func() error {
		var err error
		toLeg, err = s.Resolve(gctx, to, s.base, force)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(fromLeg) == 0 || len(toLeg) == 0 {
		return nil, nil
	}
	return crossSeries(fromLeg, toLeg), nil
}

// resolveBase resolves (currency, base) through the three tiers:
// local cache, backend store, external source.
func (s *Service) resolveBase(ctx context.Context, currency models.Currency, force bool) ([]models.DailyRate, error) {
	pair := models.Pair{From: currency, To: s.base}

	cached, err := s.cache.GetSeries(pair)
	if err != nil {
		logger.Warn("cache read failed, treating as miss", "pair", pair, "error", err)
		cached = nil
	}
	if !force && cached != nil && len(cached.Rates) > 0 {
		logger.Debug("cache hit", "pair", pair, "records", len(cached.Rates))
		return cached.Rates, nil
	}

	rows := s.backend.FetchSeries(ctx, currency, s.base, nil)
	if !force && len(rows) > 0 {
		logger.Debug("backend hit", "pair", pair, "records", len(rows))
		if err := s.cache.PutSeries(pair, rows); err != nil {
			logger.Warn("failed to cache backend rows", "pair", pair, "error", err)
		}
		return rows, nil
	}

	rates, err := s.source.FetchSeries(ctx, currency, s.base)
	if err != nil {
		// A stale copy beats a transient provider failure, but an
		// exhausted budget always surfaces so forced refreshes never
		// silently serve cache.
		if !errors.Is(err, budget.ErrExceeded) && cached != nil && len(cached.Rates) > 0 {
			logger.Warn("external fetch failed, serving stale cache",
				"pair", pair, "records", len(cached.Rates), "error", err)
			return cached.Rates, nil
		}
		return nil, err
	}

	if err := s.cache.PutSeries(pair, rates); err != nil {
		logger.Warn("failed to cache fetched series", "pair", pair, "error", err)
	}
	if ok := s.backend.SaveSeries(ctx, pair, rates); !ok {
		logger.Debug("backend save skipped or failed", "pair", pair)
	}

	return rates, nil
}

// invertSeries flips a series to the opposite direction. High and low
// swap because inversion reverses ordering. The bounds are the same
// approximation the rest of the system exchanges; they are kept as-is
// for output compatibility.
func invertSeries(rates []models.DailyRate) []models.DailyRate {
	inverted := make([]models.DailyRate, len(rates))
	for i, r := range rates {
		inverted[i] = models.DailyRate{
			Date:  r.Date,
			Open:  1 / r.Open,
			High:  1 / r.Low,
			Low:   1 / r.High,
			Close: 1 / r.Close,
		}
	}
	return inverted
}

// crossSeries divides two pivot-relative series into a cross rate,
// inner-joined on exact date strings. Dates missing from either leg
// are dropped; there is no interpolation.
func crossSeries(fromLeg, toLeg []models.DailyRate) []models.DailyRate {
	byDate := make(map[string]models.DailyRate, len(toLeg))
	for _, r := range toLeg {
		byDate[r.Date] = r
	}

	var cross []models.DailyRate
	for _, f := range fromLeg {
		t, ok := byDate[f.Date]
		if !ok {
			continue
		}
		cross = append(cross, models.DailyRate{
			Date:  f.Date,
			Open:  f.Open / t.Open,
			High:  f.High / t.Low,
			Low:   f.Low / t.High,
			Close: f.Close / t.Close,
		})
	}
	return cross
}
