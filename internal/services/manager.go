// Package services wires the rate dashboard services together.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/jmagid/ratedash/internal/config"
	"github.com/jmagid/ratedash/internal/db"
	"github.com/jmagid/ratedash/internal/logger"
	"github.com/jmagid/ratedash/internal/models"
	"github.com/jmagid/ratedash/internal/services/alphavantage"
	"github.com/jmagid/ratedash/internal/services/backend"
	"github.com/jmagid/ratedash/internal/services/budget"
	"github.com/jmagid/ratedash/internal/services/resolver"
	"github.com/jmagid/ratedash/internal/services/syncer"
	"github.com/jmagid/ratedash/internal/services/watchlist"
)

type (
	// WatchlistChangedEvent is emitted when the watched pair list changes.
	WatchlistChangedEvent struct {
		Pairs []models.Pair
	}

	// SyncCompletedEvent is emitted when a background sync finishes.
	SyncCompletedEvent struct {
		Result *models.SyncResult
	}

	// BudgetExhaustedEvent is emitted when the daily call ceiling is hit.
	BudgetExhaustedEvent struct{}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (WatchlistChangedEvent) isServiceEvent() {}
func (SyncCompletedEvent) isServiceEvent()    {}
func (BudgetExhaustedEvent) isServiceEvent()  {}
func (ErrorEvent) isServiceEvent()            {}

// Manager owns the service graph and routes events.
type Manager struct {
	mu           sync.Mutex
	cfg          *config.Config
	database     *db.DB
	budget       *budget.Tracker
	source       *alphavantage.Client
	backend      *backend.Client
	resolver     *resolver.Service
	syncer       *syncer.Service
	watchlist    *watchlist.Service
	eventChan    chan ServiceEvent
	stopChan     chan struct{}
	notifiedDate string
}

// NewManager constructs all services from configuration.
func NewManager(cfg *config.Config) (*Manager, error) {
	m := &Manager{
		cfg:       cfg,
		eventChan: make(chan ServiceEvent, 100),
		stopChan:  make(chan struct{}),
	}

	var err error
	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m.budget = budget.New(m.database, budget.Config{
		DailyLimit:  cfg.DailyCallLimit,
		MinInterval: cfg.MinCallInterval,
	})
	m.source = alphavantage.New(cfg.AlphaVantageKey, m.budget)
	m.backend = backend.New(cfg.BackendURL)
	m.resolver = resolver.New(m.database, m.backend, m.source, cfg.BaseCurrency)
	m.syncer = syncer.New(m.resolver, m.database, m.backend, syncer.Config{
		Base:       cfg.BaseCurrency,
		Currencies: cfg.Currencies,
	})

	m.watchlist, err = watchlist.New(cfg.WatchlistPath)
	if err != nil {
		_ = m.database.Close()
		return nil, fmt.Errorf("failed to initialize watchlist: %w", err)
	}

	go m.routeEvents()

	return m, nil
}

// routeEvents reacts to watchlist changes by warming the cache from the
// backend store. The warm-up is budget-free by construction.
func (m *Manager) routeEvents() {
	for {
		select {
		case event, ok := <-m.watchlist.Events():
			if !ok {
				return
			}
			switch event.Type {
			case watchlist.EventChanged:
				m.broadcast(WatchlistChangedEvent{Pairs: m.watchlist.Pairs()})
				m.BackgroundSync(nil)
			case watchlist.EventError:
				m.broadcast(ErrorEvent{Service: "watchlist", Error: event.Error})
			}

		case <-m.stopChan:
			return
		}
	}
}

// Events returns the manager's event channel.
func (m *Manager) Events() <-chan ServiceEvent {
	return m.eventChan
}

// Resolve resolves a currency pair through the engine, emitting a
// desktop notification the first time in a day the budget runs out.
func (m *Manager) Resolve(ctx context.Context, from, to models.Currency, force bool) ([]models.DailyRate, error) {
	rates, err := m.resolver.Resolve(ctx, from, to, force)
	if errors.Is(err, budget.ErrExceeded) {
		m.notifyBudgetExhausted()
	}
	return rates, err
}

// RefreshAll runs a blocking forced refresh of every supported pair.
func (m *Manager) RefreshAll(ctx context.Context, progress syncer.Progress) (*models.SyncResult, error) {
	result, err := m.syncer.RefreshAll(ctx, progress)
	if err != nil {
		return nil, err
	}

	if !result.UpToDate {
		title := "ratedash refresh complete"
		body := result.Summary()
		if notifyErr := beeep.Notify(title, body, ""); notifyErr != nil {
			logger.Debug("desktop notification failed", "error", notifyErr)
		}
	}
	return result, nil
}

// BackgroundSync kicks off a detached backend-only sync.
func (m *Manager) BackgroundSync(onComplete func(*models.SyncResult)) {
	m.syncer.SyncInBackground(context.Background(), func(result *models.SyncResult) {
		m.broadcast(SyncCompletedEvent{Result: result})
		if onComplete != nil {
			onComplete(result)
		}
	})
}

// notifyBudgetExhausted raises at most one notification per day.
func (m *Manager) notifyBudgetExhausted() {
	m.mu.Lock()
	today := time.Now().Format(models.DateFormat)
	already := m.notifiedDate == today
	m.notifiedDate = today
	m.mu.Unlock()

	m.broadcast(BudgetExhaustedEvent{})
	if already {
		return
	}

	title := "ratedash: API budget exhausted"
	body := "The daily rate provider call limit has been reached. Try again tomorrow."
	if err := beeep.Notify(title, body, ""); err != nil {
		logger.Debug("desktop notification failed", "error", err)
	}
}

// broadcast sends an event without blocking.
func (m *Manager) broadcast(event ServiceEvent) {
	select {
	case m.eventChan <- event:
	default:
	}
}

// Database returns the local cache for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Budget returns the call budget tracker.
func (m *Manager) Budget() *budget.Tracker {
	return m.budget
}

// Backend returns the backend store client.
func (m *Manager) Backend() *backend.Client {
	return m.backend
}

// Resolver returns the pair resolution engine.
func (m *Manager) Resolver() *resolver.Service {
	return m.resolver
}

// Watchlist returns the watchlist service.
func (m *Manager) Watchlist() *watchlist.Service {
	return m.watchlist
}

// Close shuts down the manager and all its services.
func (m *Manager) Close() error {
	close(m.stopChan)

	var errs []error
	if err := m.watchlist.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.database.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
