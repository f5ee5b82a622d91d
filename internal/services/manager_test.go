package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmagid/ratedash/internal/config"
	"github.com/jmagid/ratedash/internal/models"
)

func testManagerConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DatabasePath:    filepath.Join(dir, "ratedash.db"),
		WatchlistPath:   filepath.Join(dir, "watchlist.json"),
		AlphaVantageKey: "test-key",
		BaseCurrency:    models.BaseCurrency,
		Currencies:      models.DefaultCurrencies,
		DailyCallLimit:  24,
		MinCallInterval: 15 * time.Second,
	}
}

func TestNewManager_WiresServices(t *testing.T) {
	manager, err := NewManager(testManagerConfig(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	if manager.Database() == nil {
		t.Error("database not wired")
	}
	if manager.Budget() == nil {
		t.Error("budget tracker not wired")
	}
	if manager.Backend() == nil {
		t.Error("backend client not wired")
	}
	if manager.Resolver() == nil {
		t.Error("resolver not wired")
	}
	if manager.Watchlist() == nil {
		t.Error("watchlist not wired")
	}

	if got := manager.Resolver().Base(); got != models.BaseCurrency {
		t.Errorf("resolver base = %s, want %s", got, models.BaseCurrency)
	}
	if got := manager.Budget().Remaining(); got != 24 {
		t.Errorf("budget remaining = %d, want 24", got)
	}
}

func TestManager_IdentityResolveNeedsNoNetwork(t *testing.T) {
	manager, err := NewManager(testManagerConfig(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer manager.Close()

	rates, err := manager.Resolve(context.Background(), "EUR", "EUR", false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(rates) != 0 {
		t.Errorf("got %d rates, want 0", len(rates))
	}
	if got := manager.Budget().Remaining(); got != 24 {
		t.Errorf("budget remaining = %d, want untouched 24", got)
	}
}
