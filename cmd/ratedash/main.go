// Package main is the entry point for the ratedash CLI, a currency
// exchange rate dashboard backed by a local cache, a shared backend
// store and the Alpha Vantage FX API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmagid/ratedash/internal/cli"
	"github.com/jmagid/ratedash/internal/config"
	"github.com/jmagid/ratedash/internal/logger"
	"github.com/jmagid/ratedash/internal/models"
	"github.com/jmagid/ratedash/internal/services"
	"github.com/jmagid/ratedash/internal/version"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" || os.Args[1] == "help" {
		printUsage()
		os.Exit(0)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, wires services and dispatches the command.
func run(command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetDebug(cfg.Debug)

	manager, err := services.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	switch command {
	case "resolve":
		return runResolve(ctx, manager, cfg, args)
	case "chart":
		return runChart(ctx, manager, cfg, args)
	case "refresh":
		return runRefresh(ctx, manager)
	case "sync":
		return runSync(manager)
	case "status":
		return runStatus(ctx, manager, cfg)
	case "clear":
		return runClear(manager)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

// parsePairArgs reads FROM and TO from positional args and validates
// them against the supported set.
func parsePairArgs(cfg *config.Config, args []string) (models.Currency, models.Currency, error) {
	if len(args) < 2 {
		return "", "", fmt.Errorf("expected FROM and TO currency codes")
	}
	from := models.Currency(strings.ToUpper(args[0]))
	to := models.Currency(strings.ToUpper(args[1]))

	for _, c := range []models.Currency{from, to} {
		if !models.IsSupported(c, cfg.Currencies) {
			return "", "", fmt.Errorf("unsupported currency %s (supported: %v)", c, cfg.Currencies)
		}
	}
	return from, to, nil
}

func runResolve(ctx context.Context, manager *services.Manager, cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet("resolve", flag.ContinueOnError)
	force := flags.Bool("force", false, "bypass cache and backend, always hit the rate API")
	rows := flags.Int("rows", 15, "number of recent rows to print")
	if err := flags.Parse(args); err != nil {
		return err
	}

	from, to, err := parsePairArgs(cfg, flags.Args())
	if err != nil {
		return err
	}

	rates, err := manager.Resolve(ctx, from, to, *force)
	if err != nil {
		return err
	}

	fmt.Print(cli.RenderSeries(models.Pair{From: from, To: to}, rates, *rows))
	return nil
}

func runChart(ctx context.Context, manager *services.Manager, cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet("chart", flag.ContinueOnError)
	days := flags.Int("days", 90, "number of most recent days to plot")
	height := flags.Int("height", 12, "chart height in rows")
	if err := flags.Parse(args); err != nil {
		return err
	}

	from, to, err := parsePairArgs(cfg, flags.Args())
	if err != nil {
		return err
	}

	rates, err := manager.Resolve(ctx, from, to, false)
	if err != nil {
		return err
	}

	fmt.Print(cli.RenderChart(models.Pair{From: from, To: to}, rates, *days, *height))
	return nil
}

func runRefresh(ctx context.Context, manager *services.Manager) error {
	result, err := manager.RefreshAll(ctx, func(current, total int, currency models.Currency) {
		fmt.Printf("[%d/%d] refreshed %s\n", current, total, currency)
	})
	if err != nil {
		return err
	}

	fmt.Println(result.Summary())
	for _, e := range result.Errors {
		fmt.Printf("  failed: %s\n", e)
	}
	return nil
}

func runSync(manager *services.Manager) error {
	done := make(chan *models.SyncResult, 1)
	manager.BackgroundSync(func(result *models.SyncResult) {
		done <- result
	})

	// The sync itself is detached; the CLI just waits so the user
	// sees the outcome before the process exits.
	result := <-done
	fmt.Println(result.Summary())
	return nil
}

func runStatus(ctx context.Context, manager *services.Manager, cfg *config.Config) error {
	fmt.Printf("local cache: %s\n", cfg.DatabasePath)
	series, err := manager.Database().ListSeries()
	if err != nil {
		return err
	}
	for _, s := range series {
		fmt.Printf("  %-10s %6d rows, updated %s\n",
			s.Pair, len(s.Rates), s.LastUpdated.Format("2006-01-02 15:04"))
	}
	if len(series) == 0 {
		fmt.Println("  (empty)")
	}

	fmt.Printf("call budget: %d remaining today\n", manager.Budget().Remaining())

	if cfg.BackendURL == "" {
		fmt.Println("backend store: not configured")
		return nil
	}
	if !manager.Backend().IsAvailable(ctx) {
		fmt.Println("backend store: unreachable")
		return nil
	}
	statuses, err := manager.Backend().Status(ctx)
	if err != nil {
		return err
	}
	fmt.Println("backend store:")
	fmt.Print(cli.RenderStatus(statuses))
	return nil
}

func runClear(manager *services.Manager) error {
	if err := manager.Database().ClearCache(); err != nil {
		return err
	}
	fmt.Println("local cache cleared")
	return nil
}

// printUsage prints the command-line usage information.
func printUsage() {
	fmt.Println(`ratedash - currency exchange rate dashboard

Usage:
  ratedash <command> [arguments]

Commands:
  resolve [-force] [-rows N] FROM TO   Resolve a pair's daily series
  chart [-days N] [-height N] FROM TO  Plot close prices as an ASCII chart
  refresh                              Force-refresh all pairs from the rate API
  sync                                 Fill cache misses from the backend store
  status                               Show cache, budget and backend state
  clear                                Clear the local rate cache

Flags:
  -h, --help      Show this help message
  -v, --version   Show version information

Environment Variables:
  ALPHAVANTAGE_API_KEY       Rate provider API key (required)
  RATEDASH_BACKEND_URL       Shared backend store base URL
  RATEDASH_DATABASE_PATH     SQLite cache path
  RATEDASH_WATCHLIST_PATH    Watchlist JSON file path
  RATEDASH_BASE_CURRENCY     Pivot currency (default: USD)
  RATEDASH_CURRENCIES        Comma-separated supported currencies
  RATEDASH_DAILY_CALL_LIMIT  Daily API call ceiling (default: 24)
  RATEDASH_MIN_CALL_INTERVAL Minimum spacing between API calls (default: 15s)
  RATEDASH_DEBUG             Enable debug logging when set

Configuration:
  A .env file is read from the current directory, ~/.config/ratedash/
  or ~/.ratedash/ if present.`)
}
