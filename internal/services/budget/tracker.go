// Package budget enforces a client-local call quota against the
// external rate provider: a daily ceiling plus a minimum inter-call
// interval. It is a soft guard only; other processes sharing the same
// API key can still exhaust the real server-side quota.
package budget

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jmagid/ratedash/internal/logger"
)

// ErrExceeded is returned when the daily call ceiling has been reached.
// Callers should surface it as "try again tomorrow".
var ErrExceeded = errors.New("daily call budget exceeded")

const stateKey = "call_budget"

// Store persists the budget state across restarts.
type Store interface {
	GetMeta(key string) (string, error)
	SetMeta(key, value string) error
}

// Config holds budget policy constants.
type Config struct {
	// DailyLimit is the safe ceiling, kept strictly below the
	// provider's true daily quota.
	DailyLimit int
	// MinInterval is the minimum spacing between calls, sized to the
	// provider's per-minute limit.
	MinInterval time.Duration
}

// DefaultConfig returns the default policy: one call under the
// provider's 25/day free tier, 15s spacing for its 5/minute limit.
func DefaultConfig() Config {
	return Config{
		DailyLimit:  24,
		MinInterval: 15 * time.Second,
	}
}

// state is the durable budget record. It resets whenever the stored
// date differs from today.
type state struct {
	Date      string    `json:"date"`
	CallsUsed int       `json:"calls_used"`
	LastCall  time.Time `json:"last_call"`
}

// Tracker tracks external API usage against the configured budget.
type Tracker struct {
	mu     sync.Mutex
	store  Store
	config Config
	state  state
	now    func() time.Time
}

// New creates a tracker, loading any persisted state from the store.
func New(store Store, config Config) *Tracker {
	if config.DailyLimit == 0 {
		config = DefaultConfig()
	}

	t := &Tracker{
		store:  store,
		config: config,
		now:    time.Now,
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	raw, err := t.store.GetMeta(stateKey)
	if err != nil {
		logger.Warn("failed to load call budget state", "error", err)
		return
	}
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), &t.state); err != nil {
		logger.Warn("discarding malformed call budget state", "error", err)
		t.state = state{}
	}
}

func (t *Tracker) save() {
	raw, err := json.Marshal(t.state)
	if err != nil {
		return
	}
	if err := t.store.SetMeta(stateKey, string(raw)); err != nil {
		logger.Warn("failed to persist call budget state", "error", err)
	}
}

// rollover resets the counter when the calendar day has changed.
// Must be called with the lock held.
func (t *Tracker) rollover() {
	today := t.now().Format("2006-01-02")
	if t.state.Date != today {
		t.state = state{Date: today}
	}
}

// CanCallNow reports whether a call is allowed right now: the daily
// count is below the ceiling and the inter-call interval has elapsed.
func (t *Tracker) CanCallNow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	if t.state.CallsUsed >= t.config.DailyLimit {
		return false
	}
	return t.untilNextLocked() == 0
}

// RecordCall increments the daily counter and stamps the call time.
// It is called for every attempted request, successful or not.
func (t *Tracker) RecordCall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	t.state.CallsUsed++
	t.state.LastCall = t.now()
	t.save()
}

// Remaining returns the number of calls left today.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	remaining := t.config.DailyLimit - t.state.CallsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UntilNextAllowed returns how long to wait before the inter-call
// interval permits another request. Zero means no wait is pending.
func (t *Tracker) UntilNextAllowed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.untilNextLocked()
}

func (t *Tracker) untilNextLocked() time.Duration {
	if t.state.LastCall.IsZero() {
		return 0
	}
	elapsed := t.now().Sub(t.state.LastCall)
	if elapsed >= t.config.MinInterval {
		return 0
	}
	return t.config.MinInterval - elapsed
}

// Reset clears the budget state. Manual use only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state{Date: t.now().Format("2006-01-02")}
	t.save()
}
