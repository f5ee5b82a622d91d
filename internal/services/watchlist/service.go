// Package watchlist manages the user's saved currency pairs with file
// watching, so edits from another terminal or a dotfile sync show up
// without restarting.
package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmagid/ratedash/internal/logger"
	"github.com/jmagid/ratedash/internal/models"
)

// File is the JSON structure of the watchlist file.
type File struct {
	Pairs   []string `json:"pairs"`
	Version int      `json:"version,omitempty"`
}

// EventType defines the type of watchlist event.
type EventType int

const (
	EventLoaded EventType = iota
	EventChanged
	EventError
)

// Event represents a watchlist service event.
type Event struct {
	Type  EventType
	Error error
}

// Service manages the watchlist with file watching and change notifications.
type Service struct {
	mu            sync.RWMutex
	pairs         []models.Pair
	filePath      string
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
}

// New creates a watchlist service and starts file watching. A missing
// file is created empty rather than treated as an error.
func New(filePath string) (*Service, error) {
	s := &Service{
		filePath:  filePath,
		eventChan: make(chan Event, 32),
		stopChan:  make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create watchlist directory: %w", err)
	}

	if err := s.load(); err != nil {
		if os.IsNotExist(err) {
			if err := s.save(); err != nil {
				return nil, fmt.Errorf("failed to create watchlist file: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to load watchlist: %w", err)
		}
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventLoaded})
	return s, nil
}

// Events returns the event channel for subscribing to watchlist changes.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Pairs returns a copy of the watched pairs.
func (s *Service) Pairs() []models.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]models.Pair, len(s.pairs))
	copy(pairs, s.pairs)
	return pairs
}

// AddPair appends a pair if not already present and persists the file.
func (s *Service) AddPair(pair models.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pairs {
		if p == pair {
			return fmt.Errorf("pair %s already on the watchlist", pair)
		}
	}

	s.pairs = append(s.pairs, pair)
	return s.saveLocked()
}

// RemovePair drops a pair and persists the file.
func (s *Service) RemovePair(pair models.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pairs {
		if p == pair {
			s.pairs = append(s.pairs[:i], s.pairs[i+1:]...)
			return s.saveLocked()
		}
	}
	return fmt.Errorf("pair %s not on the watchlist", pair)
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	pairs, err := parsePairs(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pairs = pairs
	s.mu.Unlock()
	return nil
}

func parsePairs(data []byte) ([]models.Pair, error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist file: %w", err)
	}

	var pairs []models.Pair
	for _, key := range file.Pairs {
		pair, err := models.ParsePair(key)
		if err != nil {
			logger.Warn("skipping malformed watchlist entry", "entry", key)
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func (s *Service) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the file atomically (temp file + rename). Must be
// called with the lock held.
func (s *Service) saveLocked() error {
	keys := make([]string, len(s.pairs))
	for i, p := range s.pairs {
		keys[i] = p.Key()
	}

	data, err := json.MarshalIndent(File{Pairs: keys, Version: 1}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal watchlist: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// startWatcher watches the parent directory so file creation and
// editor rename-over saves are both caught.
func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := watcher.Add(filepath.Dir(s.filePath)); err != nil {
		_ = watcher.Close()
		return err
	}

	go s.watchLoop()
	return nil
}

func (s *Service) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				// Debounce rapid editor writes
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, s.handleFileChange)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

func (s *Service) handleFileChange() {
	if err := s.load(); err != nil {
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}
	s.sendEvent(Event{Type: EventChanged})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher and cleans up resources.
func (s *Service) Close() error {
	close(s.stopChan)

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
