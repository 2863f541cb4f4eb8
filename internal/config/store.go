package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSaveDebounce is how long the store waits after the last change
// before writing the file.
const DefaultSaveDebounce = 400 * time.Millisecond

// Store holds the authoritative configuration. Readers get the current
// immutable snapshot without locking; writers are serialized and each
// change is published to subscribers and persisted after a quiet period.
type Store struct {
	path     string
	debounce time.Duration
	log      *slog.Logger

	current atomic.Pointer[Config]

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	subs   []chan *Config
	closed bool
}

func NewStore(path string, initial *Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if initial == nil {
		initial = DefaultConfig()
	}
	s := &Store{path: path, debounce: DefaultSaveDebounce, log: logger}
	s.current.Store(initial)
	return s
}

// SetSaveDebounce changes the save delay. It must be called before the first update.
func (s *Store) SetSaveDebounce(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debounce = d
}

func (s *Store) Path() string {
	return s.path
}

// Current returns the active configuration. Callers must treat it as read-only.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Subscribe returns a channel that receives each new configuration. A slow
// subscriber only ever sees the latest one.
func (s *Store) Subscribe() <-chan *Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan *Config, 1)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Update applies fn to a builder seeded with the current configuration,
// publishes the result, and schedules a save.
func (s *Store) Update(fn func(b *Builder)) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := NewBuilder(s.current.Load())
	fn(b)
	next, err := b.Build()
	if err != nil {
		return nil, err
	}
	s.publishLocked(next)
	s.scheduleSaveLocked()
	return next, nil
}

// Replace validates cfg, publishes it, and schedules a save.
func (s *Store) Replace(cfg *Config) (*Config, error) {
	next, err := NormalizeAndValidate(cfg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(next)
	s.scheduleSaveLocked()
	return next, nil
}

// Reload publishes a configuration that was read back from disk. It does
// not save, and it reports false when cfg matches the current configuration
// or when an in-memory change is still waiting to be saved; that change is
// newer than anything on disk and the pending save will overwrite the file.
func (s *Store) Reload(cfg *Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		s.log.Debug("config reload skipped, save pending", "path", s.path)
		return false
	}
	if reflect.DeepEqual(cfg, s.current.Load()) {
		return false
	}
	s.publishLocked(cfg)
	return true
}

func (s *Store) publishLocked(cfg *Config) {
	s.current.Store(cfg)
	for _, ch := range s.subs {
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
			}
		}
	}
}

func (s *Store) scheduleSaveLocked() {
	s.dirty = true
	if s.closed {
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.save)
		return
	}
	s.timer.Reset(s.debounce)
}

func (s *Store) save() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(); err != nil {
		s.log.Error("save config", "path", s.path, "err", err)
	}
}

func (s *Store) saveLocked() error {
	if !s.dirty {
		return nil
	}
	cfg := s.current.Load()
	if err := Save(s.path, cfg); err != nil {
		return err
	}
	s.dirty = false
	s.log.Debug("config saved", "path", s.path)
	return nil
}

// Flush writes any pending change immediately.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("flush config: %w", err)
	}
	return nil
}

// Close flushes pending changes and closes every subscription.
func (s *Store) Close() error {
	err := s.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		for _, ch := range s.subs {
			close(ch)
		}
		s.subs = nil
	}
	return err
}
