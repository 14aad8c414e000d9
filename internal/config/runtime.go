package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Runtime holds the tunables the watcher re-reads for every record.
type Runtime struct {
	WindowSize         int     `json:"window_size"`
	ErrorRateThreshold float64 `json:"error_rate_threshold"`
	AlertCooldownSec   int     `json:"alert_cooldown_sec"`
	MaintenanceMode    bool    `json:"maintenance_mode"`
}

func (r Runtime) Cooldown() time.Duration {
	return time.Duration(r.AlertCooldownSec) * time.Second
}

func (r Runtime) Validate() error {
	if r.WindowSize <= 0 {
		return fmt.Errorf("WINDOW_SIZE must be positive, got %d", r.WindowSize)
	}
	if r.ErrorRateThreshold <= 0 {
		return fmt.Errorf("ERROR_RATE_THRESHOLD must be positive, got %v", r.ErrorRateThreshold)
	}
	if r.AlertCooldownSec < 0 {
		return fmt.Errorf("ALERT_COOLDOWN_SEC must not be negative, got %d", r.AlertCooldownSec)
	}
	return nil
}

// DefaultRuntime returns the built-in defaults.
func DefaultRuntime() Runtime {
	return Runtime{WindowSize: 200, ErrorRateThreshold: 2.0, AlertCooldownSec: 300}
}

type runtimeFile struct {
	WindowSize         *int     `yaml:"window_size"`
	ErrorRateThreshold *float64 `yaml:"error_rate_threshold"`
	AlertCooldownSec   *int     `yaml:"alert_cooldown_sec"`
	MaintenanceMode    *bool    `yaml:"maintenance_mode"`
}

// LoadRuntime reads the tunables from the environment and applies the YAML
// overlay at path on top. An empty path skips the overlay.
func LoadRuntime(path string) (Runtime, error) {
	var env envReader
	d := DefaultRuntime()
	rt := Runtime{
		WindowSize:         env.Int("WINDOW_SIZE", d.WindowSize),
		ErrorRateThreshold: env.Float("ERROR_RATE_THRESHOLD", d.ErrorRateThreshold),
		AlertCooldownSec:   env.Int("ALERT_COOLDOWN_SEC", d.AlertCooldownSec),
		MaintenanceMode:    env.Bool("MAINTENANCE_MODE", false),
	}
	if err := env.Err(); err != nil {
		return Runtime{}, err
	}
	if path == "" {
		return rt, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rt, nil
		}
		return Runtime{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var f runtimeFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Runtime{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if f.WindowSize != nil {
		rt.WindowSize = *f.WindowSize
	}
	if f.ErrorRateThreshold != nil {
		rt.ErrorRateThreshold = *f.ErrorRateThreshold
	}
	if f.AlertCooldownSec != nil {
		rt.AlertCooldownSec = *f.AlertCooldownSec
	}
	if f.MaintenanceMode != nil {
		rt.MaintenanceMode = *f.MaintenanceMode
	}
	return rt, nil
}

// Store publishes the current Runtime to the consumption loop. Readers take a
// snapshot per record; writers replace it wholesale.
type Store struct {
	path string
	mu   sync.Mutex
	cur  atomic.Pointer[Runtime]
}

func NewStore(rt Runtime, path string) *Store {
	s := &Store{path: path}
	s.cur.Store(&rt)
	return s
}

func (s *Store) Snapshot() Runtime {
	return *s.cur.Load()
}

// Reload re-reads env and the YAML overlay. An invalid result is rejected and
// the previous snapshot stays in effect.
func (s *Store) Reload() (Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, err := LoadRuntime(s.path)
	if err != nil {
		return s.Snapshot(), err
	}
	if err := rt.Validate(); err != nil {
		return s.Snapshot(), err
	}
	s.cur.Store(&rt)
	return rt, nil
}

func (s *Store) SetMaintenance(enabled bool) Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := s.Snapshot()
	rt.MaintenanceMode = enabled
	s.cur.Store(&rt)
	return rt
}

// Update replaces the snapshot after validating it.
func (s *Store) Update(rt Runtime) error {
	if err := rt.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Store(&rt)
	return nil
}
