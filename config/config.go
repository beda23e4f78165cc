package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraktSettings holds the upstream provider credentials. Token acquisition is
// out of scope here; tokens are configured externally and read as-is.
type TraktSettings struct {
	ClientID    string `json:"clientId"`
	AccessToken string `json:"accessToken"`
	// ArtworkBaseURL, when set, is the template used to build poster URLs
	// (Trakt itself serves no images). %s is replaced with the IMDb ID.
	ArtworkBaseURL string `json:"artworkBaseUrl,omitempty"`
}

// Settings is the full on-disk configuration.
type Settings struct {
	ListenAddr    string `json:"listenAddr"`
	RPCSocketPath string `json:"rpcSocketPath"`
	DatabasePath  string `json:"databasePath"`
	LogPath       string `json:"logPath,omitempty"`

	// StalenessThresholdDays is the maximum age of cached metadata before a
	// read triggers a refresh. This is the single source of truth for
	// staleness; there is no separate hardcoded threshold.
	StalenessThresholdDays int `json:"stalenessThresholdDays"`

	// UpdateFrequencyMinutes is how often the background refresher scans for
	// stale items.
	UpdateFrequencyMinutes int `json:"updateFrequencyMinutes"`

	// RequestTimeoutSeconds bounds each upstream provider call.
	RequestTimeoutSeconds int `json:"requestTimeoutSeconds"`

	Trakt TraktSettings `json:"trakt"`
}

// StalenessThreshold returns the configured threshold as a duration.
func (s Settings) StalenessThreshold() time.Duration {
	days := s.StalenessThresholdDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// UpdateFrequency returns the background refresh interval.
func (s Settings) UpdateFrequency() time.Duration {
	minutes := s.UpdateFrequencyMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// RequestTimeout returns the per-call upstream timeout.
func (s Settings) RequestTimeout() time.Duration {
	secs := s.RequestTimeoutSeconds
	if secs <= 0 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

func defaultSettings() Settings {
	return Settings{
		ListenAddr:             ":5001",
		RPCSocketPath:          "metabattery.sock",
		DatabasePath:           "metabattery.db",
		StalenessThresholdDays: 7,
		UpdateFrequencyMinutes: 60,
		RequestTimeoutSeconds:  10,
	}
}

// Manager loads and saves Settings from a JSON file. Safe for concurrent use.
type Manager struct {
	path string

	mu     sync.RWMutex
	cached *Settings
}

// NewManager creates a manager for the settings file at path. The file is
// created with defaults on first Save; Load of a missing file returns
// defaults without error.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load returns the current settings, reading the file on first call and
// caching afterwards. Unset fields fall back to defaults.
func (m *Manager) Load() (Settings, error) {
	m.mu.RLock()
	if m.cached != nil {
		s := *m.cached
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		return *m.cached, nil
	}

	settings := defaultSettings()
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.cached = &settings
			return settings, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", m.path, err)
	}
	applyDefaults(&settings)
	m.cached = &settings
	return settings, nil
}

// Save persists settings to disk atomically and updates the cache.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	applyDefaults(&settings)
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	m.cached = &settings
	return nil
}

func applyDefaults(s *Settings) {
	def := defaultSettings()
	if s.ListenAddr == "" {
		s.ListenAddr = def.ListenAddr
	}
	if s.RPCSocketPath == "" {
		s.RPCSocketPath = def.RPCSocketPath
	}
	if s.DatabasePath == "" {
		s.DatabasePath = def.DatabasePath
	}
	if s.StalenessThresholdDays <= 0 {
		s.StalenessThresholdDays = def.StalenessThresholdDays
	}
	if s.UpdateFrequencyMinutes <= 0 {
		s.UpdateFrequencyMinutes = def.UpdateFrequencyMinutes
	}
	if s.RequestTimeoutSeconds <= 0 {
		s.RequestTimeoutSeconds = def.RequestTimeoutSeconds
	}
}
