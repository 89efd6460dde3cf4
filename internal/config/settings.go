package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds all configuration options.
type Settings struct {
	// Download settings
	DownloadRoot           string        `yaml:"download_root"`
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads"`
	MonitorInterval        time.Duration `yaml:"monitor_interval"`

	// Cache settings
	CacheDir     string `yaml:"cache_dir"`
	RefreshCache bool   `yaml:"refresh_cache"`

	Log   LogSettings   `yaml:"log"`
	Aria2 Aria2Settings `yaml:"aria2"`
	API   APISettings   `yaml:"api"`
}

// LogSettings controls the rotating log file.
type LogSettings struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Verbose    bool   `yaml:"verbose"`
}

// Aria2Settings describes how to find, start and reach the aria2 daemon.
type Aria2Settings struct {
	Binary       string        `yaml:"binary"`
	ProcessName  string        `yaml:"process_name"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Secret       string        `yaml:"secret"`
	StartupGrace time.Duration `yaml:"startup_grace"`
}

// APISettings tunes requests made to the Cloudreve server.
type APISettings struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	// RequestsPerSecond limits listing and link requests. Zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		DownloadRoot:           "./download",
		MaxConcurrentDownloads: 10,
		MonitorInterval:        15 * time.Second,

		CacheDir:     "./cache",
		RefreshCache: false,

		Log: LogSettings{
			File:       "download.log",
			MaxSizeMB:  10,
			MaxAgeDays: 7,
		},

		Aria2: Aria2Settings{
			Binary:       "aria2c",
			ProcessName:  "aria2c",
			Host:         "http://localhost",
			Port:         6800,
			StartupGrace: 2 * time.Second,
		},

		API: APISettings{
			Timeout:   60 * time.Second,
			UserAgent: "CloudreveDownloader",
		},
	}
}

// Load reads settings from a YAML file.
// A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return settings, settings.Validate()
}

// Save writes settings to a YAML file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports settings that would make a run impossible.
func (s *Settings) Validate() error {
	var errs []error
	if s.DownloadRoot == "" {
		errs = append(errs, errors.New("download_root must not be empty"))
	}
	if s.MaxConcurrentDownloads < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_downloads must be at least 1, got %d", s.MaxConcurrentDownloads))
	}
	if s.MonitorInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor_interval must be positive, got %s", s.MonitorInterval))
	}
	if s.CacheDir == "" {
		errs = append(errs, errors.New("cache_dir must not be empty"))
	}
	if s.Aria2.Port <= 0 || s.Aria2.Port > 65535 {
		errs = append(errs, fmt.Errorf("aria2.port out of range: %d", s.Aria2.Port))
	}
	if s.API.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("api.requests_per_second must not be negative, got %v", s.API.RequestsPerSecond))
	}
	return errors.Join(errs...)
}

// Aria2Endpoint returns the JSON-RPC URL of the aria2 daemon.
func (s *Settings) Aria2Endpoint() string {
	return fmt.Sprintf("%s:%d/jsonrpc", s.Aria2.Host, s.Aria2.Port)
}
