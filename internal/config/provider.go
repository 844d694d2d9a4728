package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultAPIBaseURL is the backend served by a local Another Me install.
	DefaultAPIBaseURL = "http://localhost:8000/api/v1"
	// DefaultTimeoutMS matches the backend's own request timeout.
	DefaultTimeoutMS = 60000
)

// ProviderConfig defines how the client reaches the Another Me backend.
type ProviderConfig struct {
	// APIBaseURL is the versioned API root, e.g. http://host:8000/api/v1.
	APIBaseURL string `json:"api_base_url"`
	// APIKey is sent as a bearer token, if provided.
	APIKey string `json:"api_key,omitempty"`
	// TimeoutMS configures non-streaming request timeout in milliseconds.
	TimeoutMS int `json:"timeout_ms"`
	// StreamTimeoutMS bounds a streaming chat; zero leaves it unbounded.
	StreamTimeoutMS int `json:"stream_timeout_ms,omitempty"`
}

// ErrProviderConfigInvalid is returned when a present config cannot be used.
var ErrProviderConfigInvalid = errors.New("provider config invalid")

// BaseDir returns ~/.anotherme, the root for all client state.
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".anotherme"), nil
}

// ProviderConfigPath returns the default provider config path.
func ProviderConfigPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.json"), nil
}

// DefaultProviderConfig returns the config used when no file exists.
func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		APIBaseURL: DefaultAPIBaseURL,
		TimeoutMS:  DefaultTimeoutMS,
	}
}

// LoadProviderConfig reads and validates the provider config. A missing file
// yields the defaults.
func LoadProviderConfig(path string) (*ProviderConfig, error) {
	if path == "" {
		var err error
		path, err = ProviderConfigPath()
		if err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProviderConfig(), nil
		}
		return nil, fmt.Errorf("read provider config: %w", err)
	}

	cfg := DefaultProviderConfig()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse provider config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveProviderConfig writes cfg with owner-only permissions.
func SaveProviderConfig(path string, cfg *ProviderConfig) error {
	if err := cfg.normalize(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	payload, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal provider config: %w", err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o600); err != nil {
		return fmt.Errorf("write provider config: %w", err)
	}
	return nil
}

// WithBaseURL returns a copy of cfg pointing at baseURL when it is non-empty.
func (cfg *ProviderConfig) WithBaseURL(baseURL string) (*ProviderConfig, error) {
	clone := *cfg
	if strings.TrimSpace(baseURL) == "" {
		return &clone, nil
	}
	clone.APIBaseURL = baseURL
	if err := clone.normalize(); err != nil {
		return nil, err
	}
	return &clone, nil
}

// normalize applies defaults and validates the base URL.
func (cfg *ProviderConfig) normalize() error {
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	parsed, err := url.Parse(cfg.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: api_base_url %q", ErrProviderConfigInvalid, cfg.APIBaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrProviderConfigInvalid, parsed.Scheme)
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = DefaultTimeoutMS
	}
	if cfg.StreamTimeoutMS < 0 {
		cfg.StreamTimeoutMS = 0
	}
	return nil
}
