package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// settingsDir is the per-scope directory holding settings.json.
const settingsDir = ".anotherme"

// Settings are the user-tunable client preferences.
type Settings struct {
	// DefaultMode seeds the scene when nothing was persisted yet.
	DefaultMode string
	// DefaultCapability seeds the capability when nothing was persisted yet.
	DefaultCapability string
	// HistoryLimit bounds the in-memory mode switch history.
	HistoryLimit int
	// StrictStream rejects stream frames without the data prefix.
	StrictStream bool
	// Markdown toggles glamour rendering of assistant replies.
	Markdown bool
	// Raw retains the full JSON map for future compatibility.
	Raw map[string]any

	// set tracks which typed fields were explicitly present so overlays only
	// replace what they name.
	set map[string]bool
}

// DefaultSettings returns the built-in preferences.
func DefaultSettings() *Settings {
	return &Settings{
		Markdown: true,
		Raw:      map[string]any{},
		set:      map[string]bool{},
	}
}

// LoadSettings loads settings from user/project/local sources and merges them
// in that order, then applies extraSettings (a path or inline JSON).
func LoadSettings(cwd string, sources []string, extraSettings string) (*Settings, error) {
	sourceSet := normalizeSources(sources)
	paths, err := settingsPaths(cwd)
	if err != nil {
		return nil, err
	}

	merged := DefaultSettings()
	for _, item := range paths {
		if len(sourceSet) > 0 && !sourceSet[item.Source] {
			continue
		}
		settings, err := loadSettingsFromFile(item.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%s settings: %w", item.Source, err)
		}
		merged = mergeSettings(merged, settings)
	}

	if extraSettings != "" {
		override, err := loadSettingsFlag(extraSettings)
		if err != nil {
			return nil, err
		}
		merged = mergeSettings(merged, override)
	}

	return merged, nil
}

type settingsSource struct {
	Source string
	Path   string
}

// settingsPaths resolves user, project, and local settings files.
func settingsPaths(cwd string) ([]settingsSource, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	projectRoot := findProjectRoot(cwd)

	return []settingsSource{
		{Source: "user", Path: filepath.Join(home, settingsDir, "settings.json")},
		{Source: "project", Path: filepath.Join(projectRoot, settingsDir, "settings.json")},
		{Source: "local", Path: filepath.Join(cwd, settingsDir, "settings.json")},
	}, nil
}

// normalizeSources returns a set of allowed sources, or nil if unrestricted.
func normalizeSources(sources []string) map[string]bool {
	if len(sources) == 0 {
		return nil
	}
	set := make(map[string]bool)
	for _, entry := range sources {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		set[strings.ToLower(entry)] = true
	}
	return set
}

func loadSettingsFromFile(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSettings(raw)
}

// loadSettingsFlag resolves a settings override from a path or inline JSON.
func loadSettingsFlag(value string) (*Settings, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		return parseSettings([]byte(trimmed))
	}
	return loadSettingsFromFile(trimmed)
}

// parseSettings parses settings JSON, ignoring keys of the wrong type.
func parseSettings(raw []byte) (*Settings, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	settings := &Settings{Raw: data, set: map[string]bool{}}

	if value, ok := data["defaultMode"].(string); ok {
		settings.DefaultMode = value
		settings.set["defaultMode"] = true
	}
	if value, ok := data["defaultCapability"].(string); ok {
		settings.DefaultCapability = value
		settings.set["defaultCapability"] = true
	}
	// JSON numbers decode as float64.
	if value, ok := data["historyLimit"].(float64); ok && value > 0 {
		settings.HistoryLimit = int(value)
		settings.set["historyLimit"] = true
	}
	if value, ok := data["strictStream"].(bool); ok {
		settings.StrictStream = value
		settings.set["strictStream"] = true
	}
	if value, ok := data["markdown"].(bool); ok {
		settings.Markdown = value
		settings.set["markdown"] = true
	}

	return settings, nil
}

// mergeSettings applies overlay values on top of the base settings.
func mergeSettings(base *Settings, overlay *Settings) *Settings {
	if base == nil {
		return overlay
	}
	if overlay == nil {
		return base
	}

	merged := &Settings{
		DefaultMode:       base.DefaultMode,
		DefaultCapability: base.DefaultCapability,
		HistoryLimit:      base.HistoryLimit,
		StrictStream:      base.StrictStream,
		Markdown:          base.Markdown,
		Raw:               map[string]any{},
		set:               map[string]bool{},
	}

	for key, value := range base.Raw {
		merged.Raw[key] = value
	}
	for key, value := range overlay.Raw {
		merged.Raw[key] = value
	}
	for key := range base.set {
		merged.set[key] = true
	}
	for key := range overlay.set {
		merged.set[key] = true
	}

	if overlay.set["defaultMode"] {
		merged.DefaultMode = overlay.DefaultMode
	}
	if overlay.set["defaultCapability"] {
		merged.DefaultCapability = overlay.DefaultCapability
	}
	if overlay.set["historyLimit"] {
		merged.HistoryLimit = overlay.HistoryLimit
	}
	if overlay.set["strictStream"] {
		merged.StrictStream = overlay.StrictStream
	}
	if overlay.set["markdown"] {
		merged.Markdown = overlay.Markdown
	}

	return merged
}

// findProjectRoot locates the nearest parent directory containing .git.
func findProjectRoot(cwd string) string {
	current := filepath.Clean(cwd)
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			// If no repository root is found, fall back to the current directory.
			return cwd
		}
		current = parent
	}
}
