// Package claudeconf reads and edits the local Claude Code installation's
// settings so its built-in OTLP telemetry exporter points at the metering
// backend. Only the env block of settings.json is touched; every other key
// is preserved byte-for-byte.
package claudeconf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	claudeDirName    = ".claude"
	settingsFileName = "settings.json"
	projectsDirName  = "projects"
)

// telemetryEnvKeys are the env vars ccmeter manages. Endpoint and headers are
// filled in per install; the rest are fixed exporter settings.
var telemetryEnvKeys = []string{
	"CLAUDE_CODE_ENABLE_TELEMETRY",
	"OTEL_METRICS_EXPORTER",
	"OTEL_LOGS_EXPORTER",
	"OTEL_EXPORTER_OTLP_PROTOCOL",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_HEADERS",
}

// Manager locates and edits a Claude Code home directory.
type Manager struct {
	claudeDir string
}

// NewManager creates a Manager for the given Claude home directory.
// An empty override resolves to ~/.claude.
func NewManager(overrideDir string) (*Manager, error) {
	if overrideDir != "" {
		return &Manager{claudeDir: overrideDir}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	return &Manager{claudeDir: filepath.Join(home, claudeDirName)}, nil
}

// SettingsPath returns the path to settings.json.
func (m *Manager) SettingsPath() string {
	return filepath.Join(m.claudeDir, settingsFileName)
}

// ProjectsDir returns the transcript root the backfill pipeline scans.
func (m *Manager) ProjectsDir() string {
	return filepath.Join(m.claudeDir, projectsDirName)
}

// loadSettings reads settings.json as raw messages so unrelated keys survive
// a round trip untouched. A missing file yields an empty settings map.
func (m *Manager) loadSettings() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(m.SettingsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	settings := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}

	return settings, nil
}

// loadEnv extracts the env block from settings, or an empty map when absent.
func loadEnv(settings map[string]json.RawMessage) (map[string]string, error) {
	env := map[string]string{}
	raw, ok := settings["env"]
	if !ok {
		return env, nil
	}

	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parsing settings env block: %w", err)
	}

	return env, nil
}

func (m *Manager) saveSettings(settings map[string]json.RawMessage) error {
	if err := os.MkdirAll(m.claudeDir, 0o755); err != nil {
		return fmt.Errorf("creating claude directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	if err := os.WriteFile(m.SettingsPath(), data, 0o644); err != nil { //nolint:gosec // settings.json is user-readable by convention
		return fmt.Errorf("writing settings: %w", err)
	}

	return nil
}

// Enable writes the telemetry env block pointing Claude Code's OTLP exporter
// at the given backend. Existing unrelated env vars and settings keys are kept.
func (m *Manager) Enable(endpoint, apiKey string) error {
	settings, err := m.loadSettings()
	if err != nil {
		return err
	}

	env, err := loadEnv(settings)
	if err != nil {
		return err
	}

	env["CLAUDE_CODE_ENABLE_TELEMETRY"] = "1"
	env["OTEL_METRICS_EXPORTER"] = "otlp"
	env["OTEL_LOGS_EXPORTER"] = "otlp"
	env["OTEL_EXPORTER_OTLP_PROTOCOL"] = "http/json"
	env["OTEL_EXPORTER_OTLP_ENDPOINT"] = endpoint
	env["OTEL_EXPORTER_OTLP_HEADERS"] = "x-api-key=" + apiKey

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling env block: %w", err)
	}
	settings["env"] = raw

	return m.saveSettings(settings)
}

// Disable removes only the env vars Enable manages. Other env vars and
// settings keys are untouched; an env block left empty is removed entirely.
func (m *Manager) Disable() error {
	settings, err := m.loadSettings()
	if err != nil {
		return err
	}

	env, err := loadEnv(settings)
	if err != nil {
		return err
	}

	for _, k := range telemetryEnvKeys {
		delete(env, k)
	}

	if len(env) == 0 {
		delete(settings, "env")
	} else {
		raw, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshaling env block: %w", err)
		}
		settings["env"] = raw
	}

	return m.saveSettings(settings)
}

// TelemetryEnabled reports whether the managed env block currently enables
// telemetry export, and to which endpoint.
func (m *Manager) TelemetryEnabled() (bool, string, error) {
	settings, err := m.loadSettings()
	if err != nil {
		return false, "", err
	}

	env, err := loadEnv(settings)
	if err != nil {
		return false, "", err
	}

	enabled := env["CLAUDE_CODE_ENABLE_TELEMETRY"] == "1"
	return enabled, env["OTEL_EXPORTER_OTLP_ENDPOINT"], nil
}
