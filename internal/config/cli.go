// Package config loads the CLI's own operating settings, distinct from the
// JSON business-rules configuration internal/rulesconfig already covers
// (SPEC_FULL.md §6). It is adapted from the teacher's
// internal/shared/config.Manager: a YAML file with defaults, environment
// overrides and optional fsnotify hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/catherinevee/integration-auditor/internal/logging"
)

// CLI is the auditor's own settings: where it looks for business rules,
// where it writes session output, and how loudly it logs. It is orthogonal
// to any one product's business-rules.json.
type CLI struct {
	LogLevel      string `yaml:"logLevel"`
	ConfigDir     string `yaml:"configDir"`
	InputDir      string `yaml:"inputDir"`
	OutputDir     string `yaml:"outputDir"`
	StateDBPath   string `yaml:"stateDbPath"`
	AuditDir      string `yaml:"auditDir"`
	DefaultTier   string `yaml:"defaultTier"`
}

// Default returns the auditor's built-in settings, used when no config
// file exists and as the base applyNonZero fills gaps into.
func Default() CLI {
	return CLI{
		LogLevel:    "info",
		ConfigDir:   "config",
		InputDir:    "input",
		OutputDir:   "sessions",
		StateDBPath: "state/integration-auditor.db",
		AuditDir:    "audit",
		DefaultTier: "",
	}
}

// Manager owns one CLI config with optional hot reload, mirroring the
// teacher's config.Manager shape.
type Manager struct {
	mu        sync.RWMutex
	cfg       CLI
	path      string
	watcher   *fsnotify.Watcher
	callbacks []func(CLI)
	logger    *logging.Logger
}

// NewManager loads path (or the defaults if it doesn't exist) and starts
// watching it for changes. A watcher failure is non-fatal: the manager
// still works, just without hot reload.
func NewManager(path string, logger *logging.Logger) (*Manager, error) {
	if logger == nil {
		logger = logging.New(logging.Info, nil)
	}
	m := &Manager{path: path, logger: logger}
	if err := m.Load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return m, nil
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return m, nil
	}
	m.watcher = watcher
	go m.watchChanges()
	return m, nil
}

// Load reads the config file from disk, applying defaults and environment
// overrides. Called once at startup and again on every hot-reload event.
func (m *Manager) Load() error {
	cfg := Default()

	if data, err := os.ReadFile(m.path); err == nil {
		var fromFile CLI
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return fmt.Errorf("config: parse %s: %w", m.path, err)
		}
		applyNonZero(&cfg, fromFile)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("config: read %s: %w", m.path, err)
	}

	applyEnvOverrides(&cfg)

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Get returns the current settings.
func (m *Manager) Get() CLI {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// OnChange registers a callback fired after every successful hot reload.
func (m *Manager) OnChange(cb func(CLI)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Close stops the file watcher, if any.
func (m *Manager) Close() {
	if m.watcher != nil {
		m.watcher.Close()
	}
}

func (m *Manager) watchChanges() {
	defer m.watcher.Close()
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := m.Load(); err != nil {
				m.logger.Warn("config reload failed", logging.F("error", err.Error()))
				continue
			}
			m.logger.Info("config reloaded", logging.F("path", m.path))
			m.mu.RLock()
			cfg := m.cfg
			callbacks := append([]func(CLI){}, m.callbacks...)
			m.mu.RUnlock()
			for _, cb := range callbacks {
				cb(cfg)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", logging.F("error", err.Error()))
		}
	}
}

// applyNonZero copies every non-zero-value field of override onto base,
// the same override-wins-if-non-zero rule rulesconfig.mergeBusinessRules
// uses for product overrides.
func applyNonZero(base *CLI, override CLI) {
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.ConfigDir != "" {
		base.ConfigDir = override.ConfigDir
	}
	if override.InputDir != "" {
		base.InputDir = override.InputDir
	}
	if override.OutputDir != "" {
		base.OutputDir = override.OutputDir
	}
	if override.StateDBPath != "" {
		base.StateDBPath = override.StateDBPath
	}
	if override.AuditDir != "" {
		base.AuditDir = override.AuditDir
	}
	if override.DefaultTier != "" {
		base.DefaultTier = override.DefaultTier
	}
}

func applyEnvOverrides(cfg *CLI) {
	if v := os.Getenv("AUDITOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AUDITOR_CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	}
	if v := os.Getenv("AUDITOR_INPUT_DIR"); v != "" {
		cfg.InputDir = v
	}
	if v := os.Getenv("AUDITOR_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("AUDITOR_STATE_DB"); v != "" {
		cfg.StateDBPath = v
	}
	if v := os.Getenv("AUDITOR_AUDIT_DIR"); v != "" {
		cfg.AuditDir = v
	}
	if v := os.Getenv("AUDITOR_DEFAULT_TIER"); v != "" {
		cfg.DefaultTier = v
	}
}
