package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Load_UsesDefaultsWhenFileMissing(t *testing.T) {
	m := &Manager{path: filepath.Join(t.TempDir(), "missing.yaml")}
	require.NoError(t, m.Load())
	assert.Equal(t, Default().LogLevel, m.Get().LogLevel)
}

func TestManager_Load_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\noutputDir: custom-sessions\n"), 0644))

	m := &Manager{path: path}
	require.NoError(t, m.Load())

	got := m.Get()
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, "custom-sessions", got.OutputDir)
	assert.Equal(t, Default().InputDir, got.InputDir, "fields absent from the file keep their default")
}

func TestManager_Load_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0644))

	t.Setenv("AUDITOR_LOG_LEVEL", "error")
	m := &Manager{path: path}
	require.NoError(t, m.Load())

	assert.Equal(t, "error", m.Get().LogLevel)
}
