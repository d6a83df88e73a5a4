package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skua.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 65536, cfg.GC.Threshold)
	assert.False(t, cfg.GC.Stress)
	assert.Equal(t, 2000, cfg.VM.MaxCallDepth)
	assert.False(t, cfg.VM.Strict)
	assert.Equal(t, ".", cfg.Modules.Root)
	assert.Equal(t, 4, cfg.Modules.Workers)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
gc:
  stress: true
vm:
  strict: true
modules:
  workers: 8
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.GC.Stress)
	assert.Equal(t, 65536, cfg.GC.Threshold, "unset keys keep defaults")
	assert.True(t, cfg.VM.Strict)
	assert.Equal(t, 8, cfg.Modules.Workers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.Equal(t, path, cfg.Path)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().GC, cfg.GC)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "gc:\n  treshold: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treshold")
}

func TestLoadValidates(t *testing.T) {
	_, err := Load(writeConfig(t, "gc:\n  threshold: 0\nmodules:\n  workers: -1\nlog:\n  level: loud\n"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 3)
	assert.Contains(t, err.Error(), "gc.threshold")
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	_, err = Load("")
	require.Error(t, err)
}

func TestResolvePrecedence(t *testing.T) {
	envPath := writeConfig(t, "vm:\n  max_call_depth: 10\n")
	flagPath := writeConfig(t, "vm:\n  max_call_depth: 20\n")

	t.Setenv(EnvVar, "")
	cfg, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.VM.MaxCallDepth)

	t.Setenv(EnvVar, envPath)
	cfg, err = Resolve("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.VM.MaxCallDepth)

	cfg, err = Resolve(flagPath)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.VM.MaxCallDepth)
}
