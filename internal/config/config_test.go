package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, file string) (*Config, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return Load(v)
}

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := loadFrom(t, "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	rot := cfg.Log.Rotation()
	assert.Equal(t, int64(5*1024*1024), rot.MaxSizeBytes)
	assert.Equal(t, 3, rot.MaxBackups)

	loc, err := cfg.Log.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "filelog.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
log:
  dir: /var/log/app
  max_size_bytes: 1024
  encoding: json
  timezone: UTC
server:
  addr: 127.0.0.1:9000
  shutdown_timeout: 10s
`), 0644))

	t.Setenv("FILELOG_LOG_MAX_BACKUPS", "7")
	t.Setenv("FILELOG_DIAG_LEVEL", "debug")

	cfg, err := loadFrom(t, file)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/app", cfg.Log.Dir)
	assert.Equal(t, int64(1024), cfg.Log.MaxSizeBytes)
	assert.Equal(t, 7, cfg.Log.MaxBackups)
	assert.Equal(t, "json", cfg.Log.Encoding)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Diag.Level)

	loc, err := cfg.Log.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestValidationRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad encoding", map[string]string{"FILELOG_LOG_ENCODING": "xml"}},
		{"negative size", map[string]string{"FILELOG_LOG_MAX_SIZE_BYTES": "-1"}},
		{"negative backups", map[string]string{"FILELOG_LOG_MAX_BACKUPS": "-2"}},
		{"bad diag level", map[string]string{"FILELOG_DIAG_LEVEL": "loud"}},
		{"unknown timezone", map[string]string{"FILELOG_LOG_TIMEZONE": "Mars/Olympus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadFrom(t, "")
			assert.Error(t, err)
		})
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := loadFrom(t, filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
