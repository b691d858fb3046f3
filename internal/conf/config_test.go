package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "debug: false\n")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", s.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, s.Backend.Timeout)
	assert.Equal(t, 3, s.Backend.MinutesPerCheckpoint)
	assert.Equal(t, 24*time.Hour, s.Cache.ChecklistTTL)
	assert.InDelta(t, 0.5, s.Recognition.Threshold, 1e-9)
	assert.Equal(t, 15*time.Second, s.Connectivity.ProbeInterval)
	assert.Equal(t, "/health", s.Connectivity.ProbePath)
	assert.Equal(t, 2*time.Minute, s.Auth.RefreshLeeway)
	assert.False(t, s.Metrics.Enabled)
	assert.Empty(t, s.Telemetry.SentryDSN)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	assert.Equal(t, path, s.ConfigFile)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: https://api.example.test/
  timeout: 10s
cache:
  checklist_ttl: 12h
recognition:
  threshold: 0.65
logging:
  module_levels:
    offline: debug
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", s.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, s.Backend.Timeout)
	assert.Equal(t, 12*time.Hour, s.Cache.ChecklistTTL)
	assert.InDelta(t, 0.65, s.Recognition.Threshold, 1e-9)
	assert.Equal(t, "debug", s.Logging.ModuleLevels["offline"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://file.test\n")

	t.Setenv("FIELDSCAN_RECOGNITION_THRESHOLD", "0.8")
	t.Setenv("FIELDSCAN_API_URL", "https://env.test")
	t.Setenv("SENTRY_DSN", "https://key@sentry.test/1")
	t.Setenv("FIELDSCAN_AUTH_PASSPHRASE", "s3cret")

	s, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, s.Recognition.Threshold, 1e-9)
	assert.Equal(t, "https://env.test", s.Backend.BaseURL)
	assert.Equal(t, "https://key@sentry.test/1", s.Telemetry.SentryDSN)
	assert.Equal(t, "s3cret", s.Auth.Passphrase)
}

func TestLoad_PassphraseFile(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "passphrase")
	require.NoError(t, os.WriteFile(secret, []byte("from-file\n"), 0o600))
	path := writeConfig(t, "auth:\n  passphrase_file: "+secret+"\n")
	t.Setenv("FIELDSCAN_AUTH_PASSPHRASE", "ignored")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.Auth.Passphrase)
}

func TestLoad_PassphraseReference(t *testing.T) {
	path := writeConfig(t, "debug: false\n")
	t.Setenv("FS_DEVICE_KEY", "k3y")
	t.Setenv("FIELDSCAN_AUTH_PASSPHRASE", "${FS_DEVICE_KEY}")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "k3y", s.Auth.Passphrase)
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	path := writeConfig(t, "debug: true\n")
	envFile := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("FIELDSCAN_STORE_PATH=/tmp/fs-dotenv.db\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("FIELDSCAN_STORE_PATH") })

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fs-dotenv.db", s.Store.Path)
	assert.True(t, s.Debug)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Settings {
		return Settings{
			Backend:      BackendSettings{BaseURL: "http://localhost:8080", MinutesPerCheckpoint: 3},
			Store:        StoreSettings{Path: "data/x.db"},
			Cache:        CacheSettings{ChecklistTTL: time.Hour},
			Recognition:  RecognitionSettings{Threshold: 0.5},
			Connectivity: ConnectivitySettings{ProbeInterval: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		errMsg string
	}{
		{"valid", func(*Settings) {}, ""},
		{"empty url", func(s *Settings) { s.Backend.BaseURL = "" }, "base_url is required"},
		{"ftp url", func(s *Settings) { s.Backend.BaseURL = "ftp://host" }, "http(s)"},
		{"threshold above one", func(s *Settings) { s.Recognition.Threshold = 1.2 }, "threshold"},
		{"threshold below zero", func(s *Settings) { s.Recognition.Threshold = -0.1 }, "threshold"},
		{"zero ttl", func(s *Settings) { s.Cache.ChecklistTTL = 0 }, "checklist_ttl"},
		{"zero probe interval", func(s *Settings) { s.Connectivity.ProbeInterval = 0 }, "probe_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveYAMLConfig_RoundTrip(t *testing.T) {
	path := writeConfig(t, "recognition:\n  threshold: 0.7\n")
	s, err := Load(path)
	require.NoError(t, err)

	s.Backend.BaseURL = "https://saved.test"
	out := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, SaveYAMLConfig(out, s))

	again, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, "https://saved.test", again.Backend.BaseURL)
	assert.InDelta(t, 0.7, again.Recognition.Threshold, 1e-9)
	assert.Equal(t, s.Cache.ChecklistTTL, again.Cache.ChecklistTTL)
}
