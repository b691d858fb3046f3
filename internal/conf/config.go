// Package conf loads FieldScan settings from a YAML file, the environment
// and an optional .env file.
package conf

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/secrets"
)

// EnvPrefix prefixes every environment override, e.g. FIELDSCAN_BACKEND_BASE_URL
const EnvPrefix = "FIELDSCAN"

// BackendSettings configures the remote API
type BackendSettings struct {
	BaseURL              string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout              time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent            string        `mapstructure:"user_agent" yaml:"user_agent"`
	MinutesPerCheckpoint int           `mapstructure:"minutes_per_checkpoint" yaml:"minutes_per_checkpoint"` // estimate on the lookup-only fallback
}

// StoreSettings configures the local database
type StoreSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CacheSettings configures cache validity
type CacheSettings struct {
	ChecklistTTL time.Duration `mapstructure:"checklist_ttl" yaml:"checklist_ttl"`
	CatalogueTTL time.Duration `mapstructure:"catalogue_ttl" yaml:"catalogue_ttl"`
}

// RecognitionSettings configures the recognition pipeline
type RecognitionSettings struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"` // upstream recognizer acceptance threshold
}

// ConnectivitySettings configures the reachability probe
type ConnectivitySettings struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	ProbePath     string        `mapstructure:"probe_path" yaml:"probe_path"`
}

// AuthSettings configures token storage
type AuthSettings struct {
	CredentialPath string        `mapstructure:"credential_path" yaml:"credential_path"`
	RefreshLeeway  time.Duration `mapstructure:"refresh_leeway" yaml:"refresh_leeway"`
	Passphrase     string        `mapstructure:"passphrase" yaml:"-"` // env only, ${VAR} references expanded
	PassphraseFile string        `mapstructure:"passphrase_file" yaml:"passphrase_file"`
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// TelemetrySettings configures error reporting
type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Settings is the complete configuration
type Settings struct {
	Debug        bool                 `mapstructure:"debug" yaml:"debug"`
	Backend      BackendSettings      `mapstructure:"backend" yaml:"backend"`
	Store        StoreSettings        `mapstructure:"store" yaml:"store"`
	Cache        CacheSettings        `mapstructure:"cache" yaml:"cache"`
	Recognition  RecognitionSettings  `mapstructure:"recognition" yaml:"recognition"`
	Connectivity ConnectivitySettings `mapstructure:"connectivity" yaml:"connectivity"`
	Auth         AuthSettings         `mapstructure:"auth" yaml:"auth"`
	Metrics      MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
	Logging      logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ConfigFile is the file the settings were read from, empty when none
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// Load reads settings. configFile may be empty, in which case config.yaml is
// searched for in the default paths and its absence is not an error.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		for _, p := range defaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_file", configFile).
				Build()
		}
	}

	loadDotEnv(v.ConfigFileUsed())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}
	settings.ConfigFile = v.ConfigFileUsed()
	settings.Backend.BaseURL = strings.TrimRight(settings.Backend.BaseURL, "/")

	passphrase, err := secrets.Resolve(settings.Auth.PassphraseFile, settings.Auth.Passphrase)
	if err != nil {
		return nil, err
	}
	settings.Auth.Passphrase = passphrase

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// defaultConfigPaths lists config search directories in priority order
func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "fieldscan"))
	}
	return paths
}

// loadDotEnv loads .env from the working directory and next to the config
// file. Variables already set in the environment win.
func loadDotEnv(configFile string) {
	candidates := []string{".env"}
	if configFile != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configFile), ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}
