// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/fieldscan/fieldscan/internal/logger"
)

// DefaultChecklistTTL is the validity window of a cached checklist
const DefaultChecklistTTL = 24 * time.Hour

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.user_agent", "FieldScan")
	v.SetDefault("backend.minutes_per_checkpoint", 3)

	v.SetDefault("store.path", "data/fieldscan.db")

	v.SetDefault("cache.checklist_ttl", DefaultChecklistTTL)
	v.SetDefault("cache.catalogue_ttl", time.Hour)

	v.SetDefault("recognition.threshold", 0.5)

	v.SetDefault("connectivity.probe_interval", 15*time.Second)
	v.SetDefault("connectivity.probe_timeout", 5*time.Second)
	v.SetDefault("connectivity.probe_path", "/health")

	v.SetDefault("auth.credential_path", "data/credentials.enc")
	v.SetDefault("auth.refresh_leeway", 2*time.Minute)
	v.SetDefault("auth.passphrase", "")
	v.SetDefault("auth.passphrase_file", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
}
