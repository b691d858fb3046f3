package conf

import (
	"github.com/spf13/viper"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// envBinding maps a config key to extra environment variable names on top
// of the automatic FIELDSCAN_<SECTION>_<KEY> binding
type envBinding struct {
	ConfigKey string
	EnvVars   []string
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"backend.base_url", []string{"FIELDSCAN_BACKEND_BASE_URL", "FIELDSCAN_API_URL"}},
		{"auth.passphrase", []string{"FIELDSCAN_AUTH_PASSPHRASE", "FIELDSCAN_PASSPHRASE"}},
		{"telemetry.sentry_dsn", []string{"FIELDSCAN_TELEMETRY_SENTRY_DSN", "SENTRY_DSN"}},
	}
}

func bindEnvVars(v *viper.Viper) error {
	for _, b := range getEnvBindings() {
		args := append([]string{b.ConfigKey}, b.EnvVars...)
		if err := v.BindEnv(args...); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_key", b.ConfigKey).
				Build()
		}
	}
	return nil
}
