// Package secrets resolves credential values from mounted files, environment
// references or literals. Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
)

const (
	// maxSecretFileSize bounds secret file reads; secrets are small
	maxSecretFileSize = 64 * 1024
)

// ExpandString expands ${VAR} and ${VAR:-default} references. A reference
// without a default to an unset variable is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret from a mounted file. Trailing newlines are
// trimmed; an empty file is an error. Group or world permissions are
// logged as a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError(errors.NewStd("secret file path is empty"), path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", secretError(err, clean)
	}
	if !info.Mode().IsRegular() {
		return "", secretError(errors.NewStd("secret path is not a regular file"), clean)
	}
	if info.Size() > maxSecretFileSize {
		return "", secretError(errors.NewStd("secret file too large"), clean)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("perm", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", secretError(err, clean)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError(errors.NewStd("secret file is empty"), clean)
	}
	return secret, nil
}

// Resolve picks the secret from filePath when set, otherwise expands value.
// Both empty resolves to the empty string.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

func secretError(err error, path string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}
