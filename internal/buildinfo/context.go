// Package buildinfo carries build-time metadata and the device identity,
// kept apart from user configuration.
package buildinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// UnknownValue is reported for metadata that was not injected
const UnknownValue = "unknown"

const deviceIDFile = ".device_id"

// Context holds build metadata injected at startup
type Context struct {
	// Version is the git tag set with -ldflags
	Version string
	// BuildDate is the build timestamp set with -ldflags
	BuildDate string
	// DeviceID identifies this installation in error reports
	DeviceID string
}

// NewContext returns a Context
func NewContext(version, buildDate, deviceID string) *Context {
	return &Context{Version: version, BuildDate: buildDate, DeviceID: deviceID}
}

// GetVersion returns the version or UnknownValue
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetDeviceID returns the device id or UnknownValue
func (c *Context) GetDeviceID() string {
	if c == nil || c.DeviceID == "" {
		return UnknownValue
	}
	return c.DeviceID
}

// Release is the release name sent with error reports
func (c *Context) Release() string {
	return "fieldscan@" + c.GetVersion()
}

// UserAgent is the User-Agent header value for backend requests
func (c *Context) UserAgent(product string) string {
	if product == "" {
		product = "FieldScan"
	}
	return fmt.Sprintf("%s/%s", product, c.GetVersion())
}

// LoadOrCreateDeviceID reads the device id stored in dir, creating one when
// it is missing or malformed
func LoadOrCreateDeviceID(dir string) (string, error) {
	path := filepath.Join(dir, deviceIDFile)

	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr == nil {
			return id, nil
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", deviceIDError(err, dir)
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", deviceIDError(err, dir)
	}
	return id, nil
}

func deviceIDError(err error, dir string) error {
	return errors.New(err).
		Component("buildinfo").
		Category(errors.CategoryFileIO).
		Context("dir", dir).
		Build()
}
