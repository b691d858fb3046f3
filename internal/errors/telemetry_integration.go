package errors

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives built errors
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu     sync.RWMutex
	globalReporter TelemetryReporter
)

// SetTelemetryReporter installs reporter; nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	reporter := globalReporter
	reporterMu.RUnlock()

	if reporter != nil && reporter.IsEnabled() && !ee.IsReported() {
		reporter.ReportError(ee)
	}
}

// SentryReporter forwards selected categories to Sentry
type SentryReporter struct {
	enabled    bool
	categories map[ErrorCategory]bool
}

// NewSentryReporter reports only the listed categories; with none listed
// it reports network, database and sync failures.
func NewSentryReporter(enabled bool, categories ...ErrorCategory) *SentryReporter {
	if len(categories) == 0 {
		categories = []ErrorCategory{CategoryNetwork, CategoryDatabase, CategorySync}
	}
	set := make(map[ErrorCategory]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return &SentryReporter{enabled: enabled, categories: set}
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends ee to Sentry with the message scrubbed
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || !sr.categories[ee.Category] {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetFingerprint([]string{ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = sentryLevel(ee.Category)
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s %s", ee.Component, ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func sentryLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryHTTP, CategorySync:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	urlQueryPattern = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	secretPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)bearer\s+\S+`),
		regexp.MustCompile(`(?i)(access_token|refresh_token|token|password)[=:]\S+`),
	}
)

// scrubMessage strips query strings and credentials before a message
// leaves the device.
func scrubMessage(message string) string {
	scrubbed := urlQueryPattern.ReplaceAllString(message, "$1?[REDACTED]")
	for _, pattern := range secretPatterns {
		scrubbed = pattern.ReplaceAllString(scrubbed, "[CREDENTIAL_REDACTED]")
	}
	return scrubbed
}
