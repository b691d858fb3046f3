package logger

import "regexp"

// sensitivePatterns match credentials that must never reach log output.
// The first group is kept, the secret is replaced.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`(?i)((?:access_token|refresh_token|sso_token|token|password|secret|api_key)["']?\s*[:=]\s*["']?)[^\s"',;&]+`),
}

// RedactSensitiveData replaces bearer tokens, token and password values
// with "[REDACTED]".
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitivePatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}
	return input
}
