package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// Validate reports every invalid setting in one error
func (s *Settings) Validate() error {
	var problems []string

	if s.Backend.BaseURL == "" {
		problems = append(problems, "backend.base_url is required")
	} else if u, err := url.Parse(s.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("backend.base_url must be an http(s) URL, got %q", s.Backend.BaseURL))
	}
	if s.Backend.MinutesPerCheckpoint < 0 {
		problems = append(problems, "backend.minutes_per_checkpoint must not be negative")
	}
	if s.Recognition.Threshold < 0 || s.Recognition.Threshold > 1 {
		problems = append(problems, fmt.Sprintf("recognition.threshold must be within [0,1], got %v", s.Recognition.Threshold))
	}
	if s.Cache.ChecklistTTL <= 0 {
		problems = append(problems, "cache.checklist_ttl must be positive")
	}
	if s.Connectivity.ProbeInterval <= 0 {
		problems = append(problems, "connectivity.probe_interval must be positive")
	}
	if s.Store.Path == "" {
		problems = append(problems, "store.path is required")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid configuration: %s", strings.Join(problems, "; ")).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("problem_count", len(problems)).
		Build()
}
