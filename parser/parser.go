package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-admin-console/config"
	"github.com/aluiziolira/go-admin-console/models"
)

// ValidationError is an operator input problem caught before any request is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidateStart checks a scraping start request against the backend schema.
func ValidateStart(req *models.StartRequest) error {
	if req == nil {
		return invalid("request", "request is nil")
	}
	if len(req.Spiders) == 0 {
		return invalid("spiders", "select at least one spider")
	}
	if len(req.Countries) == 0 {
		return invalid("countries", "select at least one country")
	}
	if req.MaxJobs <= 0 || req.MaxJobs > config.MaxJobsLimit {
		return invalid("max_jobs", "must be between 1 and %d, got %d", config.MaxJobsLimit, req.MaxJobs)
	}
	if req.MaxPages <= 0 || req.MaxPages > config.MaxPagesLimit {
		return invalid("max_pages", "must be between 1 and %d, got %d", config.MaxPagesLimit, req.MaxPages)
	}
	return nil
}

// ValidatePipeline checks an extraction pipeline request.
func ValidatePipeline(req *models.PipelineRequest) error {
	if req == nil {
		return invalid("request", "request is nil")
	}
	if req.Limit <= 0 {
		return invalid("limit", "must be greater than 0, got %d", req.Limit)
	}
	if strings.TrimSpace(req.Model) == "" {
		return invalid("model", "model name is required")
	}
	return nil
}

// ValidateTaskID rejects ids that cannot address a single task path segment.
func ValidateTaskID(id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("task_id", "task id is required")
	}
	if strings.ContainsAny(id, "/?#") {
		return invalid("task_id", "task id %q contains reserved characters", id)
	}
	return nil
}

// NormalizeSpider lowercases and trims a spider name.
func NormalizeSpider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeCountry uppercases and trims an ISO country code.
func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeList applies normalize to every value, dropping blanks and duplicates
// while keeping first-seen order.
func NormalizeList(values []string, normalize func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
