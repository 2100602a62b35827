// Package checks defines the conformance check primitives: a single
// structured assertion tied to a specification clause, and the append-only
// ledger that scenarios accumulate them in.
package checks

import (
	"fmt"
	"time"
)

// Status is the outcome of a single conformance check.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusWarning Status = "WARNING"
	StatusSkipped Status = "SKIPPED"
	StatusInfo    Status = "INFO"
)

// SpecRef is a citation to a normative specification clause.
type SpecRef struct {
	Title   string `json:"title"`
	Section string `json:"section,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Well-known specification references cited by the mock servers.
var (
	RefOAuth21      = SpecRef{Title: "OAuth 2.1", Section: "draft-ietf-oauth-v2-1-13", URL: "https://datatracker.ietf.org/doc/html/draft-ietf-oauth-v2-1-13"}
	RefRFC8414      = SpecRef{Title: "RFC 8414: Authorization Server Metadata", URL: "https://www.rfc-editor.org/rfc/rfc8414"}
	RefRFC9728      = SpecRef{Title: "RFC 9728: Protected Resource Metadata", URL: "https://www.rfc-editor.org/rfc/rfc9728"}
	RefRFC7591      = SpecRef{Title: "RFC 7591: Dynamic Client Registration", URL: "https://www.rfc-editor.org/rfc/rfc7591"}
	RefRFC7636      = SpecRef{Title: "RFC 7636: PKCE", URL: "https://www.rfc-editor.org/rfc/rfc7636"}
	RefRFC8707      = SpecRef{Title: "RFC 8707: Resource Indicators", URL: "https://www.rfc-editor.org/rfc/rfc8707"}
	RefRFC6750      = SpecRef{Title: "RFC 6750: Bearer Token Usage", URL: "https://www.rfc-editor.org/rfc/rfc6750"}
	RefMCPAuth      = SpecRef{Title: "MCP Authorization", URL: "https://modelcontextprotocol.io/specification/draft/basic/authorization"}
	RefRFC7523      = SpecRef{Title: "RFC 7523: JWT Bearer Assertions", URL: "https://www.rfc-editor.org/rfc/rfc7523"}
	RefRFC8693      = SpecRef{Title: "RFC 8693: Token Exchange", URL: "https://www.rfc-editor.org/rfc/rfc8693"}
)

// Check is one pass/fail/warning observation. Checks are immutable once
// appended to a ledger; multiple checks may share an ID across retries.
type Check struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Status         Status         `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
	SpecReferences []SpecRef      `json:"specReferences,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
}

// Success builds a passing check.
func Success(id, name, description string, refs ...SpecRef) Check {
	return Check{
		ID:             id,
		Name:           name,
		Description:    description,
		Status:         StatusSuccess,
		Timestamp:      time.Now(),
		SpecReferences: refs,
	}
}

// Failure builds a failing check. The expected and observed values are
// rendered into the description so every failure is self-explanatory.
func Failure(id, name, expected, observed string, refs ...SpecRef) Check {
	return Check{
		ID:             id,
		Name:           name,
		Description:    fmt.Sprintf("expected %s; observed %s", expected, observed),
		Status:         StatusFailure,
		Timestamp:      time.Now(),
		SpecReferences: refs,
		ErrorMessage:   fmt.Sprintf("expected %s, got %s", expected, observed),
		Details: map[string]any{
			"expected": expected,
			"observed": observed,
		},
	}
}

// Warning builds a check for a violated SHOULD-level requirement.
func Warning(id, name, expected, observed string, refs ...SpecRef) Check {
	c := Failure(id, name, expected, observed, refs...)
	c.Status = StatusWarning
	return c
}

// Info builds an informational check that never affects the verdict.
func Info(id, name, description string, refs ...SpecRef) Check {
	c := Success(id, name, description, refs...)
	c.Status = StatusInfo
	return c
}

// Skipped builds a check recording that an assertion was deliberately not run.
func Skipped(id, name, reason string, refs ...SpecRef) Check {
	c := Success(id, name, reason, refs...)
	c.Status = StatusSkipped
	return c
}

// WithDetail returns a copy of the check with an extra evidence entry.
func (c Check) WithDetail(key string, value any) Check {
	details := make(map[string]any, len(c.Details)+1)
	for k, v := range c.Details {
		details[k] = v
	}
	details[key] = value
	c.Details = details
	return c
}
