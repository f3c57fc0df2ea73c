// Package errors classifies failures from every layer of the bridge
// (validation, authorization, correlator timeouts, subprocess stderr and
// exit) into the envelope.Error codes the client socket emits.
package errors

import (
	"regexp"

	"github.com/sentineldock/acpgate/internal/domain/envelope"
)

// Source identifies which layer produced a failure.
type Source string

const (
	SourceValidation        Source = "validation"
	SourceAuthorization     Source = "authorization"
	SourceNotFound          Source = "not_found"
	SourceCorrelatorTimeout Source = "correlator_timeout"
	SourceSubprocessStderr  Source = "subprocess_stderr"
	SourceSubprocessExit    Source = "subprocess_exit"
	SourceTransport         Source = "transport"
)

// Classified is a failure tagged with the client-facing envelope code and
// source that produced it.
type Classified struct {
	Source  Source
	Code    string
	Message string
}

// CodeForSource maps a Source to its default envelope.Error code. Some
// sources (subprocess stderr) refine this further via ClassifyStderr.
func CodeForSource(s Source) string {
	switch s {
	case SourceValidation:
		return envelope.CodeInvalidParams
	case SourceAuthorization:
		return envelope.CodeUnauthorized
	case SourceNotFound:
		return envelope.CodeSessionNotFound
	case SourceCorrelatorTimeout, SourceSubprocessStderr, SourceSubprocessExit:
		return envelope.CodeAPIError
	default:
		return envelope.CodeInternal
	}
}

// StderrPattern identifies one recognized class of agent-subprocess stderr
// output. Patterns are checked in the fixed order they're declared below;
// the first match wins.
type StderrPattern struct {
	Name string
	re   *regexp.Regexp
}

// Fixed stderr error-pattern taxonomy (§4.3). Matches fire onStderr(line)
// with the matched pattern name; non-matching lines are logged but otherwise
// ignored.
var StderrPatterns = []StderrPattern{
	{Name: "rate_limit", re: regexp.MustCompile(`(?i)rate.?limit|429|too many requests`)},
	{Name: "unauthorized", re: regexp.MustCompile(`(?i)\b401\b|unauthoriz`)},
	{Name: "forbidden", re: regexp.MustCompile(`(?i)\b403\b|forbidden`)},
	{Name: "invalid_key", re: regexp.MustCompile(`(?i)invalid api key|invalid.?key|api key.*invalid`)},
	{Name: "quota", re: regexp.MustCompile(`(?i)quota exceeded|insufficient quota|billing`)},
	{Name: "generic_api_error", re: regexp.MustCompile(`(?i)\berror\b.*api|api.*\berror\b`)},
}

// ClassifyStderr matches a stderr line against the fixed pattern taxonomy,
// returning the first matching pattern name and true, or ("", false) if no
// pattern matches.
func ClassifyStderr(line string) (string, bool) {
	for _, p := range StderrPatterns {
		if p.re.MatchString(line) {
			return p.Name, true
		}
	}
	return "", false
}
