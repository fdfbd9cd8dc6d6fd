// Package redact provides helpers for stripping sensitive values from log
// output before it leaves the process boundary.
//
// Configured upstream headers routinely carry bearer tokens and API keys.
// Anything the gateway logs about an upstream exchange must pass through this
// package first. Redaction is best-effort: it operates on string
// representations and relies on callers to pass the right set of sensitive
// terms. It is not a substitute for keeping secrets out of log call-sites.
package redact

import "strings"

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid spurious
// redaction of common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Headers returns a copy of the given header map with values replaced by
// [REDACTED] for every header whose name suggests it carries a credential.
// The returned map is safe to log.
func Headers(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for name, value := range h {
		if isSensitiveHeader(name) && value != "" {
			out[name] = placeholder
			continue
		}
		out[name] = value
	}
	return out
}

// isSensitiveHeader reports whether the header name suggests a credential.
func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, word := range []string{"authorization", "token", "secret", "key", "credential", "cookie"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
