package engine

import (
	"regexp"
)

// redactedPlaceholder replaces every matched secret.
const redactedPlaceholder = "[REDACTED]"

// secretPatterns is the fixed redaction filter applied to all captured tool
// output before it is stored or logged. The execution history is later
// consumed by artifact and reporting collaborators, so this is mandatory,
// not best-effort.
var secretPatterns = []*regexp.Regexp{
	// key=value and "key": "value" style credentials
	regexp.MustCompile(`(?i)(password|passwd|pwd)"?\s*[=:]\s*"?[^\s"',;&]+`),
	regexp.MustCompile(`(?i)(api[-_]?key|accountkey|secretkey|access[-_]?key|key)"?\s*[=:]\s*"?[^\s"',;&]+`),
	regexp.MustCompile(`(?i)(secret|client[-_]?secret|token)"?\s*[=:]\s*"?[^\s"',;&]+`),

	// bearer tokens in headers or logs
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]+=*`),

	// connection strings with embedded credentials
	regexp.MustCompile(`(?i)sharedaccesssignature\s*=\s*[^\s"',;&]+`),
	regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)([^:/@\s]+):([^@\s]+)@`),
}

// connStringCredIndex is the index of the URL-credential pattern above,
// which needs a replacement preserving the scheme and user.
const connStringCredIndex = 5

// RedactSecrets strips known credential patterns from captured output.
// Redaction is idempotent: re-redacting output is a no-op.
func RedactSecrets(s string) string {
	if s == "" {
		return s
	}
	for i, pattern := range secretPatterns {
		if i == connStringCredIndex {
			s = pattern.ReplaceAllString(s, "${1}${2}:"+redactedPlaceholder+"@")
			continue
		}
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			// Keep the key name so logs stay diagnosable.
			if m := regexp.MustCompile(`^[^=:]+[=:]`).FindString(match); m != "" {
				return m + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return s
}
