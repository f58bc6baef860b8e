// Package redact replaces sensitive patterns such as connection string
// credentials, bearer tokens, and AWS keys with a placeholder before text
// leaves the process in a log line or run report. Patterns are compiled
// once at construction time.
package redact

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Placeholder is the string that replaces matched sensitive data.
const Placeholder = "[REDACTED]"

// defaultPatterns are always active and match common secret formats.
//
// Pattern order matters: URI credentials go first so the password pattern
// never sees them, and Bearer and Basic precede the general Authorization
// header pattern.
var defaultPatterns = []patternDef{
	{
		name:    "uri_userinfo",
		pattern: `(?i)\b(mongodb(?:\+srv)?|https?|s3)://[^\s/@]+@`,
		replace: "$1://" + Placeholder + "@",
	},
	{
		name:    "slack_webhook_path",
		pattern: `hooks\.slack\.com/services/[A-Za-z0-9/_\-]+`,
		replace: "hooks.slack.com/services/" + Placeholder,
	},
	{
		name:    "bearer_token",
		pattern: `(?i)Bearer\s+[A-Za-z0-9._\-]+`,
	},
	{
		name:    "basic_auth_header",
		pattern: `(?i)Basic\s+[A-Za-z0-9+/=]+`,
	},
	{
		name:    "aws_access_key",
		pattern: `AKIA[A-Za-z0-9]{16}`,
	},
	{
		name:    "password_assignment",
		pattern: `(?i)password\s*"?\s*[=:]\s*"?\s*\S+`,
	},
	{
		name:    "token_assignment",
		pattern: `(?i)token\s*[=:]\s*[A-Za-z0-9._\-/+=]+`,
	},
	{
		name:    "authorization_header",
		pattern: `(?i)Authorization\s*[:=]\s*\S+`,
	},
	{
		name:    "secret_key_assignment",
		pattern: `(?i)(?:secret[_-]?key|api[_-]?key|access[_-]?key)\s*[=:]\s*\S+`,
	},
}

// patternDef pairs a human-readable name with a regex pattern string.
// replace is the regexp replacement template; empty means Placeholder.
type patternDef struct {
	name    string
	pattern string
	replace string
}

type compiledPattern struct {
	name    string
	re      *regexp.Regexp
	replace string
}

// Redactor applies a set of compiled regex patterns to redact sensitive data
// from text. It is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []compiledPattern
	logger   *slog.Logger
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithLogger sets the logger for the Redactor.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Redactor) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Redactor with the default patterns plus any additional
// user-supplied patterns. Additional patterns are compiled and validated at
// construction time. If any additional pattern is invalid, New returns an
// error listing all invalid patterns. Default patterns are always included.
func New(additionalPatterns []string, opts ...Option) (*Redactor, error) {
	r := &Redactor{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	// Compile default patterns. These are known-good and should never fail.
	compiled := make([]compiledPattern, 0, len(defaultPatterns)+len(additionalPatterns))
	for _, dp := range defaultPatterns {
		re, err := regexp.Compile(dp.pattern)
		if err != nil {
			// This is a programming error in the default patterns.
			return nil, fmt.Errorf("internal error: default pattern %q failed to compile: %w", dp.name, err)
		}
		replace := dp.replace
		if replace == "" {
			replace = Placeholder
		}
		compiled = append(compiled, compiledPattern{name: dp.name, re: re, replace: replace})
	}

	// Compile user-supplied patterns.
	var errs []string
	for i, pat := range additionalPatterns {
		if pat == "" {
			errs = append(errs, fmt.Sprintf("pattern at index %d: empty pattern", i))
			continue
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			errs = append(errs, fmt.Sprintf("pattern at index %d (%q): %v", i, pat, err))
			continue
		}
		compiled = append(compiled, compiledPattern{
			name:    fmt.Sprintf("custom_%d", i),
			re:      re,
			replace: Placeholder,
		})
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid redaction patterns: %s", strings.Join(errs, "; "))
	}

	r.patterns = compiled

	r.logger.Debug("redactor initialized",
		"default_patterns", len(defaultPatterns),
		"custom_patterns", len(additionalPatterns),
		"total_patterns", len(compiled),
	)

	return r, nil
}

// Redact replaces all matches of any configured pattern in the input text
// with [REDACTED]. Patterns are applied in order, each to the output of the
// previous one.
func (r *Redactor) Redact(text string) string {
	if text == "" {
		return text
	}

	r.mu.RLock()
	patterns := r.patterns
	r.mu.RUnlock()

	result := text
	for _, cp := range patterns {
		result = cp.re.ReplaceAllString(result, cp.replace)
	}
	return result
}

// Error returns the redacted message of err, or "" for a nil error.
func (r *Redactor) Error(err error) string {
	if err == nil {
		return ""
	}
	return r.Redact(err.Error())
}

// PatternCount returns the total number of compiled patterns (default + custom).
func (r *Redactor) PatternCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}

// DefaultPatternCount returns the number of built-in default patterns.
func DefaultPatternCount() int {
	return len(defaultPatterns)
}
