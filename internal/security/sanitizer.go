package security

import (
	"fmt"
	"log/slog"
	"regexp"
)

type Sanitizer struct {
	patterns []*regexp.Regexp
}

func NewSanitizer(patterns []string) (*Sanitizer, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid security pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &Sanitizer{
		patterns: compiled,
	}, nil
}

// NewDefaultSanitizer compiles DefaultPatterns followed by extra.
func NewDefaultSanitizer(extra []string) (*Sanitizer, error) {
	patterns := make([]string, 0, len(DefaultPatterns)+len(extra))
	patterns = append(patterns, DefaultPatterns...)
	patterns = append(patterns, extra...)
	return NewSanitizer(patterns)
}

func (s *Sanitizer) Sanitize(text string) string {
	result := text
	redacted := false

	for _, pattern := range s.patterns {
		if pattern.MatchString(result) {
			result = pattern.ReplaceAllString(result, "***REDACTED***")
			redacted = true
		}
	}

	if redacted {
		slog.Debug("Security: Redacted sensitive information from output")
	}

	return result
}

var DefaultPatterns = []string{
	// Bot API path segment, e.g. https://api.telegram.org/bot<token>/getMe
	`/bot[^/\s"]+/`,
	// Bare bot token: <bot id>:<35 char secret>
	`[0-9]{5,12}:[A-Za-z0-9_-]{30,}`,
	`api[_-]?key[s]?\s*[:=]\s*["']?([^"'\s]+)`,
	`token[s]?\s*[:=]\s*["']?([^"'\s]+)`,
	`password[s]?\s*[:=]\s*["']?([^"'\s]+)`,
	`secret[s]?\s*[:=]\s*["']?([^"'\s]+)`,
	`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
}
